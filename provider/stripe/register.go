package stripe

import "github.com/mstgnz/paygate/provider"

// Register the Stripe adapter with the gateway catalog
func init() {
	provider.RegisterFactory("stripe", NewGateway, RequiredConfig)
}
