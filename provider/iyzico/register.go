package iyzico

import "github.com/mstgnz/paygate/provider"

// Register the iyzico adapter with the gateway catalog
func init() {
	provider.RegisterFactory("iyzico", NewGateway, RequiredConfig)
}
