package handler

import (
	"net/http"

	"github.com/mstgnz/paygate/infra/response"
	"github.com/mstgnz/paygate/provider"
)

// GatewayLister is satisfied by *provider.Manager
type GatewayLister interface {
	GetAvailableGateways() []provider.GatewayDescriptor
}

// GatewaysResponse is the body of GET /v1/gateways, consumed as-is by the dashboard
type GatewaysResponse struct {
	Gateways []provider.GatewayDescriptor `json:"gateways"`
	Count    int                          `json:"count"`
	Primary  *string                      `json:"primary"`
}

// GatewayHandler serves the list of gateways a checkout can use right now
type GatewayHandler struct {
	gateways GatewayLister
}

// NewGatewayHandler creates a new gateway handler
func NewGatewayHandler(gateways GatewayLister) *GatewayHandler {
	return &GatewayHandler{gateways: gateways}
}

// ListAvailable handles GET /v1/gateways
func (h *GatewayHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	available := h.gateways.GetAvailableGateways()

	body := GatewaysResponse{
		Gateways: available,
		Count:    len(available),
	}
	if len(available) > 0 {
		primary := available[0].Name
		body.Primary = &primary
	}

	response.WriteJSON(w, http.StatusOK, body)
}
