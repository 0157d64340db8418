package checkout

import (
	"context"

	"github.com/pawshop/storefront/services/cart/cartmodel"
	"github.com/pawshop/storefront/services/checkout/checkoutapi"
)

//go:generate mockgen -source=api.go -package checkout -destination api_mock.go PaymentGateway,OrderPlacer

// PaymentGateway is implemented per payment provider (checkoutstripe,
// checkoutadyen). The orchestrator never talks to a provider SDK directly.
type PaymentGateway interface {
	// CreateIntent registers the upcoming payment with the gateway and
	// returns the client secret the card widget needs.
	CreateIntent(c context.Context, req IntentRequest) (IntentResponse, error)

	// Confirm performs the actual charge attempt. The outcome is one of the
	// four PaymentResult variants; the returned error is reserved for
	// malformed, non-classifiable gateway responses.
	// Implementations must not retry: a payment retry is only safe as a
	// fresh shopper-initiated resubmission.
	Confirm(c context.Context, clientSecret string, cardToken string) (PaymentResult, error)
}

type IntentRequest struct {
	OrderID       string
	CustomerEmail string
	AmountInCents int64
	Currency      string
	Lines         []cartmodel.Line
}

type IntentResponse struct {
	ClientSecret string
}

// OrderPlacer turns a confirmed payment into a durable order record.
type OrderPlacer interface {
	PlaceOrder(c context.Context, req OrderRequest) error
}

type OrderRequest struct {
	OrderID          string
	GatewayPaymentID string
	CustomerEmail    string
	AmountInCents    int64
	Currency         string
	Lines            []cartmodel.Line
	Address          checkoutapi.Address
}
