package orders

import (
	"time"

	"github.com/pawshop/storefront/services/cart/cartmodel"
	"github.com/pawshop/storefront/services/checkout/checkoutapi"
)

// PendingOrder is the durable record of an order submission towards the
// order service. It survives a failed submission so that the retry
// webhook can replay it with the same order id.
type PendingOrder struct {
	OrderID          string
	GatewayPaymentID string
	CustomerEmail    string
	AmountInCents    int64
	Currency         string
	Lines            []cartmodel.Line    `datastore:",noindex"`
	Address          checkoutapi.Address `datastore:",noindex"`
	Completed        bool
	Attempts         int
	CreatedAt        time.Time
	LastAttemptAt    *time.Time
}

// orderPayload is the wire format the external order service accepts.
type orderPayload struct {
	OrderID         string          `json:"orderId"`
	PaymentID       string          `json:"paymentId"`
	CustomerEmail   string          `json:"customerEmail"`
	AmountInCents   int64           `json:"amountInCents"`
	Currency        string          `json:"currency"`
	Lines           []payloadLine   `json:"lines"`
	ShippingAddress payloadAddress  `json:"shippingAddress"`
}

type payloadLine struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

type payloadAddress struct {
	FullName       string `json:"fullName"`
	ShippingOption string `json:"shippingOption"`
	AddressLine1   string `json:"addressLine1,omitempty"`
	AddressLine2   string `json:"addressLine2,omitempty"`
	City           string `json:"city,omitempty"`
	PostalCode     string `json:"postalCode,omitempty"`
}

func newOrderPayload(order PendingOrder) orderPayload {
	lines := make([]payloadLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, payloadLine{
			ProductID: line.ProductID,
			Title:     line.Title,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}

	return orderPayload{
		OrderID:       order.OrderID,
		PaymentID:     order.GatewayPaymentID,
		CustomerEmail: order.CustomerEmail,
		AmountInCents: order.AmountInCents,
		Currency:      order.Currency,
		Lines:         lines,
		ShippingAddress: payloadAddress{
			FullName:       order.Address.FullName,
			ShippingOption: order.Address.ShippingOption,
			AddressLine1:   order.Address.AddressLine1,
			AddressLine2:   order.Address.AddressLine2,
			City:           order.Address.City,
			PostalCode:     order.Address.PostalCode,
		},
	}
}
