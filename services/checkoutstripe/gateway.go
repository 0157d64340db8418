package checkoutstripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v74"

	"github.com/pawshop/storefront/lib/mylog"
	"github.com/pawshop/storefront/services/checkout"
)

// Gateway adapts the stripe PaymentIntents API to the confirmation contract
// of the checkout service.
type Gateway struct {
	payer  Payer
	logger mylog.Logger
}

func NewGateway(apiKey string, payer Payer) (*Gateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing stripe api key")
	}
	payer.UseApiKey(apiKey)

	return &Gateway{
		payer:  payer,
		logger: mylog.New("checkoutstripe"),
	}, nil
}

func (g *Gateway) CreateIntent(c context.Context, req checkout.IntentRequest) (checkout.IntentResponse, error) {
	params := stripe.PaymentIntentParams{
		Amount:       stripe.Int64(req.AmountInCents),
		Currency:     stripe.String(strings.ToLower(req.Currency)),
		ReceiptEmail: stripe.String(req.CustomerEmail),
	}
	params.AddMetadata("orderID", req.OrderID)

	intent, err := g.payer.CreatePaymentIntent(c, params)
	if err != nil {
		return checkout.IntentResponse{}, err
	}

	g.logger.Log(c, req.OrderID, mylog.SeverityInfo, "Created stripe payment intent %s for order %s", intent.ID, req.OrderID)

	return checkout.IntentResponse{
		ClientSecret: intent.ClientSecret,
	}, nil
}

// Confirm performs a single charge attempt. Every classifiable stripe
// outcome is folded into one of the payment result variants; only a
// response that fits none of them is returned as an error.
func (g *Gateway) Confirm(c context.Context, clientSecret string, cardToken string) (checkout.PaymentResult, error) {
	intentID, err := intentIDFromClientSecret(clientSecret)
	if err != nil {
		return nil, err
	}

	intent, err := g.payer.ConfirmPaymentIntent(c, intentID, stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(cardToken),
	})
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return checkout.PaymentDeclined{
				ReasonCode: string(stripeErr.Code),
				Message:    stripeErr.Msg,
			}, nil
		}

		return checkout.PaymentTransportError{Message: err.Error()}, nil
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return checkout.PaymentSucceeded{
			GatewayPaymentID: intent.ID,
			AmountInCents:    intent.Amount,
			Currency:         strings.ToUpper(string(intent.Currency)),
		}, nil
	case stripe.PaymentIntentStatusRequiresAction:
		return checkout.PaymentRequiresAction{
			ActionToken: intent.ClientSecret,
		}, nil
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// the attempt was rejected and the intent is reusable with fresh card data
		reason := "payment_rejected"
		message := "payment was not accepted"
		if intent.LastPaymentError != nil {
			reason = string(intent.LastPaymentError.Code)
			message = intent.LastPaymentError.Msg
		}

		return checkout.PaymentDeclined{
			ReasonCode: reason,
			Message:    message,
		}, nil
	default:
		return nil, fmt.Errorf("unexpected stripe intent status %s", intent.Status)
	}
}

// The client secret is of the form "pi_xxx_secret_yyy"; everything before
// the "_secret" marker is the intent id.
func intentIDFromClientSecret(clientSecret string) (string, error) {
	intentID, _, found := strings.Cut(clientSecret, "_secret")
	if !found || intentID == "" {
		return "", fmt.Errorf("malformed stripe client secret")
	}

	return intentID, nil
}
