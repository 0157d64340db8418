package checkoutadyen

import (
	"context"
	"fmt"
	"strings"

	adyencheckout "github.com/adyen/adyen-go-api-library/v6/src/checkout"
	"github.com/adyen/adyen-go-api-library/v6/src/common"

	"github.com/pawshop/storefront/lib/mylog"
	"github.com/pawshop/storefront/lib/mystore"
	"github.com/pawshop/storefront/services/checkout"
)

type Config struct {
	Environment     string
	ApiKey          string
	MerchantAccount string
	ReturnURL       string
}

// paymentContext carries what the adyen Payments call needs beyond the
// opaque secret the checkout service hands back on confirmation.
type paymentContext struct {
	SessionUID    string
	SessionData   string `datastore:",noindex"`
	OrderID       string
	AmountInCents int64
	Currency      string
}

// Gateway adapts the adyen Sessions plus Payments flow to the
// confirmation contract of the checkout service.
type Gateway struct {
	payer           Payer
	contextStore    mystore.Store[paymentContext]
	merchantAccount string
	returnURL       string
	logger          mylog.Logger
}

func NewGateway(cfg Config, payer Payer, contextStore mystore.Store[paymentContext]) (*Gateway, error) {
	if cfg.ApiKey == "" {
		return nil, fmt.Errorf("missing adyen api key")
	}
	if cfg.MerchantAccount == "" {
		return nil, fmt.Errorf("missing adyen merchant account")
	}
	payer.UseApiKey(cfg.ApiKey)

	return &Gateway{
		payer:           payer,
		contextStore:    contextStore,
		merchantAccount: cfg.MerchantAccount,
		returnURL:       cfg.ReturnURL,
		logger:          mylog.New("checkoutadyen"),
	}, nil
}

func NewPaymentContextStore(c context.Context) (mystore.Store[paymentContext], func(), error) {
	return mystore.New[paymentContext](c)
}

func (g *Gateway) CreateIntent(c context.Context, req checkout.IntentRequest) (checkout.IntentResponse, error) {
	lineItems := make([]adyencheckout.LineItem, 0, len(req.Lines))
	for _, line := range req.Lines {
		lineItems = append(lineItems, adyencheckout.LineItem{
			Id:                 line.ProductID,
			Description:        line.Title,
			Quantity:           int64(line.Quantity),
			AmountIncludingTax: line.UnitPrice,
		})
	}

	resp, err := g.payer.Sessions(c, adyencheckout.CreateCheckoutSessionRequest{
		Amount: adyencheckout.Amount{
			Value:    req.AmountInCents,
			Currency: req.Currency,
		},
		MerchantAccount: g.merchantAccount,
		Reference:       req.OrderID,
		ReturnUrl:       g.returnURL,
		ShopperEmail:    req.CustomerEmail,
		LineItems:       &lineItems,
	})
	if err != nil {
		return checkout.IntentResponse{}, err
	}
	if resp.Id == "" {
		return checkout.IntentResponse{}, fmt.Errorf("adyen session response carries no id")
	}

	err = g.contextStore.Put(c, resp.Id, paymentContext{
		SessionUID:    resp.Id,
		SessionData:   resp.SessionData,
		OrderID:       req.OrderID,
		AmountInCents: req.AmountInCents,
		Currency:      req.Currency,
	})
	if err != nil {
		return checkout.IntentResponse{}, fmt.Errorf("error storing payment context: %s", err)
	}

	g.logger.Log(c, req.OrderID, mylog.SeverityInfo, "Created adyen session %s for order %s", resp.Id, req.OrderID)

	return checkout.IntentResponse{
		ClientSecret: resp.Id,
	}, nil
}

// Confirm performs a single charge attempt. The adyen result codes are
// folded into the payment result variants; an unknown code is returned
// as an error.
func (g *Gateway) Confirm(c context.Context, clientSecret string, cardToken string) (checkout.PaymentResult, error) {
	pc, found, err := g.contextStore.Get(c, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("error fetching payment context: %s", err)
	}
	if !found {
		return nil, fmt.Errorf("unknown adyen session %s", clientSecret)
	}

	resp, err := g.payer.Payments(c, adyencheckout.PaymentRequest{
		Amount: adyencheckout.Amount{
			Value:    pc.AmountInCents,
			Currency: pc.Currency,
		},
		MerchantAccount: g.merchantAccount,
		Reference:       pc.OrderID,
		ReturnUrl:       g.returnURL,
		PaymentMethod: map[string]interface{}{
			"type":         "scheme",
			"paymentToken": cardToken,
		},
	})
	if err != nil {
		return checkout.PaymentTransportError{Message: err.Error()}, nil
	}

	if resp.ResultCode == nil {
		return nil, fmt.Errorf("adyen payment response carries no result code")
	}

	switch *resp.ResultCode {
	case common.Authorised:
		return checkout.PaymentSucceeded{
			GatewayPaymentID: resp.PspReference,
			AmountInCents:    pc.AmountInCents,
			Currency:         pc.Currency,
		}, nil
	case common.RedirectShopper, common.IdentifyShopper, common.ChallengeShopper, common.Pending:
		actionToken := actionPaymentData(resp.Action)
		if actionToken == "" {
			actionToken = pc.SessionData
		}

		return checkout.PaymentRequiresAction{
			ActionToken: actionToken,
		}, nil
	case common.Refused, common.Cancelled:
		return checkout.PaymentDeclined{
			ReasonCode: refusalCode(resp),
			Message:    resp.RefusalReason,
		}, nil
	case common.Error:
		return checkout.PaymentTransportError{
			Message: resp.RefusalReason,
		}, nil
	default:
		return nil, fmt.Errorf("unexpected adyen result code %s", resp.ResultCode.String())
	}
}

// The action payload is untyped in the sdk, it decodes as a json object.
// The paymentData field is what a client needs to resume the flow.
func actionPaymentData(action interface{}) string {
	fields, ok := action.(map[string]interface{})
	if !ok {
		return ""
	}

	paymentData, _ := fields["paymentData"].(string)

	return paymentData
}

func refusalCode(resp adyencheckout.PaymentResponse) string {
	if resp.RefusalReasonCode != "" {
		return resp.RefusalReasonCode
	}

	return strings.ToLower(resp.ResultCode.String())
}
