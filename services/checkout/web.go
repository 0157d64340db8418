package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pawshop/storefront/lib/mycontext"
	"github.com/pawshop/storefront/lib/myerrors"
	"github.com/pawshop/storefront/lib/myhttp"
	"github.com/pawshop/storefront/lib/mylog"
	"github.com/pawshop/storefront/lib/mypublisher"
	"github.com/pawshop/storefront/lib/mystore"
	"github.com/pawshop/storefront/lib/mytime"
	"github.com/pawshop/storefront/lib/myuuid"
	"github.com/pawshop/storefront/services/cart/cartmodel"
	"github.com/pawshop/storefront/services/checkout/checkoutapi"
	"github.com/pawshop/storefront/services/checkout/checkoutevents"
)

type webService struct {
	service *service
	logger  mylog.Logger
}

// Use dependency injection to isolate the infrastructure and ease testing
func NewService(sessionStore mystore.Store[CheckoutSession], handoffStore mystore.Store[HandoffRecord], cartStore mystore.Store[cartmodel.Cart],
	gateway PaymentGateway, orderPlacer OrderPlacer, nower mytime.Nower, uuider myuuid.UUIDer, publisher mypublisher.Publisher) *webService {
	logger := mylog.New("checkout")

	return &webService{
		service: newService(sessionStore, handoffStore, cartStore, gateway, orderPlacer, nower, uuider, publisher, logger),
		logger:  logger,
	}
}

func (s *webService) RegisterEndpoints(c context.Context, router *mux.Router) error {
	router.HandleFunc("/api/checkout/{shopperUID}/start", s.startCheckoutPage()).Methods("POST")
	router.HandleFunc("/api/checkout/session/{sessionUID}", s.getSessionPage()).Methods("GET")
	router.HandleFunc("/api/checkout/session/{sessionUID}/email", s.submitEmailPage()).Methods("PUT")
	router.HandleFunc("/api/checkout/session/{sessionUID}/address", s.submitAddressPage()).Methods("PUT")
	router.HandleFunc("/api/checkout/session/{sessionUID}/confirm", s.confirmPaymentPage()).Methods("PUT")
	router.HandleFunc("/api/checkout/session/{sessionUID}/back", s.backPage()).Methods("PUT")
	router.HandleFunc("/api/checkout/session/{sessionUID}/result", s.collectResultPage()).Methods("GET")

	err := s.service.publisher.CreateTopic(c, checkoutevents.TopicName)
	if err != nil {
		return fmt.Errorf("error creating topic %s: %s", checkoutevents.TopicName, err)
	}

	return nil
}

type sessionResponse struct {
	SessionUID    string           `json:"sessionUid"`
	ShopperUID    string           `json:"shopperUid"`
	State         string           `json:"state"`
	CustomerEmail string           `json:"customerEmail,omitempty"`
	ClientSecret  string           `json:"clientSecret,omitempty"`
	OrderID       string           `json:"orderId,omitempty"`
	OrderStatus   string           `json:"orderStatus,omitempty"`
	LastError     string           `json:"lastError,omitempty"`
	Lines         []cartmodel.Line `json:"lines"`
	AmountInCents int64            `json:"amountInCents"`
	Currency      string           `json:"currency"`
}

func newSessionResponse(session CheckoutSession) sessionResponse {
	return sessionResponse{
		SessionUID:    session.SessionUID,
		ShopperUID:    session.ShopperUID,
		State:         string(session.State),
		CustomerEmail: session.CustomerEmail,
		ClientSecret:  session.ClientSecret,
		OrderID:       session.OrderID,
		OrderStatus:   session.OrderStatus,
		LastError:     session.LastError,
		Lines:         session.Lines,
		AmountInCents: session.AmountInCents,
		Currency:      session.Currency,
	}
}

type confirmRequest struct {
	CardToken string `json:"cardToken"`
}

type confirmResponse struct {
	sessionResponse
	RequiresAction bool   `json:"requiresAction,omitempty"`
	ActionToken    string `json:"actionToken,omitempty"`
}

type resultResponse struct {
	SessionUID  string `json:"sessionUid"`
	Success     bool   `json:"success"`
	OrderID     string `json:"orderId,omitempty"`
	OrderStatus string `json:"orderStatus,omitempty"`
	PaymentID   string `json:"paymentId,omitempty"`
	Message     string `json:"message"`
}

func (s *webService) startCheckoutPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		shopperUID := mux.Vars(r)["shopperUID"]

		session, err := s.service.startCheckout(c, shopperUID)
		if err != nil {
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		errorWriter.Write(c, w, http.StatusOK, newSessionResponse(session))
	}
}

func (s *webService) getSessionPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		sessionUID := mux.Vars(r)["sessionUID"]

		session, err := s.service.getSession(c, sessionUID)
		if err != nil {
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		errorWriter.Write(c, w, http.StatusOK, newSessionResponse(session))
	}
}

func (s *webService) submitEmailPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		sessionUID := mux.Vars(r)["sessionUID"]

		form, err := checkoutapi.NewEmailFormFromRequest(r)
		if err != nil {
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		session, err := s.service.submitEmail(c, sessionUID, form)
		if err != nil {
			errorWriter.WriteError(c, w, 2, err)
			return
		}

		errorWriter.Write(c, w, http.StatusOK, newSessionResponse(session))
	}
}

func (s *webService) submitAddressPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		sessionUID := mux.Vars(r)["sessionUID"]

		address, err := checkoutapi.NewAddressFromRequest(r)
		if err != nil {
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		session, err := s.service.submitAddress(c, sessionUID, address)
		if err != nil {
			errorWriter.WriteError(c, w, 2, err)
			return
		}

		errorWriter.Write(c, w, http.StatusOK, newSessionResponse(session))
	}
}

func (s *webService) confirmPaymentPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		sessionUID := mux.Vars(r)["sessionUID"]

		req := confirmRequest{}
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			errorWriter.WriteError(c, w, 1, myerrors.NewInvalidInputError(fmt.Errorf("error parsing request: %s", err)))
			return
		}
		if req.CardToken == "" {
			errorWriter.WriteError(c, w, 2, myerrors.NewInvalidInputError(fmt.Errorf("missing cardToken")))
			return
		}

		session, result, err := s.service.confirmPayment(c, sessionUID, req.CardToken)
		if err != nil {
			errorWriter.WriteError(c, w, 3, err)
			return
		}

		resp := confirmResponse{sessionResponse: newSessionResponse(session)}
		if action, ok := result.(PaymentRequiresAction); ok {
			resp.RequiresAction = true
			resp.ActionToken = action.ActionToken
		}

		errorWriter.Write(c, w, http.StatusOK, resp)
	}
}

func (s *webService) backPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		sessionUID := mux.Vars(r)["sessionUID"]

		session, err := s.service.back(c, sessionUID)
		if err != nil {
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		errorWriter.Write(c, w, http.StatusOK, newSessionResponse(session))
	}
}

func (s *webService) collectResultPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		sessionUID := mux.Vars(r)["sessionUID"]

		record, err := s.service.collectResult(c, sessionUID)
		if err != nil {
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		errorWriter.Write(c, w, http.StatusOK, resultResponse{
			SessionUID:  record.SessionUID,
			Success:     record.Success,
			OrderID:     record.OrderID,
			OrderStatus: record.OrderStatus,
			PaymentID:   record.PaymentID,
			Message:     record.Message,
		})
	}
}
