package cart

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
	"github.com/pawshop/storefront/lib/mypubsub"
	"github.com/pawshop/storefront/lib/mystore"
	"github.com/pawshop/storefront/lib/mytime"
	"github.com/pawshop/storefront/services/cart/cartmodel"
	"github.com/pawshop/storefront/services/checkout/checkoutevents"
)

type webService struct {
	service *service
	logger  mylog.Logger
}

// Use dependency injection to isolate the infrastructure and ease testing
func NewService(cartStore mystore.Store[cartmodel.Cart], nower mytime.Nower, pubsub mypubsub.PubSub) *webService {
	logger := mylog.New("cart")

	return &webService{
		service: newService(cartStore, nower, pubsub, logger),
		logger:  logger,
	}
}

func (s *webService) RegisterEndpoints(c context.Context, router *mux.Router) error {
	router.HandleFunc("/api/cart/{shopperUID}", s.getCartPage()).Methods("GET")
	router.HandleFunc("/api/cart/{shopperUID}", s.clearCartPage()).Methods("DELETE")
	router.HandleFunc("/api/cart/{shopperUID}/items", s.addLinePage()).Methods("POST")
	router.HandleFunc("/api/cart/{shopperUID}/items/{productID}", s.setQuantityPage()).Methods("PUT")
	router.HandleFunc("/api/cart/{shopperUID}/items/{productID}", s.removeLinePage()).Methods("DELETE")

	// push-subscription delivery of checkout lifecycle events
	router.HandleFunc("/api/cart/event", s.handleEventEnvelope()).Methods("POST")

	return s.service.Subscribe(c)
}

func (s *webService) handleEventEnvelope() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		err := checkoutevents.DispatchEvent(c, r.Body, s.service)
		if err != nil {
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		errorWriter.Write(c, w, http.StatusOK, myhttp.EmptyResponse{})
	}
}

type addLineRequest struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  *int   `json:"quantity"`
	ImageRef  string `json:"imageRef"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type cartResponse struct {
	ShopperUID string           `json:"shopperUid"`
	Lines      []cartmodel.Line `json:"lines"`
	ItemCount  int              `json:"itemCount"`
	TotalPrice int64            `json:"totalPrice"`
}

func newCartResponse(cart cartmodel.Cart) cartResponse {
	return cartResponse{
		ShopperUID: cart.ShopperUID,
		Lines:      cart.Lines,
		ItemCount:  cart.ItemCount(),
		TotalPrice: cart.Total(),
	}
}

func (s *webService) getCartPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		shopperUID := mux.Vars(r)["shopperUID"]

		cart := s.service.getCart(c, shopperUID)

		errorWriter.Write(c, w, http.StatusOK, newCartResponse(cart))
	}
}

func (s *webService) addLinePage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		shopperUID := mux.Vars(r)["shopperUID"]

		req := addLineRequest{}
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			errorWriter.WriteError(c, w, 1, myerrors.NewInvalidInputError(fmt.Errorf("error parsing request: %s", err)))
			return
		}
		if req.ProductID == "" {
			errorWriter.WriteError(c, w, 2, myerrors.NewInvalidInputError(fmt.Errorf("missing productId")))
			return
		}

		// an omitted quantity means one; an explicit zero or negative value
		// is passed through untouched
		quantity := 1
		if req.Quantity != nil {
			quantity = *req.Quantity
		}

		cart := s.service.addLine(c, shopperUID, cartmodel.Line{
			ProductID: req.ProductID,
			Title:     req.Title,
			UnitPrice: req.UnitPrice,
			Quantity:  quantity,
			ImageRef:  req.ImageRef,
		})

		errorWriter.Write(c, w, http.StatusOK, newCartResponse(cart))
	}
}

func (s *webService) setQuantityPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		shopperUID := mux.Vars(r)["shopperUID"]
		productID := mux.Vars(r)["productID"]

		req := setQuantityRequest{}
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			errorWriter.WriteError(c, w, 1, myerrors.NewInvalidInputError(fmt.Errorf("error parsing request: %s", err)))
			return
		}

		cart := s.service.setQuantity(c, shopperUID, productID, req.Quantity)

		errorWriter.Write(c, w, http.StatusOK, newCartResponse(cart))
	}
}

func (s *webService) removeLinePage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		shopperUID := mux.Vars(r)["shopperUID"]
		productID := mux.Vars(r)["productID"]

		cart := s.service.removeLine(c, shopperUID, productID)

		errorWriter.Write(c, w, http.StatusOK, newCartResponse(cart))
	}
}

func (s *webService) clearCartPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		shopperUID := mux.Vars(r)["shopperUID"]

		cart := s.service.clear(c, shopperUID)

		errorWriter.Write(c, w, http.StatusOK, newCartResponse(cart))
	}
}
