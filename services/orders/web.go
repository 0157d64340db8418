package orders

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pawshop/storefront/lib/mycontext"
	"github.com/pawshop/storefront/lib/myhttp"
	"github.com/pawshop/storefront/lib/myhttpclient"
	"github.com/pawshop/storefront/lib/mylog"
	"github.com/pawshop/storefront/lib/myqueue"
	"github.com/pawshop/storefront/lib/mystore"
	"github.com/pawshop/storefront/lib/mytime"
	"github.com/pawshop/storefront/services/checkout"
)

type webService struct {
	service *service
	queue   myqueue.TaskQueuer
	logger  mylog.Logger
}

// Use dependency injection to isolate the infrastructure and ease testing
func NewService(orderStore mystore.Store[PendingOrder], httpClient myhttpclient.HTTPSender, queue myqueue.TaskQueuer,
	nower mytime.Nower, orderServiceURL string) *webService {
	logger := mylog.New("orders")

	return &webService{
		service: newService(orderStore, httpClient, queue, nower, logger, orderServiceURL),
		queue:   queue,
		logger:  logger,
	}
}

func (s *webService) RegisterEndpoints(c context.Context, router *mux.Router) {
	router.HandleFunc("/api/orders/{orderID}", s.getOrderPage()).Methods("GET")

	// invoked by the task queue, not by shoppers
	router.HandleFunc("/api/orders/retry/{orderID}", s.retryPage()).Methods("PUT", "POST")
}

// PlaceOrder makes the order service pluggable into the checkout flow.
func (s *webService) PlaceOrder(c context.Context, req checkout.OrderRequest) error {
	return s.service.placeOrder(c, req)
}

type orderStatusResponse struct {
	OrderID   string `json:"orderId"`
	Completed bool   `json:"completed"`
	Attempts  int    `json:"attempts"`
}

func (s *webService) getOrderPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		orderID := mux.Vars(r)["orderID"]

		order, err := s.service.getOrder(c, orderID)
		if err != nil {
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		errorWriter.Write(c, w, http.StatusOK, orderStatusResponse{
			OrderID:   order.OrderID,
			Completed: order.Completed,
			Attempts:  order.Attempts,
		})
	}
}

func (s *webService) retryPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		orderID := mux.Vars(r)["orderID"]

		attempt, maxAttempts := s.queue.IsLastAttempt(c, "retry-order-"+orderID)
		isLastAttempt := maxAttempts > 0 && attempt >= maxAttempts

		err := s.service.retry(c, orderID, isLastAttempt)
		if err != nil {
			// non-2xx makes the queue redeliver
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		errorWriter.Write(c, w, http.StatusOK, myhttp.SuccessResponse{Message: "retried"})
	}
}
