package products

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/pawshop/storefront/lib/mycontext"
	"github.com/pawshop/storefront/lib/myerrors"
	"github.com/pawshop/storefront/lib/myhttp"
	"github.com/pawshop/storefront/lib/mylog"
	"github.com/pawshop/storefront/lib/mystore"
)

type webService struct {
	productStore mystore.Store[Product]
	logger       mylog.Logger
}

// Use dependency injection to isolate the infrastructure and ease testing
func NewService(productStore mystore.Store[Product]) *webService {
	return &webService{
		productStore: productStore,
		logger:       mylog.New("products"),
	}
}

func (s *webService) RegisterEndpoints(c context.Context, router *mux.Router) error {
	router.HandleFunc("/api/products", s.productListPage()).Methods("GET")
	router.HandleFunc("/api/products/{productID}", s.productDetailPage()).Methods("GET")

	return s.seedWhenEmpty(c)
}

func (s *webService) seedWhenEmpty(c context.Context) error {
	return s.productStore.RunInTransaction(c, func(c context.Context) error {
		existing, err := s.productStore.List(c)
		if err != nil {
			return fmt.Errorf("error listing products: %s", err)
		}
		if len(existing) > 0 {
			return nil
		}

		for _, p := range DefaultCatalog() {
			err = s.productStore.Put(c, p.ID, p)
			if err != nil {
				return fmt.Errorf("error seeding product %s: %s", p.ID, err)
			}
		}

		return nil
	})
}

func (s *webService) productListPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		products, err := s.productStore.List(c)
		if err != nil {
			errorWriter.WriteError(c, w, 1, myerrors.NewInternalError(err))
			return
		}

		sort.Slice(products, func(i, j int) bool {
			return products[i].ID < products[j].ID
		})

		errorWriter.Write(c, w, http.StatusOK, products)
	}
}

func (s *webService) productDetailPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		productID := mux.Vars(r)["productID"]

		product, found, err := s.productStore.Get(c, productID)
		if err != nil {
			errorWriter.WriteError(c, w, 1, myerrors.NewInternalError(err))
			return
		}
		if !found {
			errorWriter.WriteError(c, w, 2, myerrors.NewNotFoundError(fmt.Errorf("product with id %s not found", productID)))
			return
		}

		errorWriter.Write(c, w, http.StatusOK, product)
	}
}
