package products

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"github.com/pawshop/storefront/lib/mystore"
)

func TestProductService(t *testing.T) {

	t.Run("List products", func(t *testing.T) {
		// setup
		router := setup(t)

		// when
		request, err := http.NewRequest(http.MethodGet, "/api/products", nil)
		assert.NoError(t, err)
		response := httptest.NewRecorder()
		router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 200, response.Code)
		got := response.Body.String()
		assert.Contains(t, got, `"id": "dragon"`)
		assert.Contains(t, got, `"priceMinorUnits": 1500`)
		assert.Contains(t, got, `"id": "corncob"`)
	})

	t.Run("Get product", func(t *testing.T) {
		// setup
		router := setup(t)

		// when
		request, err := http.NewRequest(http.MethodGet, "/api/products/corncob", nil)
		assert.NoError(t, err)
		response := httptest.NewRecorder()
		router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 200, response.Code)
		got := response.Body.String()
		assert.Contains(t, got, `"priceMinorUnits": 1600`)
	})

	t.Run("Get product not exists", func(t *testing.T) {
		// setup
		router := setup(t)

		// when
		request, err := http.NewRequest(http.MethodGet, "/api/products/unknown", nil)
		assert.NoError(t, err)
		response := httptest.NewRecorder()
		router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 404, response.Code)
	})
}

func setup(t *testing.T) *mux.Router {
	c := context.TODO()
	storer, _, _ := mystore.NewInMemoryStore[Product](c)

	sut := NewService(storer)
	router := mux.NewRouter()
	err := sut.RegisterEndpoints(c, router)
	assert.NoError(t, err)

	return router
}
