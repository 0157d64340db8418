package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/mux"

	"github.com/pawshop/storefront/lib/myhttpclient"
	"github.com/pawshop/storefront/lib/mypublisher"
	"github.com/pawshop/storefront/lib/mypubsub"
	"github.com/pawshop/storefront/lib/myqueue"
	"github.com/pawshop/storefront/lib/mystore"
	"github.com/pawshop/storefront/lib/mytime"
	"github.com/pawshop/storefront/lib/myuuid"
	"github.com/pawshop/storefront/services/cart"
	"github.com/pawshop/storefront/services/cart/cartmodel"
	"github.com/pawshop/storefront/services/checkout"
	"github.com/pawshop/storefront/services/checkoutadyen"
	"github.com/pawshop/storefront/services/checkoutstripe"
	"github.com/pawshop/storefront/services/orders"
	"github.com/pawshop/storefront/services/products"
)

func main() {
	c := context.Background()

	nower := mytime.RealNower{}
	uuider := myuuid.RealUUIDer{}

	router := mux.NewRouter()

	queue, queueCleanup, err := myqueue.New(c)
	if err != nil {
		log.Fatalf("Error creating task queue: %s", err)
	}
	defer queueCleanup()

	pubsub, pubsubCleanup, err := mypubsub.New(c)
	if err != nil {
		log.Fatalf("Error creating pubsub: %s", err)
	}
	defer pubsubCleanup()

	publisher, publisherCleanup, err := mypublisher.New(c, pubsub, queue, nower, uuider)
	if err != nil {
		log.Fatalf("Error creating publisher: %s", err)
	}
	defer publisherCleanup()
	publisher.RegisterEndpoints(c, router)

	cartStore, cartStoreCleanup, err := mystore.New[cartmodel.Cart](c)
	if err != nil {
		log.Fatalf("Error creating cart store: %s", err)
	}
	defer cartStoreCleanup()

	cartService := cart.NewService(cartStore, nower, pubsub)
	err = cartService.RegisterEndpoints(c, router)
	if err != nil {
		log.Fatalf("Error registering cart endpoints: %s", err)
	}

	productStore, productStoreCleanup, err := mystore.New[products.Product](c)
	if err != nil {
		log.Fatalf("Error creating product store: %s", err)
	}
	defer productStoreCleanup()

	productService := products.NewService(productStore)
	err = productService.RegisterEndpoints(c, router)
	if err != nil {
		log.Fatalf("Error registering product endpoints: %s", err)
	}

	gateway, err := createPaymentGateway(c)
	if err != nil {
		log.Fatalf("Error creating payment gateway: %s", err)
	}

	orderStore, orderStoreCleanup, err := mystore.New[orders.PendingOrder](c)
	if err != nil {
		log.Fatalf("Error creating order store: %s", err)
	}
	defer orderStoreCleanup()

	orderService := orders.NewService(orderStore, myhttpclient.New(), queue, nower, os.Getenv("ORDER_SERVICE_URL"))
	orderService.RegisterEndpoints(c, router)

	sessionStore, sessionStoreCleanup, err := mystore.New[checkout.CheckoutSession](c)
	if err != nil {
		log.Fatalf("Error creating session store: %s", err)
	}
	defer sessionStoreCleanup()

	handoffStore, handoffStoreCleanup, err := mystore.New[checkout.HandoffRecord](c)
	if err != nil {
		log.Fatalf("Error creating handoff store: %s", err)
	}
	defer handoffStoreCleanup()

	checkoutService := checkout.NewService(sessionStore, handoffStore, cartStore, gateway, orderService, nower, uuider, publisher)
	err = checkoutService.RegisterEndpoints(c, router)
	if err != nil {
		log.Fatalf("Error registering checkout endpoints: %s", err)
	}

	startWebServerBlocking(router)
}

func createPaymentGateway(c context.Context) (checkout.PaymentGateway, error) {
	provider := strings.ToLower(os.Getenv("PAYMENT_PROVIDER"))

	switch provider {
	case "adyen":
		contextStore, _, err := checkoutadyen.NewPaymentContextStore(c)
		if err != nil {
			return nil, fmt.Errorf("error creating adyen context store: %s", err)
		}

		return checkoutadyen.NewGateway(checkoutadyen.Config{
			Environment:     os.Getenv("ADYEN_ENVIRONMENT"),
			ApiKey:          os.Getenv("ADYEN_API_KEY"),
			MerchantAccount: os.Getenv("ADYEN_MERCHANT_ACCOUNT"),
			ReturnURL:       os.Getenv("ADYEN_RETURN_URL"),
		}, checkoutadyen.NewPayer(os.Getenv("ADYEN_ENVIRONMENT"), os.Getenv("ADYEN_API_KEY")), contextStore)
	case "stripe", "":
		return checkoutstripe.NewGateway(os.Getenv("STRIPE_API_KEY"), checkoutstripe.NewPayer())
	default:
		return nil, fmt.Errorf("unknown payment provider %q", provider)
	}
}

func startWebServerBlocking(router *mux.Router) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting webserver on port %s (try http://localhost:%s)", port, port)
	err := http.ListenAndServe(fmt.Sprintf(":%s", port), router)
	if err != nil {
		log.Fatalf("Error starting webserver on port %s: %s", port, err)
	}
}
