package checkoutapi

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	formcodec "github.com/go-playground/form/v4"

	"github.com/pawshop/storefront/lib/myerrors"
)

const (
	ShippingOptionShip   = "ship"
	ShippingOptionPickup = "pickup"
)

var (
	// RFC-shaped, not a full RFC 5322 parser: local@domain.tld
	emailPattern      = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	postalCodePattern = regexp.MustCompile(`^\d{4}$`)
)

type EmailForm struct {
	CustomerEmail string `form:"customerEmail"`
}

// Address captures the address-step input. The address fields are only
// meaningful when the shopper chose shipping; for pickup they are ignored.
type Address struct {
	FullName       string `form:"fullName"`
	ShippingOption string `form:"shippingOption"`
	AddressLine1   string `form:"addressLine1"`
	AddressLine2   string `form:"addressLine2"`
	City           string `form:"city"`
	PostalCode     string `form:"postalCode"`
}

func NewEmailFormFromRequest(r *http.Request) (EmailForm, error) {
	err := r.ParseForm()
	if err != nil {
		return EmailForm{}, myerrors.NewInvalidInputError(err)
	}

	return newEmailFormFromValues(r.Form)
}

func newEmailFormFromValues(values url.Values) (EmailForm, error) {
	f := EmailForm{}
	err := formcodec.NewDecoder().Decode(&f, values)
	if err != nil {
		return f, myerrors.NewInvalidInputError(fmt.Errorf("error decoding form: %s", err))
	}

	return f, nil
}

func (f EmailForm) Validate() error {
	if !emailPattern.MatchString(f.CustomerEmail) {
		return myerrors.NewInvalidInputError(fmt.Errorf("invalid email address"))
	}

	return nil
}

func NewAddressFromRequest(r *http.Request) (Address, error) {
	err := r.ParseForm()
	if err != nil {
		return Address{}, myerrors.NewInvalidInputError(err)
	}

	return newAddressFromValues(r.Form)
}

func newAddressFromValues(values url.Values) (Address, error) {
	a := Address{}
	err := formcodec.NewDecoder().Decode(&a, values)
	if err != nil {
		return a, myerrors.NewInvalidInputError(fmt.Errorf("error decoding form: %s", err))
	}

	return a, nil
}

func (a Address) Validate() error {
	switch a.ShippingOption {
	case ShippingOptionPickup:
		return nil
	case ShippingOptionShip:
		if a.AddressLine1 == "" {
			return myerrors.NewInvalidInputError(fmt.Errorf("missing addressLine1"))
		}
		if a.City == "" {
			return myerrors.NewInvalidInputError(fmt.Errorf("missing city"))
		}
		if !postalCodePattern.MatchString(a.PostalCode) {
			return myerrors.NewInvalidInputError(fmt.Errorf("postal code must be 4 digits"))
		}

		return nil
	default:
		return myerrors.NewInvalidInputError(fmt.Errorf("unknown shipping option %q", a.ShippingOption))
	}
}
