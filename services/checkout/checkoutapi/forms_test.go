package checkoutapi

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmailValidation(t *testing.T) {
	testCases := []struct {
		email string
		valid bool
	}{
		{"shopper@example.com", true},
		{"a.b+c@sub.example.nl", true},
		{"", false},
		{"no-at-sign", false},
		{"two@@example.com", false},
		{"no-tld@example", false},
		{"spaces in@example.com", false},
	}
	for _, tc := range testCases {
		t.Run(tc.email, func(t *testing.T) {
			err := EmailForm{CustomerEmail: tc.email}.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestAddressValidation(t *testing.T) {
	testCases := []struct {
		name    string
		address Address
		valid   bool
	}{
		{
			name:    "pickup needs no address fields",
			address: Address{FullName: "M. Janssen", ShippingOption: "pickup"},
			valid:   true,
		},
		{
			name: "ship with complete address",
			address: Address{
				FullName:       "M. Janssen",
				ShippingOption: "ship",
				AddressLine1:   "Dorpsstraat 1",
				City:           "Utrecht",
				PostalCode:     "3512",
			},
			valid: true,
		},
		{
			name: "ship with 3-digit postal code is rejected",
			address: Address{
				ShippingOption: "ship",
				AddressLine1:   "Dorpsstraat 1",
				City:           "Utrecht",
				PostalCode:     "351",
			},
			valid: false,
		},
		{
			name: "ship without addressLine1 is rejected",
			address: Address{
				ShippingOption: "ship",
				City:           "Utrecht",
				PostalCode:     "3512",
			},
			valid: false,
		},
		{
			name: "ship without city is rejected",
			address: Address{
				ShippingOption: "ship",
				AddressLine1:   "Dorpsstraat 1",
				PostalCode:     "3512",
			},
			valid: false,
		},
		{
			name:    "unknown shipping option is rejected",
			address: Address{ShippingOption: "teleport"},
			valid:   false,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.address.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestAddressFormDecoding(t *testing.T) {
	values := url.Values{}
	values.Set("fullName", "M. Janssen")
	values.Set("shippingOption", "ship")
	values.Set("addressLine1", "Dorpsstraat 1")
	values.Set("addressLine2", "2nd floor")
	values.Set("city", "Utrecht")
	values.Set("postalCode", "3512")

	address, err := newAddressFromValues(values)

	assert.NoError(t, err)
	assert.Equal(t, "M. Janssen", address.FullName)
	assert.Equal(t, "2nd floor", address.AddressLine2)
	assert.NoError(t, address.Validate())
}
