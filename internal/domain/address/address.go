package address

import (
	"context"
	"strings"
)

// Address is an entry in the shopper's address book. The address-book
// collaborator guarantees at most one default per account.
type Address struct {
	ID        string
	FullName  string
	Street    string
	City      string
	State     string
	ZipCode   string
	Phone     string
	IsDefault bool
}

// Book is the read side of the address-book collaborator.
type Book interface {
	ListAddresses(ctx context.Context) ([]Address, error)
}

// Find returns the address with the given ID.
func Find(addrs []Address, id string) (Address, bool) {
	if id == "" {
		return Address{}, false
	}
	for _, a := range addrs {
		if a.ID == id {
			return a, true
		}
	}
	return Address{}, false
}

// Default returns the default address, if one is marked.
func Default(addrs []Address) (Address, bool) {
	for _, a := range addrs {
		if a.IsDefault {
			return a, true
		}
	}
	return Address{}, false
}

// NormalizeState upper-cases and trims a state code.
func NormalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}
