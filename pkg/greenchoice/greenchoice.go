package greenchoice

import (
	"context"
	"fmt"

	"github.com/raterudder/greenchoice/pkg/types"
)

// Client defines the interface for talking to a Greenchoice account.
type Client interface {
	// Login authenticates with the credentials the client was created with.
	// It returns an *AuthenticationError when the credentials are rejected or
	// the service cannot be reached.
	Login(ctx context.Context) error

	// GetOvereenkomsten lists the contracts of the logged in account in the
	// order the account returns them.
	GetOvereenkomsten(ctx context.Context) ([]types.Contract, error)

	// GetProducts returns what the given contract supplies.
	GetProducts(ctx context.Context, overeenkomstID int) (types.Products, error)
}

// Connector returns an unauthenticated Client for the given credentials.
type Connector func(username, password string) Client

// AuthenticationError is returned from Login when the account could not be
// logged into.
type AuthenticationError struct {
	Username string
	Err      error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("greenchoice login failed for %s", e.Username)
	}
	return fmt.Sprintf("greenchoice login failed for %s: %v", e.Username, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}
