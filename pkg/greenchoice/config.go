package greenchoice

import (
	"fmt"

	"github.com/levenlabs/go-lflag"
)

// Configured sets up the account provider based on flags and returns the
// Connector used to create clients. The Connector must not be called before
// flags are parsed.
func Configured() Connector {
	provider := lflag.String("greenchoice-provider", "fixture", "Greenchoice account provider to use (available: fixture)")
	accounts := map[string]FixtureAccount{}
	lflag.JSON(&accounts, "greenchoice-fixture", accounts, "JSON map of username to fixture account for the fixture provider")

	var connect Connector

	lflag.Do(func() {
		switch *provider {
		case "fixture":
			connect = NewFixture(accounts).Connect
		default:
			panic(fmt.Sprintf("unknown greenchoice provider: %s", *provider))
		}
	})

	return func(username, password string) Client {
		return connect(username, password)
	}
}
