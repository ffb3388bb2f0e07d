package greenchoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/raterudder/greenchoice/pkg/log"
	"github.com/raterudder/greenchoice/pkg/types"
)

var (
	errInvalidCredentials = errors.New("invalid username or password")
	errNotLoggedIn        = errors.New("not logged in")
)

// FixtureAccount is a single account served by the fixture provider.
type FixtureAccount struct {
	Password  string                    `json:"password"`
	Contracts []types.Contract          `json:"contracts"`
	Products  map[string]types.Products `json:"products"`
}

// Fixture serves a fixed set of accounts keyed by username. It is used for
// development hosts and tests.
type Fixture struct {
	mu       sync.Mutex
	accounts map[string]FixtureAccount
}

// NewFixture returns a Fixture serving the given accounts.
func NewFixture(accounts map[string]FixtureAccount) *Fixture {
	if accounts == nil {
		accounts = map[string]FixtureAccount{}
	}
	return &Fixture{accounts: accounts}
}

// SetAccount adds or replaces an account.
func (f *Fixture) SetAccount(username string, account FixtureAccount) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[username] = account
}

// Connect implements Connector.
func (f *Fixture) Connect(username, password string) Client {
	return &fixtureClient{
		fixture:  f,
		username: username,
		password: password,
	}
}

type fixtureClient struct {
	fixture  *Fixture
	username string
	password string

	mu       sync.Mutex
	loggedIn bool
	account  FixtureAccount
}

func (c *fixtureClient) Login(ctx context.Context) error {
	c.fixture.mu.Lock()
	account, ok := c.fixture.accounts[c.username]
	c.fixture.mu.Unlock()

	if !ok || c.password == "" || account.Password != c.password {
		log.Ctx(ctx).DebugContext(ctx, "fixture login rejected", slog.String("username", c.username))
		return &AuthenticationError{Username: c.username, Err: errInvalidCredentials}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggedIn = true
	c.account = account
	log.Ctx(ctx).DebugContext(ctx, "fixture login success", slog.String("username", c.username))
	return nil
}

func (c *fixtureClient) GetOvereenkomsten(ctx context.Context) ([]types.Contract, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loggedIn {
		return nil, errNotLoggedIn
	}
	contracts := make([]types.Contract, len(c.account.Contracts))
	copy(contracts, c.account.Contracts)
	return contracts, nil
}

func (c *fixtureClient) GetProducts(ctx context.Context, overeenkomstID int) (types.Products, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loggedIn {
		return types.Products{}, errNotLoggedIn
	}
	p, ok := c.account.Products[strconv.Itoa(overeenkomstID)]
	if !ok {
		return types.Products{}, fmt.Errorf("unknown overeenkomst: %d", overeenkomstID)
	}
	return p, nil
}
