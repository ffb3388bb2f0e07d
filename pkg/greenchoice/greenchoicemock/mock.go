package greenchoicemock

import (
	"context"

	"github.com/raterudder/greenchoice/pkg/greenchoice"
	"github.com/raterudder/greenchoice/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockClient struct {
	mock.Mock
}

var _ greenchoice.Client = (*MockClient)(nil)

func (m *MockClient) Login(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockClient) GetOvereenkomsten(ctx context.Context) ([]types.Contract, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]types.Contract), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) GetProducts(ctx context.Context, overeenkomstID int) (types.Products, error) {
	args := m.Called(ctx, overeenkomstID)
	return args.Get(0).(types.Products), args.Error(1)
}

// Connector returns a greenchoice.Connector that always hands out m and
// records the credentials it was called with.
func (m *MockClient) Connector(calls *[][2]string) greenchoice.Connector {
	return func(username, password string) greenchoice.Client {
		if calls != nil {
			*calls = append(*calls, [2]string{username, password})
		}
		return m
	}
}
