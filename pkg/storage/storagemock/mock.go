package storagemock

import (
	"context"

	"github.com/raterudder/greenchoice/pkg/storage"
	"github.com/raterudder/greenchoice/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) ListEntries(ctx context.Context) ([]types.Entry, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		if v := args.Get(0); v != nil {
			return v.([]types.Entry), args.Error(1)
		}
		return nil, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) GetEntry(ctx context.Context, contractID string) (types.Entry, error) {
	args := m.Called(ctx, contractID)
	if len(args) > 0 {
		return args.Get(0).(types.Entry), args.Error(1)
	}
	return types.Entry{}, nil
}

func (m *MockDatabase) CreateEntry(ctx context.Context, entry types.Entry, options types.Options) error {
	args := m.Called(ctx, entry, options)
	return args.Error(0)
}

func (m *MockDatabase) GetOptions(ctx context.Context, contractID string) (types.Options, int, error) {
	args := m.Called(ctx, contractID)
	// return empty if not specified, or checks args
	if len(args) > 0 {
		return args.Get(0).(types.Options), args.Int(1), args.Error(2)
	}
	return types.Options{}, 0, nil
}

func (m *MockDatabase) SetOptions(ctx context.Context, contractID string, options types.Options, version int) error {
	args := m.Called(ctx, contractID, options, version)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
