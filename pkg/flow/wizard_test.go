package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raterudder/greenchoice/pkg/greenchoice"
	"github.com/raterudder/greenchoice/pkg/greenchoice/greenchoicemock"
	"github.com/raterudder/greenchoice/pkg/storage"
	"github.com/raterudder/greenchoice/pkg/storage/storagemock"
	"github.com/raterudder/greenchoice/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func credentials(u, p string) Input {
	return Input{FieldUsername: u, FieldPassword: p}
}

func contractOptions(t *testing.T, res Result) []SelectOption {
	t.Helper()
	require.Equal(t, ResultForm, res.Type)
	require.Equal(t, StepSetupOvereenkomst, res.StepID)
	fd, ok := res.Form.Field(FieldOvereenkomstID)
	require.True(t, ok)
	return fd.Options
}

func TestWizard(t *testing.T) {
	ctx := context.Background()

	t.Run("UserForm", func(t *testing.T) {
		api := &greenchoicemock.MockClient{}
		w := NewWizard("f1", api.Connector(nil), storage.NewMemory())

		res, err := w.Step(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, ResultForm, res.Type)
		assert.Equal(t, StepUser, res.StepID)
		assert.True(t, res.Form.Has(FieldUsername))
		assert.True(t, res.Form.Has(FieldPassword))
		username, _ := res.Form.Field(FieldUsername)
		assert.Equal(t, FieldTypeString, username.Type)
		password, _ := res.Form.Field(FieldPassword)
		assert.Equal(t, FieldTypePassword, password.Type)
		assert.True(t, password.Required)
		assert.Empty(t, res.Form.Errors)
		assert.Equal(t, StepUser, w.State())
		assert.Equal(t, "f1", w.ID())
		api.AssertNotCalled(t, "Login", mock.Anything)
	})

	t.Run("RequiredCredentials", func(t *testing.T) {
		api := &greenchoicemock.MockClient{}
		var calls [][2]string
		w := NewWizard("f", api.Connector(&calls), storage.NewMemory())

		res, err := w.Step(ctx, Input{FieldUsername: "  "})
		require.NoError(t, err)
		assert.Equal(t, ErrorRequired, res.Form.Errors[FieldUsername])
		assert.Equal(t, ErrorRequired, res.Form.Errors[FieldPassword])
		assert.Empty(t, calls)
		assert.Equal(t, StepUser, w.State())
	})

	t.Run("LoginFailure", func(t *testing.T) {
		api := &greenchoicemock.MockClient{}
		api.On("Login", mock.Anything).Return(&greenchoice.AuthenticationError{Username: "a"})
		store := &storagemock.MockDatabase{}
		var calls [][2]string
		w := NewWizard("f", api.Connector(&calls), store)

		res, err := w.Step(ctx, credentials("a", "bad"))
		require.NoError(t, err)
		assert.Equal(t, ResultForm, res.Type)
		assert.Equal(t, StepUser, res.StepID)
		assert.Equal(t, ErrorLoginFailure, res.Form.Errors[BaseError])
		assert.Equal(t, StepUser, w.State())
		assert.Equal(t, [][2]string{{"a", "bad"}}, calls)

		username, _ := res.Form.Field(FieldUsername)
		assert.Equal(t, "a", username.Default)
		password, _ := res.Form.Field(FieldPassword)
		assert.Nil(t, password.Default, "password must not be echoed")

		store.AssertNotCalled(t, "ListEntries", mock.Anything)
		store.AssertNotCalled(t, "CreateEntry", mock.Anything, mock.Anything, mock.Anything)
		api.AssertExpectations(t)
	})

	t.Run("LoginFailureWrapped", func(t *testing.T) {
		api := &greenchoicemock.MockClient{}
		api.On("Login", mock.Anything).Return(
			errors.Join(errors.New("context"), &greenchoice.AuthenticationError{Username: "a"}),
		)
		w := NewWizard("f", api.Connector(nil), storage.NewMemory())

		res, err := w.Step(ctx, credentials("a", "bad"))
		require.NoError(t, err)
		assert.Equal(t, ErrorLoginFailure, res.Form.Errors[BaseError])
	})

	t.Run("LoginUnexpectedError", func(t *testing.T) {
		api := &greenchoicemock.MockClient{}
		api.On("Login", mock.Anything).Return(assert.AnError)
		w := NewWizard("f", api.Connector(nil), storage.NewMemory())

		_, err := w.Step(ctx, credentials("a", "p"))
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, StepUser, w.State())
	})

	t.Run("LoginCanceled", func(t *testing.T) {
		block := make(chan time.Time)
		defer close(block)
		api := &greenchoicemock.MockClient{}
		api.On("Login", mock.Anything).WaitUntil(block).Return(nil).Maybe()
		w := NewWizard("f", api.Connector(nil), storage.NewMemory())

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := w.Step(cctx, credentials("a", "p"))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, StepUser, w.State())
	})

	t.Run("Created", func(t *testing.T) {
		api := &greenchoicemock.MockClient{}
		api.On("Login", mock.Anything).Return(nil).Once()
		api.On("GetOvereenkomsten", mock.Anything).Return([]types.Contract{{ID: "123", Label: "X"}}, nil)
		api.On("GetProducts", mock.Anything, 123).Return(types.Products{HasPower: true, HasGas: false}, nil).Once()
		store := storage.NewMemory()
		var calls [][2]string
		w := NewWizard("f", api.Connector(&calls), store)

		res, err := w.Step(ctx, credentials("a", "good"))
		require.NoError(t, err)
		assert.Equal(t, []SelectOption{{Value: "123", Label: "X"}}, contractOptions(t, res))
		assert.Equal(t, StepSetupOvereenkomst, w.State())

		res, err = w.Step(ctx, Input{FieldOvereenkomstID: "123"})
		require.NoError(t, err)
		assert.Equal(t, ResultCreated, res.Type)
		assert.Equal(t, "Greenchoice (123)", res.Title)
		assert.Equal(t, "123", res.ContractID)
		require.NotNil(t, res.Options)
		want := types.Options{
			ScanIntervalMinutes:     60,
			MeterstandStroomEnabled: true,
			MeterstandGasEnabled:    false,
			TarievenEnabled:         true,
		}
		assert.Equal(t, want, *res.Options)
		assert.Equal(t, StateCreated, w.State())
		assert.Nil(t, w.session, "session must be dropped")

		entries, err := store.ListEntries(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, types.Entry{
			Title:      "Greenchoice (123)",
			Username:   "a",
			Password:   "good",
			ContractID: "123",
			HasPower:   true,
			HasGas:     false,
		}, entries[0])

		opts, _, err := store.GetOptions(ctx, "123")
		require.NoError(t, err)
		assert.Equal(t, want, opts)

		// one login for the whole flow
		assert.Len(t, calls, 1)
		api.AssertExpectations(t)

		_, err = w.Step(ctx, nil)
		assert.ErrorIs(t, err, ErrFlowFinished)
	})

	t.Run("NumericContractID", func(t *testing.T) {
		api := &greenchoicemock.MockClient{}
		api.On("Login", mock.Anything).Return(nil)
		api.On("GetOvereenkomsten", mock.Anything).Return([]types.Contract{{ID: "0123", Label: "X"}}, nil)
		api.On("GetProducts", mock.Anything, 123).Return(types.Products{HasGas: true}, nil)
		store := storage.NewMemory()
		w := NewWizard("f", api.Connector(nil), store)

		res, err := w.Step(ctx, credentials("a", "good"))
		require.NoError(t, err)
		assert.Equal(t, []SelectOption{{Value: "123", Label: "X"}}, contractOptions(t, res))

		res, err = w.Step(ctx, Input{FieldOvereenkomstID: float64(123)})
		require.NoError(t, err)
		assert.Equal(t, ResultCreated, res.Type)
		assert.Equal(t, "123", res.ContractID)
	})

	t.Run("FiltersConfigured", func(t *testing.T) {
		store := storage.NewMemory()
		require.NoError(t, store.CreateEntry(ctx, types.Entry{ContractID: "123"}, types.DefaultOptions(true, true)))

		api := &greenchoicemock.MockClient{}
		api.On("Login", mock.Anything).Return(nil)
		api.On("GetOvereenkomsten", mock.Anything).Return([]types.Contract{
			{ID: "123", Label: "X"},
			{ID: "456", Label: "Y"},
			{ID: "789"},
		}, nil)
		w := NewWizard("f", api.Connector(nil), store)

		res, err := w.Step(ctx, credentials("a", "good"))
		require.NoError(t, err)
		assert.Equal(t, []SelectOption{
			{Value: "456", Label: "Y"},
			{Value: "789", Label: "789"},
		}, contractOptions(t, res))
	})

	t.Run("NoAvailableContracts", func(t *testing.T) {
		store := storage.NewMemory()
		require.NoError(t, store.CreateEntry(ctx, types.Entry{ContractID: "123"}, types.DefaultOptions(true, true)))

		api := &greenchoicemock.MockClient{}
		api.On("Login", mock.Anything).Return(nil)
		api.On("GetOvereenkomsten", mock.Anything).Return([]types.Contract{{ID: "123", Label: "X"}}, nil)
		w := NewWizard("f", api.Connector(nil), store)

		res, err := w.Step(ctx, credentials("a", "good"))
		require.NoError(t, err)
		assert.Equal(t, ResultAborted, res.Type)
		assert.Equal(t, AbortNoAvailableContracts, res.Reason)
		assert.True(t, res.Done())
		assert.Equal(t, StateAborted, w.State())
		assert.Equal(t, AbortNoAvailableContracts, w.Reason())

		entries, err := store.ListEntries(ctx)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "abort must not create anything")
		api.AssertNotCalled(t, "GetProducts", mock.Anything, mock.Anything)

		_, err = w.Step(ctx, Input{FieldOvereenkomstID: "123"})
		assert.ErrorIs(t, err, ErrFlowFinished)
	})

	t.Run("NoContractsAtAll", func(t *testing.T) {
		api := &greenchoicemock.MockClient{}
		api.On("Login", mock.Anything).Return(nil)
		api.On("GetOvereenkomsten", mock.Anything).Return(nil, nil)
		w := NewWizard("f", api.Connector(nil), storage.NewMemory())

		res, err := w.Step(ctx, credentials("a", "good"))
		require.NoError(t, err)
		assert.Equal(t, AbortNoAvailableContracts, res.Reason)
	})

	t.Run("ConfiguredBeforeSubmit", func(t *testing.T) {
		store := storage.NewMemory()
		api := &greenchoicemock.MockClient{}
		api.On("Login", mock.Anything).Return(nil)
		api.On("GetOvereenkomsten", mock.Anything).Return([]types.Contract{{ID: "123", Label: "X"}}, nil)
		w := NewWizard("f", api.Connector(nil), store)

		_, err := w.Step(ctx, credentials("a", "good"))
		require.NoError(t, err)

		// another flow finished first
		require.NoError(t, store.CreateEntry(ctx, types.Entry{ContractID: "123"}, types.DefaultOptions(true, true)))

		res, err := w.Step(ctx, Input{FieldOvereenkomstID: "123"})
		require.NoError(t, err)
		assert.Equal(t, ResultAborted, res.Type)
		assert.Equal(t, AbortAlreadyConfigured, res.Reason)
		api.AssertNotCalled(t, "GetProducts", mock.Anything, mock.Anything)
	})

	t.Run("ConfiguredDuringCreate", func(t *testing.T) {
		store := &storagemock.MockDatabase{}
		store.On("ListEntries", mock.Anything).Return([]types.Entry{}, nil)
		store.On("CreateEntry", mock.Anything, mock.Anything, mock.Anything).Return(storage.ErrContractConfigured)
		api := &greenchoicemock.MockClient{}
		api.On("Login", mock.Anything).Return(nil)
		api.On("GetOvereenkomsten", mock.Anything).Return([]types.Contract{{ID: "123", Label: "X"}}, nil)
		api.On("GetProducts", mock.Anything, 123).Return(types.Products{HasPower: true}, nil)
		w := NewWizard("f", api.Connector(nil), store)

		_, err := w.Step(ctx, credentials("a", "good"))
		require.NoError(t, err)
		res, err := w.Step(ctx, Input{FieldOvereenkomstID: "123"})
		require.NoError(t, err)
		assert.Equal(t, ResultAborted, res.Type)
		assert.Equal(t, AbortAlreadyConfigured, res.Reason)
		assert.Equal(t, StateAborted, w.State())
		store.AssertExpectations(t)
	})

	t.Run("CreateFails", func(t *testing.T) {
		store := &storagemock.MockDatabase{}
		store.On("ListEntries", mock.Anything).Return([]types.Entry{}, nil)
		store.On("CreateEntry", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)
		api := &greenchoicemock.MockClient{}
		api.On("Login", mock.Anything).Return(nil)
		api.On("GetOvereenkomsten", mock.Anything).Return([]types.Contract{{ID: "123", Label: "X"}}, nil)
		api.On("GetProducts", mock.Anything, 123).Return(types.Products{HasPower: true}, nil)
		w := NewWizard("f", api.Connector(nil), store)

		_, err := w.Step(ctx, credentials("a", "good"))
		require.NoError(t, err)
		_, err = w.Step(ctx, Input{FieldOvereenkomstID: "123"})
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, StepSetupOvereenkomst, w.State())
	})

	t.Run("ContractRequired", func(t *testing.T) {
		api := &greenchoicemock.MockClient{}
		api.On("Login", mock.Anything).Return(nil)
		api.On("GetOvereenkomsten", mock.Anything).Return([]types.Contract{{ID: "123", Label: "X"}}, nil)
		w := NewWizard("f", api.Connector(nil), storage.NewMemory())

		_, err := w.Step(ctx, credentials("a", "good"))
		require.NoError(t, err)
		res, err := w.Step(ctx, Input{})
		require.NoError(t, err)
		assert.Equal(t, ResultForm, res.Type)
		assert.Equal(t, ErrorRequired, res.Form.Errors[FieldOvereenkomstID])
		assert.Equal(t, StepSetupOvereenkomst, w.State())
	})

	t.Run("InvalidContract", func(t *testing.T) {
		api := &greenchoicemock.MockClient{}
		api.On("Login", mock.Anything).Return(nil)
		api.On("GetOvereenkomsten", mock.Anything).Return([]types.Contract{{ID: "123", Label: "X"}}, nil)
		store := storage.NewMemory()
		w := NewWizard("f", api.Connector(nil), store)

		_, err := w.Step(ctx, credentials("a", "good"))
		require.NoError(t, err)

		for _, id := range []string{"999", "abc"} {
			res, err := w.Step(ctx, Input{FieldOvereenkomstID: id})
			require.NoError(t, err)
			assert.Equal(t, ResultForm, res.Type)
			assert.Equal(t, ErrorInvalidContract, res.Form.Errors[FieldOvereenkomstID])
		}
		api.AssertNotCalled(t, "GetProducts", mock.Anything, mock.Anything)
		entries, _ := store.ListEntries(ctx)
		assert.Empty(t, entries)
	})

	t.Run("ProductsError", func(t *testing.T) {
		api := &greenchoicemock.MockClient{}
		api.On("Login", mock.Anything).Return(nil)
		api.On("GetOvereenkomsten", mock.Anything).Return([]types.Contract{{ID: "123", Label: "X"}}, nil)
		api.On("GetProducts", mock.Anything, 123).Return(types.Products{}, assert.AnError)
		store := storage.NewMemory()
		w := NewWizard("f", api.Connector(nil), store)

		_, err := w.Step(ctx, credentials("a", "good"))
		require.NoError(t, err)
		_, err = w.Step(ctx, Input{FieldOvereenkomstID: "123"})
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, StepSetupOvereenkomst, w.State())

		entries, _ := store.ListEntries(ctx)
		assert.Empty(t, entries)
	})

	t.Run("OvereenkomstenError", func(t *testing.T) {
		api := &greenchoicemock.MockClient{}
		api.On("Login", mock.Anything).Return(nil)
		api.On("GetOvereenkomsten", mock.Anything).Return(nil, assert.AnError)
		w := NewWizard("f", api.Connector(nil), storage.NewMemory())

		_, err := w.Step(ctx, credentials("a", "good"))
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("ListEntriesError", func(t *testing.T) {
		store := &storagemock.MockDatabase{}
		store.On("ListEntries", mock.Anything).Return(nil, assert.AnError)
		api := &greenchoicemock.MockClient{}
		api.On("Login", mock.Anything).Return(nil)
		api.On("GetOvereenkomsten", mock.Anything).Return([]types.Contract{{ID: "123"}}, nil)
		w := NewWizard("f", api.Connector(nil), store)

		_, err := w.Step(ctx, credentials("a", "good"))
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("Abandon", func(t *testing.T) {
		api := &greenchoicemock.MockClient{}
		api.On("Login", mock.Anything).Return(nil)
		api.On("GetOvereenkomsten", mock.Anything).Return([]types.Contract{{ID: "123", Label: "X"}}, nil)
		store := storage.NewMemory()
		w := NewWizard("f", api.Connector(nil), store)

		_, err := w.Step(ctx, credentials("a", "good"))
		require.NoError(t, err)
		require.NotNil(t, w.session)

		w.Abandon(ctx)
		assert.Equal(t, StateAborted, w.State())
		assert.Equal(t, AbortAbandoned, w.Reason())
		assert.Nil(t, w.session)

		entries, _ := store.ListEntries(ctx)
		assert.Empty(t, entries)

		// abandoning twice is fine
		w.Abandon(ctx)
		assert.Equal(t, StateAborted, w.State())
	})
}

func TestNormalizeContractID(t *testing.T) {
	assert.Equal(t, "123", normalizeContractID("123"))
	assert.Equal(t, "123", normalizeContractID(" 0123 "))
	assert.Equal(t, "abc", normalizeContractID("abc"))
}
