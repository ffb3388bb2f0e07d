package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/raterudder/greenchoice/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirestoreProvider(t *testing.T) {
	// Requires the firestore emulator on localhost:8087
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")

	// Use a test project ID
	projectID := "test-project-id"

	// Use a random database for isolation
	randDB := fmt.Sprintf("test-db-%d", time.Now().UnixNano())
	f := &FirestoreProvider{
		projectID: projectID,
		database:  randDB,
	}

	ctx := context.Background()
	require.NoError(t, f.Init(ctx))
	defer f.Close()

	t.Run("Validate", func(t *testing.T) {
		require.NoError(t, f.Validate())
	})

	t.Run("EmptyContractID", func(t *testing.T) {
		_, err := f.GetEntry(ctx, "")
		assert.ErrorContains(t, err, "contractID cannot be empty")
		_, _, err = f.GetOptions(ctx, "")
		assert.ErrorContains(t, err, "contractID cannot be empty")
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := f.GetEntry(ctx, "missing")
		assert.ErrorIs(t, err, ErrEntryNotFound)
		_, _, err = f.GetOptions(ctx, "missing")
		assert.ErrorIs(t, err, ErrOptionsNotFound)
		err = f.SetOptions(ctx, "missing", types.DefaultOptions(true, true), types.CurrentOptionsVersion)
		assert.ErrorIs(t, err, ErrEntryNotFound)
	})

	t.Run("Entries", func(t *testing.T) {
		entry := types.Entry{
			Title:      types.EntryTitle("123"),
			Username:   "user@example.com",
			Password:   "secret",
			ContractID: "123",
			HasPower:   true,
			HasGas:     false,
		}
		opts := types.DefaultOptions(true, false)
		require.NoError(t, f.CreateEntry(ctx, entry, opts))

		t.Run("GetEntry", func(t *testing.T) {
			got, err := f.GetEntry(ctx, "123")
			require.NoError(t, err)
			assert.Equal(t, entry, got)
		})

		t.Run("GetOptions", func(t *testing.T) {
			got, version, err := f.GetOptions(ctx, "123")
			require.NoError(t, err)
			assert.Equal(t, opts, got)
			assert.Equal(t, types.CurrentOptionsVersion, version)
		})

		t.Run("Duplicate", func(t *testing.T) {
			err := f.CreateEntry(ctx, entry, types.DefaultOptions(false, false))
			assert.ErrorIs(t, err, ErrContractConfigured)

			got, _, err := f.GetOptions(ctx, "123")
			require.NoError(t, err)
			assert.Equal(t, opts, got, "duplicate create must not touch options")
		})

		t.Run("SetOptions", func(t *testing.T) {
			next := types.Options{ScanIntervalMinutes: 10080, TarievenEnabled: false}
			require.NoError(t, f.SetOptions(ctx, "123", next, types.CurrentOptionsVersion))

			got, _, err := f.GetOptions(ctx, "123")
			require.NoError(t, err)
			assert.Equal(t, next, got)
		})

		t.Run("ListEntries", func(t *testing.T) {
			require.NoError(t, f.CreateEntry(ctx, types.Entry{ContractID: "456", HasGas: true}, types.DefaultOptions(false, true)))

			entries, err := f.ListEntries(ctx)
			require.NoError(t, err)

			ids := map[string]bool{}
			for _, e := range entries {
				ids[e.ContractID] = true
			}
			assert.True(t, ids["123"], "ListEntries did not return 123")
			assert.True(t, ids["456"], "ListEntries did not return 456")
		})
	})
}
