package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/greenchoice/pkg/types"
)

var (
	ErrEntryNotFound   = errors.New("entry not found")
	ErrOptionsNotFound = errors.New("options not found")
	// ErrContractConfigured is returned by CreateEntry when an entry for the
	// contract already exists.
	ErrContractConfigured = errors.New("contract already configured")
)

// Database defines the interface for persisting entries and their options.
type Database interface {
	// Entries
	ListEntries(ctx context.Context) ([]types.Entry, error)
	GetEntry(ctx context.Context, contractID string) (types.Entry, error)
	// CreateEntry persists the entry together with its options. Either both
	// are stored or neither is.
	CreateEntry(ctx context.Context, entry types.Entry, options types.Options) error

	// Options
	GetOptions(ctx context.Context, contractID string) (types.Options, int, error)
	// SetOptions replaces the options of an existing entry.
	SetOptions(ctx context.Context, contractID string, options types.Options, version int) error

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore, memory)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "memory":
			p.Database = NewMemory()
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
