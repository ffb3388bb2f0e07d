package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/greenchoice/pkg/log"
	"github.com/raterudder/greenchoice/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const entriesCollection = "entries"

// FirestoreProvider implements the Database interface using Google Cloud Firestore.
// Each entry is a document in "entries" keyed by contract id, with its options
// in the "config/options" document below it.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// Project ID may be empty, it is detected from the environment.
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) entryRef(contractID string) (*firestore.DocumentRef, error) {
	if contractID == "" {
		return nil, fmt.Errorf("contractID cannot be empty")
	}
	return f.client.Collection(entriesCollection).Doc(contractID), nil
}

func (f *FirestoreProvider) optionsRef(contractID string) (*firestore.DocumentRef, error) {
	ref, err := f.entryRef(contractID)
	if err != nil {
		return nil, err
	}
	return ref.Collection("config").Doc("options"), nil
}

func decodeJSONField(doc *firestore.DocumentSnapshot, dest interface{}) error {
	val, err := doc.DataAt("json")
	if err != nil {
		return fmt.Errorf("document %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		return fmt.Errorf("document %s 'json' field is not a string", doc.Ref.ID)
	}
	if err := json.Unmarshal([]byte(jsonStr), dest); err != nil {
		return fmt.Errorf("failed to unmarshal document %s: %w", doc.Ref.ID, err)
	}
	return nil
}

// ListEntries retrieves all entries from the "entries" collection.
func (f *FirestoreProvider) ListEntries(ctx context.Context) ([]types.Entry, error) {
	iter := f.client.Collection(entriesCollection).Documents(ctx)
	defer iter.Stop()

	var entries []types.Entry
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating entries: %w", err)
		}

		var entry types.Entry
		if err := decodeJSONField(doc, &entry); err != nil {
			// the document id is still the contract id so we can keep the
			// uniqueness guarantee even if its body is unreadable
			log.Ctx(ctx).WarnContext(ctx, "malformed entry doc", slog.String("contractID", doc.Ref.ID), slog.Any("err", err))
			entry = types.Entry{ContractID: doc.Ref.ID}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetEntry retrieves a single entry by contract id.
func (f *FirestoreProvider) GetEntry(ctx context.Context, contractID string) (types.Entry, error) {
	ref, err := f.entryRef(contractID)
	if err != nil {
		return types.Entry{}, err
	}
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, contractID)
		}
		return types.Entry{}, fmt.Errorf("failed to get entry %s: %w", contractID, err)
	}

	var entry types.Entry
	if err := decodeJSONField(doc, &entry); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode entry", slog.String("contractID", contractID), slog.Any("err", err))
		return types.Entry{}, err
	}
	return entry, nil
}

// CreateEntry creates the entry and its options in a single transaction.
// Creating a document that already exists fails the whole transaction so a
// contract can never be provisioned twice.
func (f *FirestoreProvider) CreateEntry(ctx context.Context, entry types.Entry, options types.Options) error {
	entryRef, err := f.entryRef(entry.ContractID)
	if err != nil {
		return err
	}
	optionsRef, err := f.optionsRef(entry.ContractID)
	if err != nil {
		return err
	}

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	err = f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(entryRef, map[string]interface{}{
			"json":  string(entryJSON),
			"title": entry.Title,
		}); err != nil {
			return err
		}
		return tx.Create(optionsRef, map[string]interface{}{
			"json":    string(optionsJSON),
			"version": types.CurrentOptionsVersion,
		})
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("%w: %s", ErrContractConfigured, entry.ContractID)
		}
		return fmt.Errorf("failed to create entry %s: %w", entry.ContractID, err)
	}
	return nil
}

// GetOptions retrieves the options of an entry along with their version.
func (f *FirestoreProvider) GetOptions(ctx context.Context, contractID string) (types.Options, int, error) {
	ref, err := f.optionsRef(contractID)
	if err != nil {
		return types.Options{}, 0, err
	}
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Options{}, 0, fmt.Errorf("%w: %s", ErrOptionsNotFound, contractID)
		}
		return types.Options{}, 0, fmt.Errorf("failed to fetch options doc: %w", err)
	}

	// Read version if available (default 0)
	var version int
	if v, err := doc.DataAt("version"); err == nil {
		if vInt, ok := v.(int64); ok {
			version = int(vInt)
		}
	}

	var o types.Options
	if err := decodeJSONField(doc, &o); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode options", slog.String("contractID", contractID), slog.Any("err", err))
		return types.Options{}, 0, err
	}
	return o, version, nil
}

// SetOptions overwrites the "config/options" document of an existing entry.
func (f *FirestoreProvider) SetOptions(ctx context.Context, contractID string, options types.Options, version int) error {
	entryRef, err := f.entryRef(contractID)
	if err != nil {
		return err
	}
	optionsRef, err := f.optionsRef(contractID)
	if err != nil {
		return err
	}
	jsonBytes, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	err = f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(entryRef); err != nil {
			return err
		}
		return tx.Set(optionsRef, map[string]interface{}{
			"json":    string(jsonBytes),
			"version": version,
		})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, contractID)
		}
		return fmt.Errorf("failed to set options: %w", err)
	}
	return nil
}
