package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/raterudder/greenchoice/pkg/types"
)

type memoryOptions struct {
	options types.Options
	version int
}

// Memory implements Database in process memory. Nothing survives a restart.
type Memory struct {
	mu      sync.Mutex
	entries map[string]types.Entry
	options map[string]memoryOptions
}

var _ Database = (*Memory)(nil)

// NewMemory returns an empty Memory database.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]types.Entry),
		options: make(map[string]memoryOptions),
	}
}

// ListEntries returns all entries ordered by contract id.
func (m *Memory) ListEntries(ctx context.Context) ([]types.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]types.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ContractID < entries[j].ContractID
	})
	return entries, nil
}

func (m *Memory) GetEntry(ctx context.Context, contractID string) (types.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[contractID]
	if !ok {
		return types.Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, contractID)
	}
	return e, nil
}

// CreateEntry stores the entry and options under one lock.
func (m *Memory) CreateEntry(ctx context.Context, entry types.Entry, options types.Options) error {
	if entry.ContractID == "" {
		return fmt.Errorf("contractID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[entry.ContractID]; ok {
		return fmt.Errorf("%w: %s", ErrContractConfigured, entry.ContractID)
	}
	m.entries[entry.ContractID] = entry
	m.options[entry.ContractID] = memoryOptions{
		options: options,
		version: types.CurrentOptionsVersion,
	}
	return nil
}

func (m *Memory) GetOptions(ctx context.Context, contractID string) (types.Options, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.options[contractID]
	if !ok {
		return types.Options{}, 0, fmt.Errorf("%w: %s", ErrOptionsNotFound, contractID)
	}
	return o.options, o.version, nil
}

func (m *Memory) SetOptions(ctx context.Context, contractID string, options types.Options, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[contractID]; !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, contractID)
	}
	m.options[contractID] = memoryOptions{
		options: options,
		version: version,
	}
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
