package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/looplab/fsm"
	"github.com/raterudder/greenchoice/pkg/log"
	"github.com/raterudder/greenchoice/pkg/storage"
	"github.com/raterudder/greenchoice/pkg/types"
)

const (
	StepInit   = "init"
	StateSaved = "saved"

	eventSave = "save"
)

// Field names of the options form.
const (
	FieldScanInterval     = "scan_interval"
	FieldMeterstandStroom = "meterstand_stroom_enabled"
	FieldMeterstandGas    = "meterstand_gas_enabled"
	FieldTarieven         = "tarieven_enabled"
)

// OptionsStore is the part of the host persistence the options editor needs.
type OptionsStore interface {
	GetEntry(ctx context.Context, contractID string) (types.Entry, error)
	GetOptions(ctx context.Context, contractID string) (types.Options, int, error)
	SetOptions(ctx context.Context, contractID string, options types.Options, version int) error
}

// OptionsEditor edits the options of an existing entry in a single step.
type OptionsEditor struct {
	contractID string
	store      OptionsStore

	mu  sync.Mutex
	fsm *fsm.FSM
}

// NewOptionsEditor returns an editor for the entry of contractID.
func NewOptionsEditor(contractID string, store OptionsStore) *OptionsEditor {
	return &OptionsEditor{
		contractID: contractID,
		store:      store,
		fsm: fsm.NewFSM(
			StepInit,
			fsm.Events{
				{Name: eventSave, Src: []string{StepInit}, Dst: StateSaved},
			},
			fsm.Callbacks{
				"enter_state": func(ctx context.Context, e *fsm.Event) {
					log.Ctx(ctx).DebugContext(ctx, "options editor state changed", slog.String("from", e.Src), slog.String("to", e.Dst))
				},
			},
		),
	}
}

// State returns the current state of the editor.
func (e *OptionsEditor) State() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fsm.Current()
}

// Step renders the options form for a nil input, otherwise it validates the
// input and replaces the stored options with it.
func (e *OptionsEditor) Step(ctx context.Context, input Input) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.fsm.Current() != StepInit {
		return Result{}, ErrFlowFinished
	}
	ctx = log.WithAttrs(ctx, slog.String("contractID", e.contractID))

	entry, err := e.store.GetEntry(ctx, e.contractID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get entry: %w", err)
	}
	current, err := e.currentOptions(ctx, entry)
	if err != nil {
		return Result{}, err
	}

	if input == nil {
		return formResult(optionsForm(entry, current, nil)), nil
	}

	scanInterval := current.ScanIntervalMinutes
	if input.Has(FieldScanInterval) {
		v, ok := input.Int(FieldScanInterval)
		if !ok || !types.ValidScanInterval(v) {
			return formResult(optionsForm(entry, current, map[string]string{FieldScanInterval: ErrorInvalidScanInterval})), nil
		}
		scanInterval = v
	}

	tarieven, ok := input.Bool(FieldTarieven)
	if !ok {
		return formResult(optionsForm(entry, current, map[string]string{FieldTarieven: ErrorRequired})), nil
	}

	// toggles that are missing or were never rendered are off
	stroom, _ := input.Bool(FieldMeterstandStroom)
	gas, _ := input.Bool(FieldMeterstandGas)

	next := types.Options{
		ScanIntervalMinutes:     scanInterval,
		MeterstandStroomEnabled: entry.HasPower && stroom,
		MeterstandGasEnabled:    entry.HasGas && gas,
		TarievenEnabled:         tarieven,
	}
	if err := e.store.SetOptions(ctx, e.contractID, next, types.CurrentOptionsVersion); err != nil {
		return Result{}, fmt.Errorf("failed to save options: %w", err)
	}
	if err := e.fsm.Event(ctx, eventSave); err != nil {
		return Result{}, fmt.Errorf("failed to transition to %s: %w", StateSaved, err)
	}
	log.Ctx(ctx).InfoContext(
		ctx,
		"saved options",
		slog.Int("scanInterval", next.ScanIntervalMinutes),
		slog.Bool("meterstandStroom", next.MeterstandStroomEnabled),
		slog.Bool("meterstandGas", next.MeterstandGasEnabled),
		slog.Bool("tarieven", next.TarievenEnabled),
	)

	return Result{
		Type:       ResultSaved,
		Title:      entry.Title,
		ContractID: e.contractID,
		Options:    &next,
	}, nil
}

func (e *OptionsEditor) currentOptions(ctx context.Context, entry types.Entry) (types.Options, error) {
	o, version, err := e.store.GetOptions(ctx, e.contractID)
	if errors.Is(err, storage.ErrOptionsNotFound) {
		return types.DefaultOptions(entry.HasPower, entry.HasGas), nil
	}
	if err != nil {
		return types.Options{}, fmt.Errorf("failed to get options: %w", err)
	}
	if version < types.CurrentOptionsVersion {
		migrated, changed, err := types.MigrateOptions(o, version)
		if err != nil {
			// best effort, the form still works with what is stored
			log.Ctx(ctx).ErrorContext(ctx, "failed to migrate options", slog.Int("currentVersion", version), slog.Any("error", err))
		} else if changed {
			log.Ctx(ctx).InfoContext(ctx, "migrated options", slog.Int("oldVersion", version), slog.Int("newVersion", types.CurrentOptionsVersion))
			o = migrated
		}
	}
	return o, nil
}

// optionsForm only renders the meter toggles for capabilities the entry has.
func optionsForm(entry types.Entry, current types.Options, errs map[string]string) *Form {
	intervals := make([]SelectOption, 0, len(types.ScanIntervals))
	for _, si := range types.ScanIntervals {
		intervals = append(intervals, SelectOption{Value: strconv.Itoa(si.Minutes), Label: si.Label})
	}

	b := NewForm(StepInit).
		Select(FieldScanInterval, false, SelectList, intervals, strconv.Itoa(current.ScanIntervalMinutes))
	if entry.HasPower {
		b.Bool(FieldMeterstandStroom, true, current.MeterstandStroomEnabled)
	}
	if entry.HasGas {
		b.Bool(FieldMeterstandGas, true, current.MeterstandGasEnabled)
	}
	b.Bool(FieldTarieven, true, current.TarievenEnabled)
	return b.Build(errs)
}
