package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/looplab/fsm"
	"github.com/raterudder/greenchoice/pkg/greenchoice"
	"github.com/raterudder/greenchoice/pkg/log"
	"github.com/raterudder/greenchoice/pkg/storage"
	"github.com/raterudder/greenchoice/pkg/types"
)

// Wizard steps and terminal states.
const (
	StepUser              = "user"
	StepSetupOvereenkomst = "setup_overeenkomst"
	StateCreated          = "created"
	StateAborted          = "aborted"
)

const (
	eventAuthenticated = "authenticated"
	eventCreate        = "create"
	eventAbort         = "abort"
)

// Field names of the wizard forms.
const (
	FieldUsername       = "username"
	FieldPassword       = "password"
	FieldOvereenkomstID = "overeenkomst_id"
)

// EntryStore is the part of the host persistence the wizard needs.
type EntryStore interface {
	ListEntries(ctx context.Context) ([]types.Entry, error)
	CreateEntry(ctx context.Context, entry types.Entry, options types.Options) error
}

// session is what the wizard collects between steps. It only exists between a
// successful login and the end of the flow.
type session struct {
	entry   types.Entry
	api     greenchoice.Client
	offered []types.Contract
}

// Wizard provisions a single entry: it logs into the account, lets the user
// pick one of the contracts that is not configured yet and persists the entry
// along with its default options.
//
// Steps must not be called concurrently; Step serializes callers that do.
type Wizard struct {
	id      string
	connect greenchoice.Connector
	store   EntryStore

	mu      sync.Mutex
	fsm     *fsm.FSM
	session *session
	reason  string
}

// NewWizard returns a wizard in the user step.
func NewWizard(id string, connect greenchoice.Connector, store EntryStore) *Wizard {
	w := &Wizard{
		id:      id,
		connect: connect,
		store:   store,
	}
	w.fsm = fsm.NewFSM(
		StepUser,
		fsm.Events{
			{Name: eventAuthenticated, Src: []string{StepUser}, Dst: StepSetupOvereenkomst},
			{Name: eventCreate, Src: []string{StepSetupOvereenkomst}, Dst: StateCreated},
			{Name: eventAbort, Src: []string{StepUser, StepSetupOvereenkomst}, Dst: StateAborted},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				log.Ctx(ctx).DebugContext(ctx, "wizard state changed", slog.String("from", e.Src), slog.String("to", e.Dst))
			},
			"enter_" + StateCreated: func(ctx context.Context, e *fsm.Event) {
				w.session = nil
			},
			"enter_" + StateAborted: func(ctx context.Context, e *fsm.Event) {
				w.session = nil
			},
		},
	)
	return w
}

// ID returns the id the wizard was created with.
func (w *Wizard) ID() string {
	return w.id
}

// State returns the current step or terminal state.
func (w *Wizard) State() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fsm.Current()
}

// Reason returns why the wizard was aborted, if it was.
func (w *Wizard) Reason() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reason
}

// Step handles the current step. A nil input renders the step's form without
// validating anything.
func (w *Wizard) Step(ctx context.Context, input Input) (Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx = log.WithAttrs(ctx, slog.String("flowID", w.id))

	switch w.fsm.Current() {
	case StepUser:
		return w.stepUser(ctx, input)
	case StepSetupOvereenkomst:
		return w.stepSetupOvereenkomst(ctx, input)
	default:
		return Result{}, ErrFlowFinished
	}
}

// Abandon ends the flow without persisting anything. It is a no-op on a
// finished wizard.
func (w *Wizard) Abandon(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx = log.WithAttrs(ctx, slog.String("flowID", w.id))
	if w.fsm.Can(eventAbort) {
		if _, err := w.abort(ctx, AbortAbandoned); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to abandon wizard", slog.Any("error", err))
		}
	}
	w.session = nil
}

func userForm(username string, errs map[string]string) *Form {
	return NewForm(StepUser).
		String(FieldUsername, true, username).
		Password(FieldPassword, true).
		Build(errs)
}

func (w *Wizard) stepUser(ctx context.Context, input Input) (Result, error) {
	if input == nil {
		return formResult(userForm("", nil)), nil
	}

	username, hasUsername := input.String(FieldUsername)
	password, hasPassword := input.Secret(FieldPassword)
	errs := map[string]string{}
	if !hasUsername {
		errs[FieldUsername] = ErrorRequired
	}
	if !hasPassword {
		errs[FieldPassword] = ErrorRequired
	}
	if len(errs) > 0 {
		return formResult(userForm(username, errs)), nil
	}

	api := w.connect(username, password)
	_, err := async(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, api.Login(ctx)
	})
	if err != nil {
		var authErr *greenchoice.AuthenticationError
		if errors.As(err, &authErr) {
			log.Ctx(ctx).WarnContext(ctx, "greenchoice login failed", slog.String("username", username), slog.Any("error", err))
			return formResult(userForm(username, map[string]string{BaseError: ErrorLoginFailure})), nil
		}
		return Result{}, fmt.Errorf("failed to login: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "greenchoice login success", slog.String("username", username))

	w.session = &session{
		entry: types.Entry{
			Username: username,
			Password: password,
		},
		api: api,
	}
	if err := w.fsm.Event(ctx, eventAuthenticated); err != nil {
		return Result{}, fmt.Errorf("failed to transition to %s: %w", StepSetupOvereenkomst, err)
	}
	return w.stepSetupOvereenkomst(ctx, nil)
}

func (w *Wizard) stepSetupOvereenkomst(ctx context.Context, input Input) (Result, error) {
	if input == nil {
		return w.contractForm(ctx, nil)
	}

	id, ok := input.String(FieldOvereenkomstID)
	if !ok {
		return w.contractForm(ctx, map[string]string{FieldOvereenkomstID: ErrorRequired})
	}
	id = normalizeContractID(id)

	// the contract may have been configured by another flow since the form
	// was rendered
	configured, err := w.configuredContracts(ctx)
	if err != nil {
		return Result{}, err
	}
	if configured[id] {
		log.Ctx(ctx).InfoContext(ctx, "overeenkomst configured since form was shown", slog.String("contractID", id))
		return w.abort(ctx, AbortAlreadyConfigured)
	}

	contract, offered := w.offeredContract(id)
	numericID, err := strconv.Atoi(id)
	if !offered || err != nil {
		log.Ctx(ctx).WarnContext(ctx, "invalid overeenkomst submitted", slog.String("contractID", id))
		return w.contractForm(ctx, map[string]string{FieldOvereenkomstID: ErrorInvalidContract})
	}

	api := w.session.api
	products, err := async(ctx, func(ctx context.Context) (types.Products, error) {
		return api.GetProducts(ctx, numericID)
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to get products for overeenkomst %d: %w", numericID, err)
	}

	entry := w.session.entry
	entry.ContractID = id
	entry.Title = types.EntryTitle(id)
	entry.HasPower = products.HasPower
	entry.HasGas = products.HasGas
	w.session.entry = entry
	options := types.DefaultOptions(products.HasPower, products.HasGas)

	if err := w.store.CreateEntry(ctx, entry, options); err != nil {
		if errors.Is(err, storage.ErrContractConfigured) {
			log.Ctx(ctx).InfoContext(ctx, "overeenkomst configured concurrently", slog.String("contractID", id))
			return w.abort(ctx, AbortAlreadyConfigured)
		}
		return Result{}, fmt.Errorf("failed to create entry: %w", err)
	}

	if err := w.fsm.Event(ctx, eventCreate); err != nil {
		return Result{}, fmt.Errorf("failed to transition to %s: %w", StateCreated, err)
	}
	log.Ctx(ctx).InfoContext(
		ctx,
		"created entry",
		slog.String("contractID", id),
		slog.String("label", contract.Label),
		slog.Bool("hasPower", entry.HasPower),
		slog.Bool("hasGas", entry.HasGas),
	)

	return Result{
		Type:       ResultCreated,
		Title:      entry.Title,
		ContractID: entry.ContractID,
		Options:    &options,
	}, nil
}

// contractForm lists the account's contracts that are not configured yet. It
// aborts the flow when none are left.
func (w *Wizard) contractForm(ctx context.Context, errs map[string]string) (Result, error) {
	contracts, err := async(ctx, w.session.api.GetOvereenkomsten)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get overeenkomsten: %w", err)
	}

	configured, err := w.configuredContracts(ctx)
	if err != nil {
		return Result{}, err
	}

	var available []types.Contract
	var options []SelectOption
	for _, c := range contracts {
		c.ID = normalizeContractID(c.ID)
		if configured[c.ID] {
			continue
		}
		available = append(available, c)
		label := c.Label
		if label == "" {
			label = c.ID
		}
		options = append(options, SelectOption{Value: c.ID, Label: label})
	}

	if len(available) == 0 {
		log.Ctx(ctx).InfoContext(ctx, "no available overeenkomsten", slog.Int("total", len(contracts)))
		return w.abort(ctx, AbortNoAvailableContracts)
	}
	w.session.offered = available

	form := NewForm(StepSetupOvereenkomst).
		Select(FieldOvereenkomstID, true, SelectDropdown, options, "").
		Build(errs)
	return formResult(form), nil
}

func (w *Wizard) configuredContracts(ctx context.Context) (map[string]bool, error) {
	entries, err := w.store.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	configured := make(map[string]bool, len(entries))
	for _, e := range entries {
		configured[normalizeContractID(e.ContractID)] = true
	}
	return configured, nil
}

func (w *Wizard) offeredContract(id string) (types.Contract, bool) {
	for _, c := range w.session.offered {
		if c.ID == id {
			return c, true
		}
	}
	return types.Contract{}, false
}

func (w *Wizard) abort(ctx context.Context, reason string) (Result, error) {
	w.reason = reason
	if err := w.fsm.Event(ctx, eventAbort); err != nil {
		return Result{}, fmt.Errorf("failed to abort: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "wizard aborted", slog.String("reason", reason))
	return abortResult(reason), nil
}

// normalizeContractID makes numeric ids comparable regardless of leading
// zeros or whitespace.
func normalizeContractID(id string) string {
	id = strings.TrimSpace(id)
	if n, err := strconv.Atoi(id); err == nil {
		return strconv.Itoa(n)
	}
	return id
}
