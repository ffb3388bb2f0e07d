package flow

import (
	"context"
	"errors"

	"github.com/raterudder/greenchoice/pkg/types"
)

// ResultType is the outcome variant of a step.
type ResultType string

const (
	// ResultForm asks the host to render Form and submit it back.
	ResultForm ResultType = "form"
	// ResultCreated means the entry and its options were persisted.
	ResultCreated ResultType = "created"
	// ResultAborted means the flow ended without persisting anything.
	ResultAborted ResultType = "aborted"
	// ResultSaved means new options were persisted.
	ResultSaved ResultType = "saved"
)

// Error codes attached to forms.
const (
	ErrorLoginFailure        = "login_failure"
	ErrorRequired            = "required"
	ErrorInvalidContract     = "invalid_contract"
	ErrorInvalidScanInterval = "invalid_scan_interval"
)

// Abort reasons.
const (
	AbortNoAvailableContracts = "no_available_contracts"
	AbortAlreadyConfigured    = "already_configured"
	AbortAbandoned            = "abandoned"
)

// ErrFlowFinished is returned when stepping a flow that already ended.
var ErrFlowFinished = errors.New("flow already finished")

// Result is returned from every step. Only the fields of its Type are set.
type Result struct {
	Type   ResultType `json:"type"`
	StepID string     `json:"stepID,omitempty"`
	Form   *Form      `json:"form,omitempty"`
	Reason string     `json:"reason,omitempty"`

	Title      string         `json:"title,omitempty"`
	ContractID string         `json:"contractID,omitempty"`
	Options    *types.Options `json:"options,omitempty"`
}

// Done reports whether the result ends the flow.
func (r Result) Done() bool {
	return r.Type != ResultForm
}

func formResult(f *Form) Result {
	return Result{Type: ResultForm, StepID: f.StepID, Form: f}
}

func abortResult(reason string) Result {
	return Result{Type: ResultAborted, Reason: reason}
}

type asyncResult[T any] struct {
	v   T
	err error
}

// async runs fn on its own goroutine and waits for it to return or for ctx to
// be done, whichever happens first.
func async[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	ch := make(chan asyncResult[T], 1)
	go func() {
		v, err := fn(ctx)
		ch <- asyncResult[T]{v: v, err: err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
