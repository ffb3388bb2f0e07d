package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/raterudder/greenchoice/pkg/flow"
	"github.com/raterudder/greenchoice/pkg/log"
)

type flowResponse struct {
	FlowID string `json:"flowID"`
	flow.Result
}

// decodeInput reads the submitted form values. An empty body means the form
// should be rendered instead of submitted and decodes to a nil Input.
func decodeInput(r *http.Request) (flow.Input, error) {
	var input flow.Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	if input == nil {
		// a literal null is still a submission
		input = flow.Input{}
	}
	return input, nil
}

func (s *Server) handleStartFlow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := s.newID()

	wiz := flow.NewWizard(id, s.connect, s.storage)
	res, err := wiz.Step(ctx, nil)
	if err != nil {
		stepErrors.WithLabelValues(flow.StepUser).Inc()
		log.Ctx(ctx).ErrorContext(ctx, "failed to start flow", slog.String("flowID", id), slog.Any("error", err))
		writeJSONError(w, "failed to start flow", http.StatusInternalServerError)
		return
	}
	flowsStarted.Inc()
	s.flows.Set(id, wiz)

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, flowResponse{FlowID: id, Result: res})
}

func (s *Server) handleStepFlow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("flowID")

	wiz, ok := s.flows.Load(id)
	if !ok {
		writeJSONError(w, "flow not found", http.StatusNotFound)
		return
	}

	input, err := decodeInput(r)
	if err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	step := (*wiz).State()
	res, err := (*wiz).Step(ctx, input)
	if err != nil {
		if errors.Is(err, flow.ErrFlowFinished) {
			writeJSONError(w, "flow already finished", http.StatusGone)
			return
		}
		stepErrors.WithLabelValues(step).Inc()
		log.Ctx(ctx).ErrorContext(ctx, "flow step failed", slog.String("flowID", id), slog.String("step", step), slog.Any("error", err))
		writeJSONError(w, "failed to handle step", http.StatusInternalServerError)
		return
	}

	if res.Done() {
		observeResult(res)
	}
	// finished flows stay around until they expire so repeated submissions
	// get a 410 rather than a 404
	s.flows.Set(id, *wiz)

	writeJSON(w, flowResponse{FlowID: id, Result: res})
}

func (s *Server) handleAbandonFlow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("flowID")

	wiz, ok := s.flows.Load(id)
	if !ok {
		writeJSONError(w, "flow not found", http.StatusNotFound)
		return
	}

	wasRunning := (*wiz).State() != flow.StateCreated && (*wiz).State() != flow.StateAborted
	(*wiz).Abandon(ctx)
	if wasRunning {
		flowResults.WithLabelValues(string(flow.ResultAborted), flow.AbortAbandoned).Inc()
		log.Ctx(ctx).InfoContext(ctx, "flow abandoned", slog.String("flowID", id))
	}

	w.WriteHeader(http.StatusNoContent)
}
