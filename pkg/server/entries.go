package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/raterudder/greenchoice/pkg/flow"
	"github.com/raterudder/greenchoice/pkg/log"
	"github.com/raterudder/greenchoice/pkg/storage"
)

// entrySummary is an entry without its credentials.
type entrySummary struct {
	Title      string `json:"title"`
	Username   string `json:"username"`
	ContractID string `json:"overeenkomstID"`
	HasPower   bool   `json:"hasPower"`
	HasGas     bool   `json:"hasGas"`
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := s.storage.ListEntries(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list entries", slog.Any("error", err))
		writeJSONError(w, "failed to list entries", http.StatusInternalServerError)
		return
	}

	summaries := make([]entrySummary, 0, len(entries))
	for _, e := range entries {
		summaries = append(summaries, entrySummary{
			Title:      e.Title,
			Username:   e.Username,
			ContractID: e.ContractID,
			HasPower:   e.HasPower,
			HasGas:     e.HasGas,
		})
	}
	writeJSON(w, summaries)
}

func (s *Server) handleGetOptions(w http.ResponseWriter, r *http.Request) {
	s.stepOptions(w, r, nil)
}

func (s *Server) handleUpdateOptions(w http.ResponseWriter, r *http.Request) {
	input, err := decodeInput(r)
	if err != nil || input == nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.stepOptions(w, r, input)
}

// stepOptions runs a fresh options editor for one step. The editor keeps no
// state between requests so there is nothing to register.
func (s *Server) stepOptions(w http.ResponseWriter, r *http.Request, input flow.Input) {
	ctx := r.Context()
	contractID := r.PathValue("contractID")

	res, err := flow.NewOptionsEditor(contractID, s.storage).Step(ctx, input)
	if err != nil {
		if errors.Is(err, storage.ErrEntryNotFound) {
			writeJSONError(w, "entry not found", http.StatusNotFound)
			return
		}
		stepErrors.WithLabelValues(flow.StepInit).Inc()
		log.Ctx(ctx).ErrorContext(ctx, "options step failed", slog.String("contractID", contractID), slog.Any("error", err))
		writeJSONError(w, "failed to handle options", http.StatusInternalServerError)
		return
	}

	if res.Done() {
		observeResult(res)
	}
	writeJSON(w, res)
}
