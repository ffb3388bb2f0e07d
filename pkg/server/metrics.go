package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/raterudder/greenchoice/pkg/flow"
)

var (
	flowsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "greenchoice_setup_flows_started_total",
		Help: "Setup flows started",
	})
	flowResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenchoice_setup_flow_results_total",
		Help: "Finished setup flows by result and abort reason",
	}, []string{"result", "reason"})
	stepErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenchoice_setup_step_errors_total",
		Help: "Steps that failed with an unexpected error",
	}, []string{"step"})
	optionsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "greenchoice_setup_options_saved_total",
		Help: "Options editor submissions that were saved",
	})
)

func observeResult(res flow.Result) {
	switch res.Type {
	case flow.ResultCreated, flow.ResultAborted:
		flowResults.WithLabelValues(string(res.Type), res.Reason).Inc()
	case flow.ResultSaved:
		optionsSaved.Inc()
	}
}
