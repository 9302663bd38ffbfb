// Package metrics holds the Prometheus collectors for upstream calls and flow outcomes.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oryfm"

var (
	HydraRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hydra_requests_total",
		Help:      "Admin API calls to the authorization server by flow, action and outcome.",
	}, []string{"flow", "action", "outcome"})

	FileMakerRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "filemaker_requests_total",
		Help:      "Identity store script executions by operation and outcome.",
	}, []string{"operation", "outcome"})

	FileMakerSessionAcquisitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "filemaker_session_acquisitions_total",
		Help:      "Identity store session token acquisitions by outcome.",
	}, []string{"outcome"})

	FlowOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "flow_outcomes_total",
		Help:      "Terminal and intermediate outcomes of the login, consent and logout flows.",
	}, []string{"flow", "outcome"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{HydraRequests, FileMakerRequests, FileMakerSessionAcquisitions, FlowOutcomes}
}

// Register adds every collector to reg (the default registerer when nil).
// Collectors already registered are skipped.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

// Handler exposes the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Outcome maps an error to the label value used by every collector here.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
