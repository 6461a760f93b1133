package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the workflow counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	eligibilityDecisions *prometheus.CounterVec
	votesCast            *prometheus.CounterVec
	proposalTransitions  *prometheus.CounterVec
	voteWeightFallbacks  prometheus.Counter
	investmentsRecorded  prometheus.Counter
}

func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		eligibilityDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nexus",
			Name:      "eligibility_decisions_total",
			Help:      "Investment eligibility evaluations by outcome",
		}, []string{"result"}),
		votesCast: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nexus",
			Name:      "votes_cast_total",
			Help:      "Votes recorded by choice",
		}, []string{"choice"}),
		proposalTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nexus",
			Name:      "proposal_transitions_total",
			Help:      "Proposal status transitions by target status",
		}, []string{"status"}),
		voteWeightFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nexus",
			Name:      "vote_weight_fallbacks_total",
			Help:      "Votes weighted by the fallback policy because the oracle failed",
		}),
		investmentsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nexus",
			Name:      "investments_recorded_total",
			Help:      "Confirmed investments applied to investor totals",
		}),
	}
}

func (m *Metrics) ObserveEligibility(allowed bool) {
	if m == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.eligibilityDecisions.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveVote(choice string) {
	if m == nil {
		return
	}
	m.votesCast.WithLabelValues(choice).Inc()
}

func (m *Metrics) ObserveTransition(status string) {
	if m == nil {
		return
	}
	m.proposalTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveWeightFallback() {
	if m == nil {
		return
	}
	m.voteWeightFallbacks.Inc()
}

func (m *Metrics) ObserveInvestment() {
	if m == nil {
		return
	}
	m.investmentsRecorded.Inc()
}
