package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters exposed on /metrics. Registered once on the default registry.
var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automator_runs_total",
		Help: "Orchestration runs by terminal status",
	}, []string{"status"})

	CapabilityInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automator_capability_invocations_total",
		Help: "Capability invocations by name and outcome",
	}, []string{"capability", "outcome"})

	SandboxRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automator_sandbox_rejections_total",
		Help: "Sandbox guard rejections by capability",
	}, []string{"capability"})

	DecisionParseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automator_decision_parse_failures_total",
		Help: "Decision function responses that failed to parse",
	})
)
