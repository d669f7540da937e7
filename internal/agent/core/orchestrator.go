package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dataworks-ops/automator/config"
	"github.com/dataworks-ops/automator/internal/capability"
	"github.com/dataworks-ops/automator/internal/conversation"
	"github.com/dataworks-ops/automator/internal/sandbox"
	"github.com/dataworks-ops/automator/internal/telemetry"
)

var orchestratorTracer trace.Tracer = otel.Tracer("automator/internal/agent/orchestrator")

// Orchestrator drives the decide → validate → invoke → record loop for one
// task at a time. Concurrent tasks run as independent flows: the registry,
// guard and decider are shared read-only, while the conversation log and
// RunState are owned by the single run they belong to.
type Orchestrator struct {
	cfg      *config.Config
	logger   *log.Logger
	registry *capability.Registry
	guard    *sandbox.Guard
	decider  Decider
	archive  Archive
}

// NewOrchestrator wires the orchestration core. archive may be nil.
func NewOrchestrator(cfg *config.Config, logger *log.Logger, registry *capability.Registry, guard *sandbox.Guard, decider Decider, archive Archive) (*Orchestrator, error) {
	if registry == nil || guard == nil || decider == nil {
		return nil, fmt.Errorf("registry, guard and decider are required")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		guard:    guard,
		decider:  decider,
		archive:  archive,
	}, nil
}

// NewTask accepts a task description into an immutable Task.
func NewTask(description, sessionID string) Task {
	if sessionID == "" {
		sessionID = "default"
	}
	return Task{
		ID:          uuid.NewString(),
		Description: description,
		SessionID:   sessionID,
		CreatedAt:   time.Now(),
	}
}

// Run executes one task to a terminal state. The returned error is non-nil
// only for Fatal runs; Exhausted is a terminal non-error and comes back in
// the report. Turns are strictly sequential: every capability decision is
// followed by exactly one observation before the next decision is requested.
func (o *Orchestrator) Run(ctx context.Context, task Task, convLog conversation.Log) (RunReport, error) {
	started := time.Now()
	ctx, span := orchestratorTracer.Start(ctx, "agent.run",
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.String("session.id", task.SessionID),
		))
	defer span.End()

	state := &RunState{
		IterationCap: o.cfg.Agent.IterationCap,
		Deadline:     started.Add(o.cfg.Agent.Deadline),
	}
	if o.cfg.Agent.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, state.Deadline)
		defer cancel()
	}

	if err := convLog.Append(ctx, conversation.Human(task.Description)); err != nil {
		return o.finish(ctx, task, convLog, state, started, RunReport{Status: StatusFatal, Error: fmt.Sprintf("record task: %v", err)}, span)
	}
	o.logger.Printf("run %s started: %.80q", task.ID, task.Description)

	parseFailures := 0
	for {
		if state.exhausted(time.Now()) {
			o.logger.Printf("run %s exhausted after %d iterations", task.ID, state.Iterations)
			return o.finish(ctx, task, convLog, state, started, RunReport{Status: StatusExhausted}, span)
		}

		decision, err := o.decide(ctx, task, convLog)
		if err != nil {
			if errors.Is(err, ErrMalformedDecision) {
				parseFailures++
				telemetry.DecisionParseFailures.Inc()
				if parseFailures > o.cfg.Agent.ParseRetries {
					return o.finish(ctx, task, convLog, state, started, RunReport{Status: StatusFatal, Error: fmt.Sprintf("decision function: %v", err)}, span)
				}
				// Feed the parse error back so the model can correct itself.
				if aerr := convLog.Append(ctx, conversation.Observation("", "", fmt.Sprintf("previous response could not be parsed: %v; respond with a single JSON object", err))); aerr != nil {
					return o.finish(ctx, task, convLog, state, started, RunReport{Status: StatusFatal, Error: aerr.Error()}, span)
				}
				continue
			}
			if ctx.Err() != nil {
				return o.finish(ctx, task, convLog, state, started, RunReport{Status: StatusExhausted}, span)
			}
			return o.finish(ctx, task, convLog, state, started, RunReport{Status: StatusFatal, Error: fmt.Sprintf("decision function: %v", err)}, span)
		}
		parseFailures = 0

		if decision.Final {
			if err := convLog.Append(ctx, conversation.Final(decision.Answer)); err != nil {
				return o.finish(ctx, task, convLog, state, started, RunReport{Status: StatusFatal, Error: err.Error()}, span)
			}
			o.logger.Printf("run %s finished in %d iterations", task.ID, state.Iterations)
			return o.finish(ctx, task, convLog, state, started, RunReport{Status: StatusSuccess, Answer: decision.Answer}, span)
		}

		state.Iterations++
		if err := convLog.Append(ctx, conversation.Decision(decision.Capability, decision.Args)); err != nil {
			return o.finish(ctx, task, convLog, state, started, RunReport{Status: StatusFatal, Error: err.Error()}, span)
		}

		obs := o.step(ctx, task, decision)
		if err := convLog.Append(ctx, obs); err != nil {
			return o.finish(ctx, task, convLog, state, started, RunReport{Status: StatusFatal, Error: err.Error()}, span)
		}
	}
}

func (o *Orchestrator) decide(ctx context.Context, task Task, convLog conversation.Log) (Decision, error) {
	window, err := convLog.Window(ctx, o.cfg.Agent.Window)
	if err != nil {
		return Decision{}, fmt.Errorf("conversation window: %w", err)
	}
	ctx, span := orchestratorTracer.Start(ctx, "agent.decide")
	defer span.End()
	decision, err := o.decider.Decide(ctx, task, window, o.registry.Descriptors())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Decision{}, err
	}
	return decision, nil
}

// step validates and invokes one capability decision, always producing
// exactly one observation. Rejections and failures are recoverable; the
// decision function sees them on the next iteration.
func (o *Orchestrator) step(ctx context.Context, task Task, decision Decision) conversation.Turn {
	ctx, span := orchestratorTracer.Start(ctx, "agent.invoke",
		trace.WithAttributes(attribute.String("capability", decision.Capability)))
	defer span.End()

	desc, ok := o.registry.Get(decision.Capability)
	if ok {
		if err := o.guard.Validate(desc, decision.Args); err != nil {
			telemetry.SandboxRejections.WithLabelValues(decision.Capability).Inc()
			span.SetStatus(codes.Error, err.Error())
			o.logger.Printf("run %s: %v", task.ID, err)
			return conversation.Observation(decision.Capability, "", err.Error())
		}
	}

	result := o.registry.Invoke(ctx, decision.Capability, decision.Args)
	outcome := "success"
	if !result.Success {
		outcome = "error"
		span.SetStatus(codes.Error, result.Error)
	}
	telemetry.CapabilityInvocations.WithLabelValues(decision.Capability, outcome).Inc()
	o.logger.Printf("run %s: %s -> %s", task.ID, decision.Capability, outcome)
	return conversation.Observation(decision.Capability, result.Output, result.Error)
}

// finish stamps the report, records metrics, archives the run and discards
// the RunState regardless of terminal status.
func (o *Orchestrator) finish(ctx context.Context, task Task, convLog conversation.Log, state *RunState, started time.Time, report RunReport, span trace.Span) (RunReport, error) {
	state.Terminal = true
	report.TaskID = task.ID
	report.SessionID = task.SessionID
	report.Iterations = state.Iterations
	report.Elapsed = time.Since(started)
	if report.Status == StatusExhausted && report.Answer == "" {
		report.Answer = fmt.Sprintf("budget exhausted after %d capability invocations without a final answer", state.Iterations)
	}

	telemetry.RunsTotal.WithLabelValues(string(report.Status)).Inc()
	span.SetAttributes(
		attribute.String("run.status", string(report.Status)),
		attribute.Int("run.iterations", report.Iterations),
	)
	if report.Status == StatusFatal {
		span.SetStatus(codes.Error, report.Error)
	} else {
		span.SetStatus(codes.Ok, string(report.Status))
	}

	if o.archive != nil && convLog != nil {
		// Archive from the full log, not the bounded window. The run may
		// have been cancelled, so archive on a detached context.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if turns, err := convLog.Full(saveCtx); err == nil {
			if err := o.archive.SaveRun(saveCtx, report, task, turns); err != nil {
				o.logger.Printf("run %s: archive failed: %v", task.ID, err)
			}
		}
	}

	if report.Status == StatusFatal {
		return report, errors.New(report.Error)
	}
	return report, nil
}

// RenderArgs is a compact JSON rendering of decision arguments for logs.
func RenderArgs(args map[string]interface{}) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(b)
}
