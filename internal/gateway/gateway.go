package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"

	"safe-command-gateway/internal/config"
	"safe-command-gateway/internal/executor"
	"safe-command-gateway/internal/monitor"
	"safe-command-gateway/internal/ratelimit"
	"safe-command-gateway/internal/safety"
	"safe-command-gateway/internal/storage"
)

// Request is a single execution request after transport decoding. Exactly one
// of Command and Script must be set.
type Request struct {
	Command string
	Script  string

	// TimeoutSeconds is the requested budget; zero means the configured
	// default. DeprecatedTimeoutSeconds is the legacy parameter name, honored
	// with a warning when the canonical one is absent.
	TimeoutSeconds           int
	DeprecatedTimeoutSeconds int

	WorkDir   string
	ClientID  string
	SessionID string

	// Confirmed acknowledges a RISKY or UNKNOWN verdict. Blocked commands
	// cannot be confirmed.
	Confirmed bool
}

// Response pairs the verdict with the execution result. Result is nil when
// classification alone was requested.
type Response struct {
	Verdict  safety.Verdict
	Result   *executor.Result
	Warnings []string
}

// InvocationRecorder receives completed invocation audit records. Satisfied
// by storage.JournalWriter; nil disables auditing.
type InvocationRecorder interface {
	RecordInvocation(inv *storage.Invocation)
}

// Gateway is the classification and execution pipeline: rate limit, validate,
// classify, refuse or supervise.
type Gateway struct {
	cfg        *config.Config
	classifier *safety.Classifier
	tracker    *safety.Tracker
	limiter    *ratelimit.Limiter
	supervisor *executor.Supervisor
	metrics    *monitor.Metrics
	tracer     *monitor.Tracer
	audit      InvocationRecorder
}

// New wires a gateway from its collaborators. limiter and audit may be nil.
func New(cfg *config.Config, classifier *safety.Classifier, tracker *safety.Tracker,
	limiter *ratelimit.Limiter, supervisor *executor.Supervisor,
	metrics *monitor.Metrics, audit InvocationRecorder) *Gateway {
	return &Gateway{
		cfg:        cfg,
		classifier: classifier,
		tracker:    tracker,
		limiter:    limiter,
		supervisor: supervisor,
		metrics:    metrics,
		tracer:     monitor.NewTracer(),
		audit:      audit,
	}
}

// Classify runs the safety cascade without executing anything.
func (g *Gateway) Classify(command string) safety.Verdict {
	return g.classifier.Classify(command)
}

// Threats returns the in-memory aggregate of UNKNOWN-verdict commands.
func (g *Gateway) Threats() []safety.ThreatEntry {
	return g.tracker.Entries()
}

// ActiveExecutions reports currently running supervised processes.
func (g *Gateway) ActiveExecutions() int64 {
	return g.supervisor.ActiveCount()
}

// Execute runs the full pipeline for req.
func (g *Gateway) Execute(ctx context.Context, req Request) (*Response, error) {
	return g.execute(ctx, req, nil, nil)
}

// ExecuteStreaming is Execute with live output mirrors.
func (g *Gateway) ExecuteStreaming(ctx context.Context, req Request, stdout, stderr io.Writer) (*Response, error) {
	return g.execute(ctx, req, stdout, stderr)
}

func (g *Gateway) execute(ctx context.Context, req Request, stdout, stderr io.Writer) (*Response, error) {
	ctx, span := g.tracer.StartSpan(ctx, "execute")
	defer span.End()

	if ref := g.checkRateLimit(req.ClientID); ref != nil {
		g.metrics.RateLimited.Inc()
		g.metrics.RecordRefusal("rate_limited")
		span.SetStatus(codes.Error, "rate limited")
		return nil, ref
	}

	command, timeout, warnings, err := g.validate(req)
	if err != nil {
		g.metrics.RecordRefusal("validation")
		return nil, err
	}
	g.metrics.CommandSizeBytes.Observe(float64(len(command)))

	verdict := g.classifier.Classify(command)
	span.SetAttributes(monitor.AttrLevel.String(verdict.Level.String()))

	logger := log.With().
		Str("client_id", req.ClientID).
		Str("level", verdict.Level.String()).
		Str("category", verdict.Category).
		Logger()

	if verdict.Blocked {
		logger.Warn().Str("reason", verdict.Reason).Msg("command blocked")
		g.metrics.RecordRefusal("blocked")
		g.recordRefusedInvocation(command, req, verdict, "refused")
		return nil, refuseVerdict(ErrBlocked, verdict)
	}

	if verdict.Level == safety.LevelUnknown {
		g.tracker.Record(req.SessionID, command, verdict)
		g.metrics.ThreatEvents.Inc()
	}

	if verdict.RequiresPrompt && !req.Confirmed {
		logger.Info().Msg("confirmation required")
		g.metrics.RecordRefusal("confirmation_required")
		g.recordRefusedInvocation(command, req, verdict, "refused")
		return nil, refuseVerdict(ErrConfirmationRequired, verdict)
	}

	pol := g.buildPolicy(timeout, req.WorkDir)
	pol.Warnings = append(pol.Warnings, warnings...)

	g.metrics.ActiveExecutions.Inc()
	var res *executor.Result
	if stdout != nil || stderr != nil {
		res, err = g.supervisor.RunStreaming(ctx, command, pol, stdout, stderr)
	} else {
		res, err = g.supervisor.Run(ctx, command, pol)
	}
	g.metrics.ActiveExecutions.Dec()

	if err != nil {
		g.metrics.RecordRefusal(refusalReason(err))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	g.recordExecution(command, req, verdict, res)
	span.SetAttributes(
		monitor.AttrInvocationID.String(res.ID),
		monitor.AttrDurationMS.Int64(res.DurationMS),
	)

	return &Response{Verdict: verdict, Result: res, Warnings: res.Warnings}, nil
}

// checkRateLimit consults the per-client token bucket. A nil limiter means
// rate limiting is disabled.
func (g *Gateway) checkRateLimit(clientID string) *Refusal {
	if g.limiter == nil {
		return nil
	}
	if clientID == "" {
		clientID = "anonymous"
	}
	decision := g.limiter.Allow(clientID)
	if decision.Allowed {
		return nil
	}
	ref := refuse(ErrRateLimited, fmt.Sprintf("client %q exceeded the request budget", clientID))
	ref.RetryAfterMS = decision.ResetMs
	return ref
}

// validate resolves the command text and timeout from the request.
func (g *Gateway) validate(req Request) (command string, timeout time.Duration, warnings []string, err error) {
	switch {
	case req.Command != "" && req.Script != "":
		return "", 0, nil, refuse(ErrValidation, "command and script are mutually exclusive")
	case req.Command != "":
		command = req.Command
	case req.Script != "":
		command = req.Script
	default:
		return "", 0, nil, refuse(ErrValidation, "one of command or script is required")
	}

	seconds := req.TimeoutSeconds
	if seconds == 0 && req.DeprecatedTimeoutSeconds != 0 {
		seconds = req.DeprecatedTimeoutSeconds
		warnings = append(warnings, "timeout_seconds is deprecated, use timeout")
	}
	if seconds < 0 {
		return "", 0, nil, refuse(ErrValidation, "timeout must not be negative")
	}
	if seconds == 0 {
		seconds = g.cfg.Executor.DefaultTimeoutSeconds
	}
	if seconds > g.cfg.Executor.MaxTimeoutSeconds {
		return "", 0, nil, refuse(ErrValidation,
			fmt.Sprintf("timeout %ds exceeds the maximum of %ds", seconds, g.cfg.Executor.MaxTimeoutSeconds))
	}
	return command, time.Duration(seconds) * time.Second, warnings, nil
}

func (g *Gateway) buildPolicy(timeout time.Duration, workDir string) executor.Policy {
	ex := g.cfg.Executor
	return executor.Policy{
		ConfiguredTimeout:    timeout,
		WatchdogGrace:        time.Duration(ex.WatchdogGraceSeconds) * time.Second,
		MaxOutputBytes:       ex.MaxOutputBytes,
		MaxOutputLines:       ex.MaxOutputLines,
		Overflow:             executor.StrategyFromEnv(executor.Strategy(ex.OverflowStrategy)),
		SelfTerminate:        ex.SelfTerminate,
		Adaptive:             ex.Adaptive.Enabled,
		AdaptiveExtendWindow: time.Duration(ex.Adaptive.ExtendWindowSeconds) * time.Second,
		AdaptiveExtendStep:   time.Duration(ex.Adaptive.ExtendStepSeconds) * time.Second,
		AdaptiveMaxTotal:     time.Duration(ex.Adaptive.MaxTotalSeconds) * time.Second,
		MaxCommandLength:     ex.MaxCommandLength,
		WorkDir:              workDir,
		WorkDirPolicy: executor.WorkDirPolicy{
			Enabled:      ex.WorkDir.Enabled,
			AllowedRoots: ex.WorkDir.AllowedRoots,
		},
	}
}

func (g *Gateway) recordExecution(command string, req Request, verdict safety.Verdict, res *executor.Result) {
	status := executionStatus(res)
	g.metrics.RecordExecution(verdict.Level.String(), status, float64(res.DurationMS)/1000)
	g.metrics.OutputSizeBytes.Observe(float64(len(res.Stdout) + len(res.Stderr)))
	if res.TimedOut {
		g.metrics.TimeoutsTotal.Inc()
	}
	if res.Overflow {
		g.metrics.RecordOverflow(res.OverflowStrategy)
	}

	if g.audit == nil {
		return
	}
	now := time.Now()
	created := now.Add(-time.Duration(res.DurationMS) * time.Millisecond)
	g.audit.RecordInvocation(&storage.Invocation{
		ID:          res.ID,
		CommandHash: safety.HashCommand(safety.Normalize(command)),
		Redacted:    safety.Redact(command),
		Level:       verdict.Level.String(),
		Category:    verdict.Category,
		ExitCode:    res.ExitCode,
		DurationMS:  res.DurationMS,
		TimedOut:    res.TimedOut,
		Truncated:   res.Truncated,
		Status:      status,
		ClientID:    req.ClientID,
		CreatedAt:   created,
		CompletedAt: &now,
	})
}

func (g *Gateway) recordRefusedInvocation(command string, req Request, verdict safety.Verdict, status string) {
	if g.audit == nil {
		return
	}
	g.audit.RecordInvocation(&storage.Invocation{
		ID:          uuid.New().String(),
		CommandHash: safety.HashCommand(safety.Normalize(command)),
		Redacted:    safety.Redact(command),
		Level:       verdict.Level.String(),
		Category:    verdict.Category,
		Blocked:     verdict.Blocked,
		Status:      status,
		ClientID:    req.ClientID,
		CreatedAt:   time.Now(),
	})
}

func executionStatus(res *executor.Result) string {
	switch {
	case res.TimedOut:
		return "timeout"
	case res.Overflow:
		return "overflow"
	case res.Success:
		return "success"
	default:
		return "failure"
	}
}

func refusalReason(err error) string {
	switch {
	case errors.Is(err, executor.ErrCommandTooLong):
		return "command_too_long"
	case errors.Is(err, executor.ErrWorkDirPolicy):
		return "workdir_policy"
	case errors.Is(err, executor.ErrSpawn):
		return "spawn_failed"
	default:
		return "internal"
	}
}
