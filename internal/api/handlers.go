package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"safe-command-gateway/internal/executor"
	"safe-command-gateway/internal/gateway"
	"safe-command-gateway/internal/safety"
	"safe-command-gateway/internal/storage"
)

type Handlers struct {
	gw *gateway.Gateway
	db *storage.DB
}

func NewHandlers(gw *gateway.Gateway, db *storage.DB) *Handlers {
	return &Handlers{gw: gw, db: db}
}

// clientID identifies the caller for rate limiting: explicit header first,
// API key next, remote address last.
func clientID(r *http.Request) string {
	if id := r.Header.Get("X-Client-ID"); id != "" {
		return id
	}
	if key, ok := r.Context().Value(contextKeyAPIKey).(string); ok && key != "" {
		return key
	}
	return r.RemoteAddr
}

func (h *Handlers) decodeExecute(w http.ResponseWriter, r *http.Request) (gateway.Request, bool) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return gateway.Request{}, false
	}
	return gateway.Request{
		Command:                  req.Command,
		Script:                   req.Script,
		TimeoutSeconds:           req.Timeout,
		DeprecatedTimeoutSeconds: req.TimeoutSeconds,
		WorkDir:                  req.WorkDir,
		ClientID:                 clientID(r),
		SessionID:                req.SessionID,
		Confirmed:                req.Confirmed,
	}, true
}

func (h *Handlers) HandleExecute(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeExecute(w, r)
	if !ok {
		return
	}

	resp, err := h.gw.Execute(r.Context(), req)
	if err != nil {
		writeGatewayError(w, err, r)
		return
	}

	writeJSON(w, http.StatusOK, executeResponse(resp))
}

func (h *Handlers) HandleExecuteStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeExecute(w, r)
	if !ok {
		return
	}

	stream := NewEventStream(w)
	if stream == nil {
		writeError(w, "streaming not supported", "STREAMING_UNSUPPORTED", http.StatusInternalServerError, r)
		return
	}

	// Commit to the stream before execution starts; refusals arrive as SSE
	// error events rather than JSON bodies.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	resp, err := h.gw.ExecuteStreaming(r.Context(), req, stream.Writer("stdout"), stream.Writer("stderr"))
	if err != nil {
		log.Warn().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("streaming execution refused or failed")
		stream.Error(err.Error())
		return
	}

	doneData, _ := json.Marshal(executeResponse(resp))
	stream.Done(string(doneData))
}

func (h *Handlers) HandleClassify(w http.ResponseWriter, r *http.Request) {
	command := r.URL.Query().Get("command")
	if command == "" {
		writeError(w, "command query parameter is required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	verdict := h.gw.Classify(command)
	writeJSON(w, http.StatusOK, verdictPayload(verdict))
}

func (h *Handlers) HandleThreats(w http.ResponseWriter, r *http.Request) {
	entries := h.gw.Threats()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})

	out := make([]ThreatSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, ThreatSummary{
			CommandHash: safety.HashCommand(e.Normalized),
			Redacted:    safety.Redact(e.Normalized),
			SessionID:   e.SessionID,
			Risk:        e.Risk.String(),
			Count:       e.Count,
			FirstSeen:   e.FirstSeen.Format(time.RFC3339),
			LastSeen:    e.LastSeen.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) HandleGetInvocation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "invocation ID required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if h.db == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	inv, err := h.db.GetInvocation(r.Context(), id)
	if err != nil {
		writeError(w, "invocation not found", "NOT_FOUND", http.StatusNotFound, r)
		return
	}

	writeJSON(w, http.StatusOK, inv)
}

func (h *Handlers) HandleListInvocations(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	filter := storage.InvocationFilter{
		Level:  r.URL.Query().Get("level"),
		Status: r.URL.Query().Get("status"),
		Limit:  100,
	}

	invs, err := h.db.ListInvocations(r.Context(), filter)
	if err != nil {
		writeError(w, "query failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}

	writeJSON(w, http.StatusOK, invs)
}

func verdictPayload(v safety.Verdict) VerdictPayload {
	return VerdictPayload{
		Level:           v.Level.String(),
		Risk:            v.Risk.String(),
		Category:        v.Category,
		Reason:          v.Reason,
		Blocked:         v.Blocked,
		RequiresPrompt:  v.RequiresPrompt,
		MatchedPatterns: v.MatchedPatterns,
		Recommendations: v.Recommendations,
	}
}

func executeResponse(resp *gateway.Response) ExecuteResponse {
	res := resp.Result
	return ExecuteResponse{
		ID:                  res.ID,
		Verdict:             verdictPayload(resp.Verdict),
		Stdout:              res.Stdout,
		Stderr:              res.Stderr,
		Chunks:              res.Chunks,
		ExitCode:            res.ExitCode,
		Success:             res.Success,
		DurationMS:          res.DurationMS,
		TimedOut:            res.TimedOut,
		TerminationReason:   res.TerminationReason,
		Truncated:           res.Truncated,
		Overflow:            res.Overflow,
		OverflowStrategy:    res.OverflowStrategy,
		ConfiguredTimeoutMS: res.ConfiguredTimeoutMS,
		EffectiveTimeoutMS:  res.EffectiveTimeoutMS,
		AdaptiveExtensions:  res.AdaptiveExtensions,
		KillEscalated:       res.KillEscalated,
		WatchdogTriggered:   res.WatchdogTriggered,
		Warnings:            resp.Warnings,
	}
}

// writeGatewayError maps pipeline errors onto HTTP statuses.
func writeGatewayError(w http.ResponseWriter, err error, r *http.Request) {
	var ref *gateway.Refusal
	if errors.As(err, &ref) {
		resp := ErrorResponse{
			Error:           ref.Error(),
			RequestID:       RequestIDFromContext(r.Context()),
			Recommendations: ref.Recommendations,
			RetryAfterMS:    ref.RetryAfterMS,
		}
		if ref.Verdict != nil {
			p := verdictPayload(*ref.Verdict)
			resp.Verdict = &p
		}
		switch {
		case errors.Is(err, gateway.ErrValidation):
			resp.Code = "INVALID_REQUEST"
			writeJSON(w, http.StatusBadRequest, resp)
		case errors.Is(err, gateway.ErrBlocked):
			resp.Code = "COMMAND_BLOCKED"
			writeJSON(w, http.StatusForbidden, resp)
		case errors.Is(err, gateway.ErrConfirmationRequired):
			resp.Code = "CONFIRMATION_REQUIRED"
			writeJSON(w, http.StatusConflict, resp)
		case errors.Is(err, gateway.ErrRateLimited):
			resp.Code = "RATE_LIMITED"
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, resp)
		default:
			resp.Code = "INTERNAL"
			writeJSON(w, http.StatusInternalServerError, resp)
		}
		return
	}

	switch {
	case errors.Is(err, executor.ErrCommandTooLong), errors.Is(err, executor.ErrWorkDirPolicy):
		writeError(w, err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
	case errors.Is(err, executor.ErrSpawn), errors.Is(err, executor.ErrNoShell):
		log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("execution failed")
		writeError(w, "execution failed", "EXECUTION_FAILED", http.StatusInternalServerError, r)
	default:
		log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("execution failed")
		writeError(w, "execution failed", "EXECUTION_FAILED", http.StatusInternalServerError, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, msg, code string, status int, r *http.Request) {
	resp := ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	}
	writeJSON(w, status, resp)
}
