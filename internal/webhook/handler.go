// Package webhook is the HTTP ingress for inbound GitHub webhook
// deliveries: it verifies the request, parses the event, evaluates it
// against the trigger policy, and hands triggered runs to the pipeline
// executor. Grounded on the original service's webhook_handler.py and
// its api/webhooks.py route, with the net/http ServeMux style of
// internal/web/server.go.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"issuebot/internal/pipeline"
	"issuebot/internal/store"
	"issuebot/internal/trigger"
)

// Executor is the subset of pipeline.Executor the handler depends on,
// narrowed so tests can substitute a fake.
type Executor interface {
	TryRun(ctx context.Context, req pipeline.Request) error
}

// Handler is the GitHub webhook HTTP endpoint.
type Handler struct {
	Store    store.Store
	Executor Executor
	Policy   trigger.Policy
	Secret   string // empty disables signature verification
	Allow    *IPAllowlist

	// BranchTemplate renders a new task's feature branch name; see
	// pipeline.BranchName for recognized placeholders. Empty uses the
	// pipeline package's default template.
	BranchTemplate string

	// Clock allows tests to control the timestamp in generated branch
	// names; task ids are random UUIDs and do not depend on it.
	Clock func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

// ServeHTTP implements the single POST /webhook/github endpoint.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.Allow != nil {
		if !h.Allow.Allowed(clientIP(r)) {
			slog.Warn("webhook: rejected request from disallowed address", "remote_addr", r.RemoteAddr)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 5<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if h.Secret != "" {
		if !VerifySignature(body, r.Header.Get("X-Hub-Signature-256"), h.Secret) {
			slog.Warn("webhook: signature verification failed")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	eventType := r.Header.Get("X-GitHub-Event")
	slog.Info("webhook: received event", "event_type", eventType)

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err == nil {
		slog.Debug("webhook: payload", "data", Sanitize(raw))
	}

	switch eventType {
	case trigger.EventPing:
		slog.Info("webhook: ping received")
		writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
		return
	case trigger.EventIssues:
		h.handleIssueEvent(r.Context(), w, body)
		return
	case trigger.EventIssueComment:
		h.handleCommentEvent(r.Context(), w, body)
		return
	default:
		if trigger.IgnoredEventTypes[eventType] {
			slog.Debug("webhook: ignoring event type", "event_type", eventType)
		} else {
			slog.Warn("webhook: unsupported event type", "event_type", eventType)
		}
		writeJSON(w, http.StatusOK, map[string]bool{"triggered": false})
	}
}

func (h *Handler) handleIssueEvent(ctx context.Context, w http.ResponseWriter, body []byte) {
	var p issuesPayload
	if err := json.Unmarshal(body, &p); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	decision := trigger.EvaluateIssueEvent(trigger.IssueEvent{
		Action: p.Action,
		Number: p.Issue.Number,
		Title:  p.Issue.Title,
		URL:    p.Issue.URL,
		Body:   p.Issue.Body,
		Labels: labelNames(p.Issue.Labels),
	}, h.Policy)

	if !decision.Triggered {
		slog.Debug("webhook: issue event did not trigger", "reason", decision.Reason)
		writeJSON(w, http.StatusOK, map[string]bool{"triggered": false})
		return
	}

	h.startTask(ctx, w, p.Issue.Number, p.Issue.Title, p.Issue.URL, p.Issue.Body)
}

func (h *Handler) handleCommentEvent(ctx context.Context, w http.ResponseWriter, body []byte) {
	var p issueCommentPayload
	if err := json.Unmarshal(body, &p); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	decision := trigger.EvaluateCommentEvent(trigger.CommentEvent{
		Action:      p.Action,
		IssueNumber: p.Issue.Number,
		IssueTitle:  p.Issue.Title,
		IssueURL:    p.Issue.URL,
		IssueBody:   p.Issue.Body,
		CommentBody: p.Comment.Body,
	}, h.Policy)

	if !decision.Triggered {
		slog.Debug("webhook: comment event did not trigger", "reason", decision.Reason)
		writeJSON(w, http.StatusOK, map[string]bool{"triggered": false})
		return
	}

	h.startTask(ctx, w, p.Issue.Number, p.Issue.Title, p.Issue.URL, p.Issue.Body)
}

// startTask creates a new Task row and hands it to the executor on a
// detached goroutine, matching the original service's fire-and-forget
// FastAPI background-task pattern: the webhook response returns as soon
// as the task is admitted, not when the pipeline finishes.
func (h *Handler) startTask(ctx context.Context, w http.ResponseWriter, issueNumber int, title, url, issueBody string) {
	taskID := uuid.NewString()
	branch := pipeline.BranchName(h.BranchTemplate, issueNumber, h.now().Unix())

	task := &store.Task{
		TaskID:      taskID,
		IssueNumber: issueNumber,
		IssueTitle:  title,
		IssueURL:    url,
		IssueBody:   issueBody,
		BranchName:  branch,
	}
	if err := h.Store.CreateTask(ctx, task); err != nil {
		slog.Error("webhook: failed to create task", "error", err)
		http.Error(w, "failed to create task", http.StatusInternalServerError)
		return
	}

	req := pipeline.Request{
		TaskID:      taskID,
		IssueNumber: issueNumber,
		IssueTitle:  title,
		IssueURL:    url,
		IssueBody:   issueBody,
		BranchName:  branch,
	}

	go func() {
		runCtx := context.Background()
		if err := h.Executor.TryRun(runCtx, req); err != nil {
			slog.Warn("webhook: pipeline run ended with error", "task_id", taskID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID, "branch": branch})
}

// clientIP extracts the caller address, preferring a proxy-forwarded
// header since the service typically runs behind a reverse proxy.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		return host[:idx]
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("webhook: failed to encode response", "error", err)
	}
}

