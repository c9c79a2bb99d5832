// Package main wires together the orchestrator's components into a single
// running process: the durable store, concurrency gate, pipeline executor,
// and webhook HTTP ingress, plus the log streamer and metrics/telemetry
// surfaces. Grounded on the teacher's cmd/orchestrator/main.go wiring style
// (pflag + viper binding, signal.NotifyContext shutdown).
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"issuebot/internal/agentrun"
	"issuebot/internal/config"
	"issuebot/internal/gate"
	"issuebot/internal/hosting"
	"issuebot/internal/logstream"
	"issuebot/internal/metrics"
	"issuebot/internal/notify"
	"issuebot/internal/pipeline"
	"issuebot/internal/procsup"
	"issuebot/internal/retention"
	"issuebot/internal/scm"
	"issuebot/internal/store"
	"issuebot/internal/telemetry"
	"issuebot/internal/trigger"
	"issuebot/internal/webhook"
)

func main() {
	var cfgFile string
	pflag.StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	pflag.BoolP("verbose", "v", false, "enable debug logging")
	pflag.Parse()

	config.Load(cfgFile)
	viper.BindPFlag("verbose", pflag.Lookup("verbose"))
	config.ValidateAndExit()

	telemetry.InitLogger(viper.GetBool("verbose"), viper.GetString("log_file"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(store.Config{
		Backend: viper.GetString("store.backend"),
		DSN:     viper.GetString("store.dsn"),
	})
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	g := gate.New(viper.GetInt("max_concurrent"))
	supervisor := procsup.New()

	agentRunner := agentrun.New(agentrun.Config{
		CLIPath:                    viper.GetString("agent_path"),
		WorkDir:                    viper.GetString("repository.path"),
		Timeout:                    time.Duration(viper.GetInt("agent_timeout_seconds")) * time.Second,
		MaxAttempts:                viper.GetInt("agent_max_retries"),
		DangerouslySkipPermissions: viper.GetBool("agent_skip_permissions"),
	}).WithSupervisor(supervisor).WithLogger(st)

	if err := agentRunner.Ping(ctx); err != nil {
		slog.Warn("agent binary self-check failed; continuing, runs will fail until this is resolved", "error", err)
	}

	sourceControl := scm.NewGitClient()

	hostingClient := hosting.NewGitHubClient(
		viper.GetString("github.token"),
		viper.GetString("github.owner"),
		viper.GetString("github.repo"),
	)

	var slackNotifier *notify.SlackNotifier
	if viper.GetBool("notifications.slack.enabled") {
		slackNotifier = notify.NewSlackNotifier(viper.GetString("notifications.slack.webhook_url"))
	}
	lifecycle := &notify.LifecycleNotifier{Issue: hostingClient, Slack: slackNotifier}

	repoPath := viper.GetString("repository.path")
	executor := &pipeline.Executor{
		Store:          st,
		Gate:           g,
		Agent:          agentRunner,
		SCM:            sourceControl,
		Hosting:        hostingClient,
		Notify:         lifecycle,
		BaseBranch:     viper.GetString("repository.default_branch"),
		BranchTemplate: viper.GetString("branch_template"),
		WorkDir:        func(taskID string) string { return repoPath },
		CommitMessage: func(issueTitle string) string {
			return pipeline.RenderCommitMessage(viper.GetString("commit_template"), issueTitle)
		},
	}

	policy := trigger.Policy{
		Label:   viper.GetString("trigger_label"),
		Command: viper.GetString("trigger_command"),
	}

	var allow *webhook.IPAllowlist
	if ips := viper.GetStringSlice("webhook.allowed_ips"); len(ips) > 0 {
		allow = webhook.NewIPAllowlist(ips)
	}

	handler := &webhook.Handler{
		Store:          st,
		Executor:       executor,
		Policy:         policy,
		Secret:         viper.GetString("webhook.secret"),
		Allow:          allow,
		BranchTemplate: viper.GetString("branch_template"),
	}

	httpMetrics := metrics.NewMetrics()
	follower := logstream.New(st)

	mux := http.NewServeMux()
	mux.Handle("/webhook/github", httpMetrics.RequestTrackingMiddleware(handler))
	mux.HandleFunc("/tasks/", func(w http.ResponseWriter, r *http.Request) {
		serveTaskLogs(w, r, follower)
	})
	mux.Handle("/metrics", httpMetrics.Handler())

	srv := &http.Server{
		Addr:    viper.GetString("webhook.addr"),
		Handler: mux,
	}

	if viper.GetBool("retention.enabled") {
		reaper, err := retention.New(retention.Config{
			Store:    st,
			Schedule: viper.GetString("retention.cron"),
			MaxAge:   time.Duration(viper.GetInt("retention.max_age_days")) * 24 * time.Hour,
		})
		if err != nil {
			slog.Error("failed to start retention reaper", "error", err)
			os.Exit(1)
		}
		reaper.Start()
		defer reaper.Stop()
	}

	if port := viper.GetInt("metrics_port"); port > 0 {
		go func() {
			if err := telemetry.StartMetricsServer(port); err != nil {
				slog.Warn("telemetry metrics server exited", "error", err)
			}
		}()
	}

	go func() {
		slog.Info("starting webhook server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("webhook server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("webhook server shutdown error", "error", err)
	}
	supervisor.TerminateAll(shutdownCtx)
}

// serveTaskLogs streams a task's log history as Server-Sent Events,
// matching the original service's SSE generator at /api/logs/{task_id}.
func serveTaskLogs(w http.ResponseWriter, r *http.Request, follower *logstream.Follower) {
	taskID := r.URL.Path[len("/tasks/"):]
	const suffix = "/logs"
	if len(taskID) <= len(suffix) || taskID[len(taskID)-len(suffix):] != suffix {
		http.NotFound(w, r)
		return
	}
	taskID = taskID[:len(taskID)-len(suffix)]

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	frames := make(chan logstream.Frame, 16)
	ctx := r.Context()
	go follower.Follow(ctx, taskID, frames)

	for frame := range frames {
		data, err := logstream.MarshalSSE(frame)
		if err != nil {
			slog.Warn("logstream: failed to marshal frame", "error", err)
			continue
		}
		if _, err := w.Write(data); err != nil {
			return
		}
		flusher.Flush()
	}
}
