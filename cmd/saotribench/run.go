package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/redush-com/SaotriBench/internal/evalplugin"
	"github.com/redush-com/SaotriBench/internal/evaluator"
	"github.com/redush-com/SaotriBench/internal/metrics"
	"github.com/redush-com/SaotriBench/internal/report"
	"github.com/redush-com/SaotriBench/internal/runner"
	"github.com/redush-com/SaotriBench/internal/sandbox"
	"github.com/redush-com/SaotriBench/internal/taskspec"
	"github.com/redush-com/SaotriBench/internal/testcase"
	"github.com/redush-com/SaotriBench/internal/workspace"
)

// RunCmd runs one task to termination against an agent working through a
// workspace directory, per spec.md §6.
type RunCmd struct {
	TasksDir     string        `name:"tasks-dir" required:"" help:"Directory containing one subdirectory per task." type:"path"`
	Task         string        `required:"" help:"Task id to run."`
	Workspace    string        `required:"" help:"Workspace directory the agent reads/writes (created if absent)." type:"path"`
	AgentID      string        `name:"agent-id" help:"Identifier recorded in the run report (default: a generated UUID)."`
	PollInterval time.Duration `name:"poll-interval" default:"500ms" help:"How often to re-check the solution file for changes."`
	Single       bool          `help:"Evaluate the existing solution exactly once and terminate, regardless of phase outcome."`
	QuitKeyword  string        `name:"quit-keyword" default:"q" help:"Line typed on stdin that aborts the run early (interactive mode only)."`
	MetricsAddr  string        `name:"metrics-addr" help:"If set, serve Prometheus metrics on this address (e.g. :9090) for the run's duration."`
}

func (c *RunCmd) Run() error {
	task, err := taskspec.Load(filepath.Join(c.TasksDir, c.Task))
	if err != nil {
		return fmt.Errorf("loading task: %w", err)
	}

	store, err := testcase.Load(task.TestsPath)
	if err != nil {
		return fmt.Errorf("loading test cases: %w", err)
	}

	var plugin *evalplugin.Client
	if task.PluginPath != "" {
		plugin, err = evalplugin.Load(task.PluginPath)
		if err != nil {
			return fmt.Errorf("loading evaluator plugin: %w", err)
		}
		defer plugin.Close()
	}

	broker, err := workspace.New(c.Workspace)
	if err != nil {
		return fmt.Errorf("initializing workspace: %w", err)
	}

	collector := metrics.New(task.Config.TaskID)
	if c.MetricsAddr != "" {
		srv := &http.Server{Addr: c.MetricsAddr, Handler: collector.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
		defer srv.Close()
	}

	agentID := c.AgentID
	if agentID == "" {
		agentID = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	quit := make(chan struct{})
	if !c.Single {
		go c.watchQuitKeyword(quit)
	}

	sb := sandbox.New(sandbox.Config{})
	ev := evaluator.New(evaluator.NewRuleResolver(plugin))

	r := runner.New(task, store, sb, ev, broker, collector, agentID, c.PollInterval, c.Single, quit)
	rr, err := r.Run(ctx)
	if err != nil {
		return fmt.Errorf("running task: %w", err)
	}

	code, ok := report.ExitCodes[rr.Overall.Status]
	if !ok {
		code = 2
	}
	if code != 0 {
		return exitError{code: code, msg: fmt.Sprintf("run finished with status %q", rr.Overall.Status)}
	}
	return nil
}

// watchQuitKeyword reads stdin line by line and closes quit the moment the
// configured keyword is seen, letting an operator abort an interactive run
// without killing the process (spec.md §4.6, StateQuitByOperator).
func (c *RunCmd) watchQuitKeyword(quit chan<- struct{}) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == c.QuitKeyword {
			close(quit)
			return
		}
	}
}
