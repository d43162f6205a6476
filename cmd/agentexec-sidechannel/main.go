// Package main is the Sidechannel Bridge's process entrypoint: one
// instance is launched per agent subprocess by the Subprocess Runner,
// reading its coordinates from the AGENTEXEC_* environment variables
// the runner sets rather than from flags, since the agent binary owns
// argv (spec.md §4.3/§4.4).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/kandev/agentexec/internal/obslog"
	"github.com/kandev/agentexec/internal/sidechannel"
)

func main() {
	cfg := sidechannel.Config{
		APIBaseURL:     os.Getenv("AGENTEXEC_API_BASE_URL"),
		TaskID:         os.Getenv("AGENTEXEC_TASK_ID"),
		Token:          os.Getenv("AGENTEXEC_TOKEN"),
		IsOrchestrator: os.Getenv("AGENTEXEC_IS_ORCHESTRATOR") == strconv.FormatBool(true),
	}
	if cfg.APIBaseURL == "" || cfg.TaskID == "" || cfg.Token == "" {
		fmt.Fprintln(os.Stderr, "AGENTEXEC_API_BASE_URL, AGENTEXEC_TASK_ID and AGENTEXEC_TOKEN must be set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bridge := sidechannel.New(cfg, obslog.Default())
	if err := bridge.Serve(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "sidechannel bridge exited: %v\n", err)
		os.Exit(1)
	}
}
