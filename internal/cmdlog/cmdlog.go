// Package cmdlog wraps CLI commands with the audit trail: metrics, a
// structured log line, and a row in the ledger when one is open.
package cmdlog

import (
	"context"
	"strings"
	"time"

	"starling/internal/logging"
	"starling/internal/metrics"
	"starling/internal/store/ledger"
)

// Run executes f under the name of a CLI command. The error comes back
// unchanged; led may be nil for commands that run before the ledger opens.
func Run(ctx context.Context, led *ledger.DB, name string, args []string, f func() error) error {
	metrics.IncCommandRun(name)
	start := time.Now()
	err := f()
	elapsed := time.Since(start)
	status := "ok"
	if err != nil {
		status = "error"
		metrics.IncCommandError(name)
		logging.Error(name+"_error", map[string]any{"error": err.Error(), "elapsed_ms": elapsed.Milliseconds()})
	} else {
		logging.Info(name+"_ok", map[string]any{"elapsed_ms": elapsed.Milliseconds()})
	}
	if led != nil {
		if lerr := led.LogCommand(ctx, name, strings.Join(args, " "), status, elapsed, start); lerr != nil {
			logging.Warn("cmd_audit_error", map[string]any{"error": lerr.Error()})
		}
	}
	return err
}
