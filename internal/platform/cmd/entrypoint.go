// Package cmd holds the startup plumbing shared by every storyframe binary.
//
// A binary parses its config with ParseConfig and ParseArgs, derives a
// cancellable context with SignalContext, and hands its serve loop to
// RunWithTelemetry so spans are flushed before the process exits.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/louisbranch/storyframe/internal/platform/config"
	"github.com/louisbranch/storyframe/internal/platform/otel"
)

// Service identifiers used for telemetry resource names and log prefixes.
const (
	ServiceAuthority = "storyframe"
	ServicePeer      = "peer"
	ServicePeerToken = "peer-token"
)

type telemetryConfig struct {
	FlushTimeout time.Duration `env:"STORYFRAME_OTEL_FLUSH_TIMEOUT" envDefault:"5s"`
}

// ParseConfig loads environment defaults into cfg.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses command-line flags over values already loaded from env.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	return fs.Parse(args)
}

// LogPrefix returns the bracketed log prefix for service, e.g. "[PEER] ".
func LogPrefix(service string) string {
	return "[" + strings.ToUpper(strings.TrimSpace(service)) + "] "
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// RunWithTelemetry starts tracing for service, runs the serve loop and
// flushes pending spans once it returns. A flush failure is joined onto the
// run result.
func RunWithTelemetry(ctx context.Context, service string, run func(context.Context) error) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return errors.New("service name is required")
	}
	if run == nil {
		return errors.New("run function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var tc telemetryConfig
	if err := config.ParseEnv(&tc); err != nil {
		return err
	}
	shutdown, err := otel.Setup(ctx, service)
	if err != nil {
		return err
	}

	runErr := run(ctx)

	flushTimeout := tc.FlushTimeout
	if flushTimeout <= 0 {
		flushTimeout = 5 * time.Second
	}
	// ctx is usually already cancelled by a signal here.
	flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := shutdown(flushCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("%s: flush telemetry: %w", service, err))
	}
	return runErr
}
