package jupyter

import (
	"log/slog"
	"time"
)

// Default kernel configuration values.
const (
	defaultReceiveBudget  = 30 * time.Second
	defaultStartupTimeout = 60 * time.Second
	defaultGracePeriod    = 5 * time.Second
	defaultIOPubBuffer    = 256
)

// ConnectionFileToken is the placeholder in the kernel command line that
// is replaced with the path of the generated connection file.
const ConnectionFileToken = "{connection_file}"

// DefaultPriming is the stock set of priming statements executed once per
// kernel startup. Their output is discarded.
var DefaultPriming = []string{
	"import numpy as np\nimport pandas as pd\nimport matplotlib.pyplot as plt",
	"%matplotlib inline",
}

func defaultArgv() []string {
	return []string{"python3", "-m", "ipykernel_launcher", "-f", ConnectionFileToken}
}

// Options holds resolved construction-time configuration for a Kernel.
// Use NewKernel with Option functions to customize these values.
type Options struct {
	// Argv is the kernel command line. Occurrences of
	// ConnectionFileToken are replaced with the generated connection
	// file path; if the token is absent, "-f <file>" is appended.
	Argv []string

	// ReceiveBudget is the wait budget for a single receive call during
	// an execution. It resets on every received message; it is not a
	// cumulative execution deadline.
	ReceiveBudget time.Duration

	// StartupTimeout bounds the spawn + readiness handshake.
	StartupTimeout time.Duration

	// GracePeriod is how long to wait between escalation steps of the
	// shutdown ladder (graceful request, SIGTERM, SIGKILL).
	GracePeriod time.Duration

	// IOPubBuffer is the channel buffer size for broadcast messages.
	IOPubBuffer int

	// Priming is the list of statements executed at startup whose output
	// is never surfaced. An empty (non-nil) slice disables priming.
	Priming []string

	// ConnDir is the directory for connection files. Empty means the
	// OS temp directory.
	ConnDir string

	// Logger receives engine lifecycle events. Defaults to discard.
	Logger *slog.Logger
}

// Option configures a Kernel at construction time.
type Option func(*Options)

// WithKernelCommand sets the kernel command line. Empty argv is ignored.
func WithKernelCommand(argv ...string) Option {
	return func(o *Options) {
		if len(argv) > 0 {
			o.Argv = append([]string(nil), argv...)
		}
	}
}

// WithReceiveBudget sets the per-message receive wait budget.
// Values <= 0 are ignored.
func WithReceiveBudget(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.ReceiveBudget = d
		}
	}
}

// WithStartupTimeout sets the bound on spawn + readiness handshake.
// Values <= 0 are ignored.
func WithStartupTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.StartupTimeout = d
		}
	}
}

// WithGracePeriod sets the wait between shutdown escalation steps.
// Values <= 0 are ignored.
func WithGracePeriod(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.GracePeriod = d
		}
	}
}

// WithIOPubBuffer sets the broadcast channel buffer size.
// Values <= 0 are ignored.
func WithIOPubBuffer(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.IOPubBuffer = size
		}
	}
}

// WithPriming replaces the priming statements. Calling it with no
// arguments disables priming entirely.
func WithPriming(statements ...string) Option {
	return func(o *Options) {
		o.Priming = append([]string{}, statements...)
	}
}

// WithConnectionDir sets the directory for generated connection files.
func WithConnectionDir(dir string) Option {
	return func(o *Options) {
		if dir != "" {
			o.ConnDir = dir
		}
	}
}

// WithLogger sets the logger for engine lifecycle events.
// A nil logger is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

func resolveOptions(opts ...Option) Options {
	o := Options{
		Argv:           defaultArgv(),
		ReceiveBudget:  defaultReceiveBudget,
		StartupTimeout: defaultStartupTimeout,
		GracePeriod:    defaultGracePeriod,
		IOPubBuffer:    defaultIOPubBuffer,
		Priming:        append([]string(nil), DefaultPriming...),
		Logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
