// Command pykernel-mcp serves Python kernel execution tools over the
// Model Context Protocol on stdio.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmora/kernelrun/jupyter"
	"github.com/dmora/kernelrun/mcpserver"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pykernel-mcp: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		kernelCmd      []string
		receiveBudget  time.Duration
		startupTimeout time.Duration
		gracePeriod    time.Duration
		priming        []string
		noPriming      bool
		connDir        string
		verbose        bool
	)

	cmd := &cobra.Command{
		Use:   "pykernel-mcp",
		Short: "Serve a persistent Python kernel as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the MCP transport; all logging goes to stderr.
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			}))

			opts := []jupyter.Option{
				jupyter.WithReceiveBudget(receiveBudget),
				jupyter.WithStartupTimeout(startupTimeout),
				jupyter.WithGracePeriod(gracePeriod),
				jupyter.WithLogger(logger),
			}
			if len(kernelCmd) > 0 {
				opts = append(opts, jupyter.WithKernelCommand(kernelCmd...))
			}
			switch {
			case noPriming:
				opts = append(opts, jupyter.WithPriming())
			case len(priming) > 0:
				opts = append(opts, jupyter.WithPriming(priming...))
			}
			if connDir != "" {
				opts = append(opts, jupyter.WithConnectionDir(connDir))
			}

			kernel := jupyter.NewKernel(opts...)
			if err := kernel.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := mcpserver.New(kernel, mcpserver.WithLogger(logger))
			err := srv.Run(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if serr := kernel.Shutdown(shutdownCtx); serr != nil {
				logger.Warn("kernel shutdown", "error", serr)
			}
			if err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&kernelCmd, "kernel", nil,
		"kernel command line; use {connection_file} as the connection file placeholder")
	flags.DurationVar(&receiveBudget, "timeout", 30*time.Second,
		"per-message wait budget during an execution")
	flags.DurationVar(&startupTimeout, "startup-timeout", 60*time.Second,
		"bound on kernel spawn and readiness handshake")
	flags.DurationVar(&gracePeriod, "grace-period", 5*time.Second,
		"wait between kernel shutdown escalation steps")
	flags.StringArrayVar(&priming, "priming", nil,
		"replace the startup priming statements")
	flags.BoolVar(&noPriming, "no-priming", false,
		"skip the startup priming statements entirely")
	flags.StringVar(&connDir, "conn-dir", "",
		"directory for kernel connection files (default: OS temp dir)")
	flags.BoolVarP(&verbose, "verbose", "v", false,
		"log at debug level")

	return cmd
}
