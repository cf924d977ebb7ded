// Package serve is a subcommand of the root command. It serves CPU option resolution and
// Prometheus metrics over HTTP.
package serve

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"qmcpu/internal/common"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const cmdName = "serve"

var examples = []string{
	fmt.Sprintf("  Serve on the configured address:  $ %s %s", common.AppName, cmdName),
	fmt.Sprintf("  Serve on all interfaces:          $ %s %s --listen :9300", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:   cmdName,
	Short: "Serve CPU option resolution over HTTP",
	Long: `Endpoints:
  POST /api/v1/cpu-options   resolve the emulator CPU arguments of a VM configuration
  GET  /api/v1/models        list built-in and custom CPU models
  GET  /metrics              Prometheus metrics`,
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

var (
	flagListen string
	flagTrace  string
)

const (
	flagListenName = "listen"
	flagTraceName  = "trace"
)

func init() {
	Cmd.Flags().StringVar(&flagListen, flagListenName, "", "")
	Cmd.Flags().StringVar(&flagTrace, flagTraceName, "", "")
	Cmd.SetUsageFunc(common.UsageFunc(func() []common.FlagGroup {
		return []common.FlagGroup{{
			GroupName: "Options",
			Flags: []common.Flag{
				{Name: flagListenName, Help: "address to listen on (default: from config, localhost:9300)"},
				{Name: flagTraceName, Help: "write request traces to this file, \"-\" for stderr"},
			},
		}}
	}))
}

func runCmd(cmd *cobra.Command, args []string) error {
	appContext := common.GetAppContext(cmd)
	listenAddr := appContext.Config.Listen
	if flagListen != "" {
		listenAddr = flagListen
	}
	manager, s, err := common.OpenRegistry(cmd)
	if err != nil {
		return common.ReportError(cmd, err)
	}
	defer s.Close()

	if flagTrace != "" {
		shutdownTracing, err := startTracing(flagTrace)
		if err != nil {
			return common.ReportError(cmd, err)
		}
		defer func() {
			if err := shutdownTracing(); err != nil {
				slog.Warn("failed to flush traces", slog.String("error", err.Error()))
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	defaults := common.ResolveParams{
		Arch:          appContext.Config.Arch,
		EmulatorBuild: appContext.Config.EmulatorBuild,
	}
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           NewHandler(manager, defaults, reg),
		ReadHeaderTimeout: 3 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", slog.String("address", listenAddr))
		serveErr <- server.ListenAndServe()
	}()
	fmt.Fprintf(os.Stderr, "Listening on %s, press Ctrl-C to stop\n", listenAddr)
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server ListenAndServe error", slog.String("error", err.Error()))
			return common.ReportError(cmd, err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("received signal, shutting down HTTP server")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// startTracing opens the trace destination and installs the tracer provider
func startTracing(path string) (func() error, error) {
	var out *os.File
	if path == "-" {
		out = os.Stderr
	} else {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644) // #nosec G302
		if err != nil {
			return nil, err
		}
		out = f
	}
	shutdown, err := setupTracing(out)
	if err != nil {
		return nil, err
	}
	slog.Info("tracing enabled", slog.String("destination", path))
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := shutdown(ctx)
		if out != os.Stderr {
			if cerr := out.Close(); err == nil {
				err = cerr
			}
		}
		return err
	}, nil
}
