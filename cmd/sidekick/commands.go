package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/loykin/sidekick/internal/config"
	"github.com/loykin/sidekick/internal/logger"
	"github.com/loykin/sidekick/internal/manager"
	"github.com/loykin/sidekick/internal/metrics"
	"github.com/loykin/sidekick/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const defaultAPIURL = "http://127.0.0.1:7819/api"

// GlobalFlags holds the persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// ClientFlags holds the connection flags for the client-mode commands.
type ClientFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

func buildRoot() *cobra.Command {
	gf := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "sidekick",
		Short: "Sidecar supervisor for the kubilitics backend services",
	}
	root.PersistentFlags().StringVarP(&gf.ConfigPath, "config", "c", "", "path to TOML config (defaults apply when omitted)")

	root.AddCommand(newRunCmd(gf))
	root.AddCommand(newStatusCmd())
	root.AddCommand(newRestartCmd())
	root.AddCommand(newStopCmd())
	return root
}

func newRunCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the supervised services and serve the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(gf.ConfigPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.Setup(cfg.LogLevel)
			if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
				return fmt.Errorf("register metrics: %w", err)
			}
			return runDaemon(cfg)
		},
	}
}

func runDaemon(cfg *config.Config) error {
	m := manager.New(cfg.Primary, cfg.Secondary)

	stopCh := make(chan struct{})
	var stopOnce sync.Once
	requestStop := func() { stopOnce.Do(func() { close(stopCh) }) }

	router := server.NewRouter(m, cfg.Server.BasePath)
	router.OnStop(requestStop)
	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Control API server failed", "addr", cfg.Server.Listen, "error", err)
			requestStop()
		}
	}()
	slog.Info("Control API listening", "addr", cfg.Server.Listen, "base_path", cfg.Server.BasePath)

	startErr := m.Start(context.Background())
	if startErr != nil {
		slog.Error("Startup failed", "error", startErr)
		requestStop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("Signal received, shutting down", "signal", sig.String())
	case <-stopCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	m.Stop(shutdownCtx)
	_ = httpSrv.Shutdown(shutdownCtx)
	return startErr
}

func addClientFlags(cmd *cobra.Command, cf *ClientFlags) {
	cmd.Flags().StringVar(&cf.APIUrl, "api-url", defaultAPIURL, "base URL of the control API")
	cmd.Flags().DurationVar(&cf.APITimeout, "timeout", 10*time.Second, "request timeout")
}

func newStatusCmd() *cobra.Command {
	cf := &ClientFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of the supervised services",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := NewAPIClient(cf.APIUrl, cf.APITimeout).Status()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(out))
			return nil
		},
	}
	addClientFlags(cmd, cf)
	return cmd
}

func newRestartCmd() *cobra.Command {
	cf := &ClientFlags{}
	var name string
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart a supervised service (primary when --name is omitted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NewAPIClient(cf.APIUrl, cf.APITimeout).Restart(name); err != nil {
				return err
			}
			cmd.Println("restarted")
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "service name")
	addClientFlags(cmd, cf)
	return cmd
}

func newStopCmd() *cobra.Command {
	cf := &ClientFlags{}
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the supervised services and the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NewAPIClient(cf.APIUrl, cf.APITimeout).Stop(); err != nil {
				return err
			}
			cmd.Println("stopped")
			return nil
		},
	}
	addClientFlags(cmd, cf)
	return cmd
}
