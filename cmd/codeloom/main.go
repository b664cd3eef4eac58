package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"codeloom/internal/config"
	"codeloom/internal/logging"
	"codeloom/internal/provider"
	"codeloom/internal/server"
	"codeloom/internal/store"
)

var (
	configPath string
	listenAddr string
	debugMode  bool
)

var rootCmd = &cobra.Command{
	Use:   "codeloom",
	Short: "codeloom - streaming LLM response pipeline",
	Long: `codeloom streams LLM responses over SSE while extracting
file-tagged code blocks into versioned file records and artifacts.

Point a client at POST /v1/chat/stream and watch prose arrive live
while generated files are captured out of band.`,
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "codeloom.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "", "listen address override (e.g. :8080)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug file logging")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if listenAddr != "" {
		cfg.Server.Listen = listenAddr
	}
	if debugMode {
		cfg.Logging.DebugMode = true
	}

	if err := logging.Initialize(cfg.Storage.DataDir, cfg.Logging.DebugMode); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Shutdown()
	logging.Boot("codeloom starting, listen=%s data=%s", cfg.Server.Listen, cfg.Storage.DataDir)

	dbPath := cfg.Storage.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(cfg.Storage.DataDir, "codeloom.db")
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	factory := provider.NewFactory(cfg.LLM)
	srv := server.New(cfg, st, factory)

	httpServer := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Boot("HTTP server listening on %s", cfg.Server.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		logging.Boot("Received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logging.Boot("Shutdown complete")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
