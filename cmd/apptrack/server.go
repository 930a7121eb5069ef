package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/jkoval/apptrack/internal/api"
	"github.com/jkoval/apptrack/internal/config"
	"github.com/jkoval/apptrack/internal/gemini"
	"github.com/jkoval/apptrack/internal/gmail"
	"github.com/jkoval/apptrack/internal/oracle"
	"github.com/jkoval/apptrack/internal/pipeline"
	"github.com/jkoval/apptrack/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the apptrack server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running apptrack server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show apptrack system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "apptrack.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "apptrack version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Ensure API token exists in platform secret store.
	apiToken, err := config.GetAPIToken()
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("apptrack is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("apptrack is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the processing pipeline.
	geminiClient := gemini.New(cfg.Gemini.APIKey)
	extractor := oracle.NewExtractor(geminiClient, cfg.Gemini.Model, cfg.Gemini.MaxBodyLen)
	mailClient := gmail.New(gmail.StaticToken(cfg.Gmail.AccessToken))

	budget, err := time.ParseDuration(cfg.Pipeline.Budget)
	if err != nil {
		slog.Warn("invalid pipeline budget, using default 4m", "value", cfg.Pipeline.Budget, "error", err)
		budget = 4 * time.Minute
	}
	processor := pipeline.New(mailClient, extractor, store, pipeline.Options{
		PendingLabel:   cfg.Gmail.PendingLabel,
		ProcessedLabel: cfg.Gmail.ProcessedLabel,
		MaxThreads:     cfg.Pipeline.MaxThreads,
		MaxMessages:    cfg.Pipeline.MaxMessages,
		Budget:         budget,
		MessagesPerSec: cfg.Pipeline.MessagesPerSec,
	})

	sweepInactive := time.Duration(cfg.Sweep.InactiveDays) * 24 * time.Hour

	// Build HTTP handler and server.
	appHandler := api.NewAppHandler(api.AppDeps{
		Store:         store,
		Runner:        processor,
		Token:         apiToken,
		SweepInactive: sweepInactive,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	// Schedule background runs. The storage lease keeps a scheduled run
	// from overlapping one triggered via the API.
	if cfg.Pipeline.RunInterval != "" {
		interval, err := time.ParseDuration(cfg.Pipeline.RunInterval)
		if err != nil {
			slog.Warn("invalid run interval, scheduled runs disabled", "value", cfg.Pipeline.RunInterval, "error", err)
		} else if interval > 0 {
			go scheduleRuns(ctx, processor, interval)
		}
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:  store,
		Runner: processor,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "apptrack listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func scheduleRuns(ctx context.Context, processor *pipeline.Processor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := processor.Run(ctx)
			if err != nil {
				if errors.Is(err, storage.ErrRunInProgress) {
					slog.Debug("scheduled run skipped, another run holds the lease")
					continue
				}
				slog.Error("scheduled run failed", "error", err)
				continue
			}
			slog.Info("scheduled run finished",
				"run_id", report.RunID,
				"processed", report.Processed,
				"failed", report.Failed,
			)
		}
	}
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("apptrack is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop apptrack (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to apptrack (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Model", "%s", cfg.Gemini.Model)
	printStatus("Pending label", "%s", cfg.Gmail.PendingLabel)
	printStatus("Processed label", "%s", cfg.Gmail.ProcessedLabel)
	printStatus("Run interval", "%s", cfg.Pipeline.RunInterval)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
