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
	"golang.org/x/sync/errgroup"

	"github.com/okulov/selftrack/internal/api"
	"github.com/okulov/selftrack/internal/config"
	"github.com/okulov/selftrack/internal/session"
	"github.com/okulov/selftrack/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the selftrack server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running selftrack server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show selftrack system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

// pidFileDir picks a writable location for the pid file. With the default
// in-memory store there is no data dir to put it in.
func pidFileDir(dataDir string) string {
	if dataDir == "" || dataDir == ":memory:" {
		return os.TempDir()
	}
	return dataDir
}

func pidFilePath(dataDir string) string {
	return filepath.Join(pidFileDir(dataDir), "selftrack.pid")
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
	fmt.Fprintf(os.Stderr, "selftrack version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	// Refuse to double-start: probe the health endpoint first.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("selftrack is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("selftrack is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	sessions := session.NewManager(store, cfg.Session.TTL)
	sweeper := session.NewSweeper(sessions, cfg.Session.SweepInterval)

	appHandler := api.NewAppHandler(api.AppDeps{
		Sessions:       sessions,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	mcpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)
	mcpSrv := server.NewStreamableHTTPServer(api.NewMCPServer(api.MCPDeps{Sessions: sessions}))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "selftrack listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("MCP server listening", "addr", mcpAddr)
		if err := mcpSrv.Start(mcpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mcpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("MCP shutdown", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
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
		printError("selftrack is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop selftrack (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to selftrack (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

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

	printStatus("MCP port", "%d", cfg.Server.MCPPort)
	printStatus("Session TTL", "%s", cfg.Session.TTL)
	printStatus("Storage", "%s", cfg.Storage.DataDir)
	return nil
}
