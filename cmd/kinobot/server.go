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

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kinobot/kinobot/internal/api"
	"github.com/kinobot/kinobot/internal/composer"
	"github.com/kinobot/kinobot/internal/config"
	"github.com/kinobot/kinobot/internal/pipeline"
	"github.com/kinobot/kinobot/internal/provider"
	"github.com/kinobot/kinobot/internal/retrieval"
	"github.com/kinobot/kinobot/internal/storage"
	"github.com/kinobot/kinobot/internal/tmdb"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kinobot server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running kinobot server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show kinobot system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "kinobot.pid")
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

func initLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// buildPipeline constructs the provider client, vector store, composer,
// and pipeline from config on top of an open storage handle.
func buildPipeline(cfg config.Config, store *storage.Store) *pipeline.Pipeline {
	client := provider.NewClientWithBaseURL(cfg.Provider.APIKey, cfg.Provider.BaseURL)
	client.SetModels(cfg.Provider.QueryModel, cfg.Provider.PassageModel, cfg.Provider.ChatModel)

	vectors := retrieval.NewEmbeddingStore(store.DB())
	comp := composer.New(client)
	return pipeline.New(client, vectors, store, comp, cfg.Retrieval.TopK)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "kinobot version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	initLogging(cfg.Log.Level)

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("kinobot is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("kinobot is already running on port %d", cfg.Server.Port)
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

	pipe := buildPipeline(cfg, store)

	// Seed an empty catalog from TMDB when a key is configured.
	var tmdbClient *tmdb.Client
	if cfg.TMDB.APIKey != "" {
		tmdbClient = tmdb.New(cfg.TMDB.APIKey)
		synced, err := tmdb.SyncIfEmpty(ctx, tmdbClient, store, pipe)
		if err != nil {
			slog.Warn("initial TMDB sync failed", "error", err)
		} else if synced > 0 {
			slog.Info("seeded catalog from TMDB", "movies", synced)
		}
	}

	// Bearer token for the management endpoints.
	apiToken, err := config.GetAPIToken(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("getting API token: %w", err)
	}
	slog.Info("API bearer token available")

	handler := api.NewHandler(api.Deps{
		Store:    store,
		Pipeline: pipe,
		TMDB:     tmdbClient,
		Token:    apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "kinobot listening on %s\n", addr)
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

// runMCP serves the MCP tool surface over stdio, for agent hosts that
// spawn kinobot as a subprocess.
func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	initLogging(cfg.Log.Level)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	pipe := buildPipeline(cfg, store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcpSrv := api.NewMCPServer(api.MCPDeps{Catalog: store, Pipeline: pipe})
	stdioSrv := mcpserver.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
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
		printError("kinobot is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop kinobot (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to kinobot (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
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

	printStatus("Provider", "%s", cfg.Provider.BaseURL)
	printStatus("Query model", "%s", cfg.Provider.QueryModel)
	printStatus("Passage model", "%s", cfg.Provider.PassageModel)
	printStatus("Chat model", "%s", cfg.Provider.ChatModel)
	if cfg.TMDB.APIKey != "" {
		printStatus("TMDB sync", "enabled")
	} else {
		printStatus("TMDB sync", "disabled (no API key)")
	}

	// Show catalog counts if the server is running.
	if resp != nil && resp.StatusCode == 200 {
		if apiToken, tokenErr := config.GetAPIToken(cfg.Storage.DataDir); tokenErr == nil {
			statsResp, err := apiGet(client, serverURL+"/stats", apiToken)
			if err == nil {
				var stats struct {
					Movies  int `json:"movies"`
					Vectors int `json:"vectors"`
				}
				if decodeJSON(statsResp, &stats) == nil {
					printStatus("Movies", "%d", stats.Movies)
					printStatus("Indexed", "%d", stats.Vectors)
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
