// ABOUTME: Entry point for the toolmesh orchestration daemon
// ABOUTME: Subcommands for serving, config scaffolding and tool inspection

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/meshworks/toolmesh/internal/bus"
	"github.com/meshworks/toolmesh/internal/config"
	"github.com/meshworks/toolmesh/internal/service"
	"github.com/meshworks/toolmesh/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _              _                    _
 | |_ ___   ___ | |_ __ ___   ___ ___| |__
 | __/ _ \ / _ \| | '_ ' _ \ / _ \ __| '_ \
 | || (_) | (_) | | | | | | |  __\__ \ | | |
  \__\___/ \___/|_|_| |_| |_|\___|___/_| |_|
`

// getConfigPath returns the path to the toolmesh config file.
// Priority: TOOLMESH_CONFIG env var > XDG_CONFIG_HOME/toolmesh/toolmesh.yaml > ~/.config/toolmesh/toolmesh.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TOOLMESH_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "toolmesh.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "toolmesh", "toolmesh.yaml")
}

// getDataPath returns the path to the toolmesh data directory.
// Priority: XDG_DATA_HOME/toolmesh > ~/.local/share/toolmesh
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "toolmesh")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: toolmesh <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                   Start the orchestration daemon")
		fmt.Println("  init                    Create a new config file")
		fmt.Println("  tools                   List every invokable tool")
		fmt.Println("  servers                 List registered tool servers")
		fmt.Println("  invoke <tool> [json]    Invoke a tool once and print the result")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "tools":
		err = runTools(ctx)
	case "servers":
		err = runServers(ctx)
	case "invoke":
		err = runInvoke(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Plugins:   %s\n", cfg.Plugins.Dir)
	if cfg.Policy.RestrictedEgress {
		green.Print("    ▶ ")
		fmt.Print("Egress:    ")
		color.New(color.FgYellow).Println("loopback only")
	}
	fmt.Println()

	logger.Info("starting toolmesh",
		"config", configPath,
		"database", cfg.Database.Path,
		"plugins", cfg.Plugins.Dir,
	)

	svc, st, err := openService(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := svc.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing: %w", err)
	}
	defer svc.Shutdown(context.Background())

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// openService wires a service over a fresh store and in-process bus. The
// caller owns closing the returned store.
func openService(cfg *config.Config, logger *slog.Logger) (*service.Service, *store.SQLiteStore, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	svc := service.New(cfg, st, bus.NewInProcBus(logger), logger)
	return svc, st, nil
}

func runInit() error {
	configPath := getConfigPath()
	dataPath := getDataPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	configContent := fmt.Sprintf(`# toolmesh configuration
# Generated by toolmesh init

database:
  path: "%s"

plugins:
  dir: "%s"

servers:
  connect_timeout: "10s"
  call_timeout: "60s"

policy:
  restricted_egress: false

logging:
  level: "info"
  format: "text"
`, filepath.Join(dataPath, "toolmesh.db"), filepath.Join(dataPath, "plugins"))

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	color.New(color.FgGreen).Printf("  ✓ Created config: %s\n", configPath)
	return nil
}

// runTools initializes in-process and prints the merged catalog, including
// the live tools of every reachable server.
func runTools(ctx context.Context) error {
	svc, st, err := loadQuiet(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	defer svc.Shutdown(context.Background())

	entries, err := svc.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("listing tools: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("no tools available")
		return nil
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	for _, e := range entries {
		cyan.Printf("%-32s", e.Name)
		gray.Printf(" [%s]", e.Source)
		if e.ConfigOnly {
			gray.Print(" (config-only)")
		}
		fmt.Println()
		if e.Description != "" {
			fmt.Printf("    %s\n", e.Description)
		}
	}
	return nil
}

func runServers(ctx context.Context) error {
	svc, st, err := loadQuiet(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	defer svc.Shutdown(context.Background())

	statuses, err := svc.ServerStatuses(ctx)
	if err != nil {
		return fmt.Errorf("listing servers: %w", err)
	}

	if len(statuses) == 0 {
		fmt.Println("no servers registered")
		return nil
	}

	for _, st := range statuses {
		statusColor := color.New(color.FgHiBlack)
		switch st.State {
		case store.StatusConnected:
			statusColor = color.New(color.FgGreen)
		case store.StatusError:
			statusColor = color.New(color.FgRed)
		case store.StatusConnecting:
			statusColor = color.New(color.FgYellow)
		}

		fmt.Printf("%-24s %-10s ", st.Name, st.Transport)
		statusColor.Printf("%-12s", st.State)
		if st.LastError != "" {
			color.New(color.FgHiBlack).Printf(" %s", st.LastError)
		}
		fmt.Println()
	}
	return nil
}

func runInvoke(ctx context.Context) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: toolmesh invoke <tool> [json-args]")
	}
	toolName := os.Args[2]
	args := json.RawMessage(`{}`)
	if len(os.Args) > 3 {
		args = json.RawMessage(os.Args[3])
	}

	svc, st, err := loadQuiet(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	defer svc.Shutdown(context.Background())

	res, err := svc.Invoke(ctx, "cli", "cli", toolName, args)
	if err != nil {
		return err
	}

	if res.Streamed {
		saved, err := svc.GetResult(ctx, res.ExecutionID)
		if err != nil {
			fmt.Printf("execution %s completed with no durable result\n", res.ExecutionID)
			return nil
		}
		fmt.Println(saved.Content)
		return nil
	}

	fmt.Println(string(res.Result))
	return nil
}

// loadQuiet builds an initialized service for one-shot commands, logging at
// warn level so command output stays clean.
func loadQuiet(ctx context.Context) (*service.Service, *store.SQLiteStore, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(&colorHandler{level: slog.LevelWarn})

	svc, st, err := openService(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := svc.Initialize(ctx); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("initializing: %w", err)
	}
	return svc, st, nil
}

func setupLogger(cfg config.Logging) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(&colorHandler{level: level})
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
