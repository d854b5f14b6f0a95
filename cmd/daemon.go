package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/promptroute/internal/config"
	"github.com/theirongolddev/promptroute/internal/daemon"
)

var (
	flagDaemonAddr         string
	flagDaemonInterval     time.Duration
	flagDaemonDetach       bool
	flagDaemonPIDFile      string
	flagDaemonLogFile      string
	flagDaemonEventsBuffer int
	flagDaemonChild        bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the routing daemon with HTTP/SSE endpoints",
	RunE:  runDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon process and API status",
	RunE:  runDaemonStatus,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

func init() {
	daemonCmd.PersistentFlags().StringVar(&flagDaemonAddr, "addr", "127.0.0.1:8787", "HTTP listen address")
	daemonCmd.PersistentFlags().DurationVar(&flagDaemonInterval, "interval", 15*time.Second, "Call log polling interval")
	daemonCmd.PersistentFlags().StringVar(&flagDaemonPIDFile, "pid-file", "", "PID file path (default <data-dir>/promptrouted.pid)")
	daemonCmd.PersistentFlags().StringVar(&flagDaemonLogFile, "log-file", "", "Log file path for detached mode (default <data-dir>/promptrouted.log)")
	daemonCmd.PersistentFlags().IntVar(&flagDaemonEventsBuffer, "events-buffer", 200, "Max in-memory events retained")

	daemonCmd.Flags().BoolVar(&flagDaemonDetach, "detach", false, "Run daemon as a background process")
	daemonCmd.Flags().BoolVar(&flagDaemonChild, "child", false, "Internal: mark detached child process")
	_ = daemonCmd.Flags().MarkHidden("child")

	daemonCmd.PersistentPreRunE = resolveDaemonPaths

	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	rootCmd.AddCommand(daemonCmd)
}

// resolveDaemonPaths places the pid and log files in the data directory
// unless they were given explicitly.
func resolveDaemonPaths(cmd *cobra.Command, args []string) error {
	if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
		return err
	}
	if flagDaemonPIDFile != "" && flagDaemonLogFile != "" {
		return nil
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	dir := dataDir(cfg)
	if flagDaemonPIDFile == "" {
		flagDaemonPIDFile = filepath.Join(dir, "promptrouted.pid")
	}
	if flagDaemonLogFile == "" {
		flagDaemonLogFile = filepath.Join(dir, "promptrouted.log")
	}
	return nil
}

func runtimeFile() daemon.Runtime {
	return daemon.Runtime{PIDFile: flagDaemonPIDFile}
}

func runDaemon(_ *cobra.Command, _ []string) error {
	switch {
	case flagDaemonDetach && flagDaemonChild:
		return errors.New("--detach and --child are mutually exclusive")
	case flagDaemonDetach:
		return spawnDaemon()
	default:
		return serveDaemon()
	}
}

// spawnDaemon re-executes the binary as a background child whose output
// goes to the daemon log file.
func spawnDaemon() error {
	if st, err := runtimeFile().Lookup(); err == nil {
		return fmt.Errorf("%w (pid %d on %s)", daemon.ErrAlreadyRunning, st.PID, st.Addr)
	} else if !errors.Is(err, daemon.ErrNotRunning) {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating promptroute binary: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(flagDaemonLogFile), 0o750); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	//nolint:gosec // log path is configured by the local user
	out, err := os.OpenFile(flagDaemonLogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening daemon log: %w", err)
	}
	defer func() { _ = out.Close() }()

	child := exec.Command(exe, daemon.ChildArgs(os.Args[1:])...) //nolint:gosec // re-exec of this binary
	child.Stdout, child.Stderr = out, out
	child.Env = os.Environ()
	if err := child.Start(); err != nil {
		return fmt.Errorf("starting background daemon: %w", err)
	}

	fmt.Printf("  Routing daemon started in background (pid %d)\n", child.Process.Pid)
	fmt.Printf("  Status: http://%s/v1/status\n", flagDaemonAddr)
	fmt.Printf("  Log:    %s\n", flagDaemonLogFile)
	return nil
}

func serveDaemon() error {
	a, err := newApp(appOptions{engine: true})
	routing := err == nil
	if errors.Is(err, errNoAPIKey) {
		fmt.Fprintln(os.Stderr, "  No API key configured; /v1/route is disabled")
		a, err = newApp(appOptions{ledger: true})
	}
	if err != nil {
		return err
	}
	defer a.Close()

	catalogPath := a.cfg.Routing.CatalogFile
	if catalogPath == "" {
		catalogPath = a.configPath
	}

	release, err := runtimeFile().Acquire(daemon.RuntimeState{
		PID:         os.Getpid(),
		Addr:        flagDaemonAddr,
		StartedAt:   time.Now(),
		DataDir:     a.dataDir,
		CatalogPath: catalogPath,
		Routing:     routing,
	})
	if err != nil {
		return err
	}
	defer release()

	svc := daemon.New(daemon.Config{
		DataDir:      a.dataDir,
		Days:         flagDays,
		ModelFilter:  flagModel,
		Interval:     flagDaemonInterval,
		Addr:         flagDaemonAddr,
		EventsBuffer: flagDaemonEventsBuffer,
		CatalogPath:  catalogPath,
	}, daemon.Deps{
		Engine:      a.engine,
		Ledger:      a.ledger,
		Catalog:     a.holder,
		LoadCatalog: config.CatalogLoader(a.configPath),
		Logger:      a.logger,
	})

	a.logger.WithField("addr", flagDaemonAddr).
		WithField("data_dir", a.dataDir).
		WithField("catalog", catalogPath).
		Info("routing daemon listening")
	fmt.Printf("  Routing daemon on http://%s (catalog %s)\n", flagDaemonAddr, catalogPath)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runDaemonStatus(_ *cobra.Command, _ []string) error {
	rt, err := runtimeFile().Lookup()
	if errors.Is(err, daemon.ErrNotRunning) {
		fmt.Println("  Routing daemon: not running")
		return nil
	}
	if err != nil {
		return err
	}
	addr := rt.Addr
	if addr == "" {
		addr = flagDaemonAddr
	}

	mode := "ledger only"
	if rt.Routing {
		mode = "routing"
	}
	fmt.Printf("  Routing daemon: pid %d, %s, up since %s\n", rt.PID, mode, rt.StartedAt.Local().Format(time.RFC3339))
	fmt.Printf("  Address: http://%s\n", addr)
	if rt.CatalogPath != "" {
		fmt.Printf("  Catalog: %s\n", rt.CatalogPath)
	}

	st, err := fetchStatus(addr)
	if err != nil {
		fmt.Printf("  API: %v\n", err)
		return nil
	}
	if st.SessionID != "" {
		fmt.Printf("  Session: %s (%s strategy)\n", st.SessionID, st.Strategy)
	}
	fmt.Printf("  Models: %d, default %s\n", st.Models, st.DefaultModel)
	fmt.Printf("  Calls: %d (%d failed), %d tokens, $%.4f over %d days\n",
		st.Summary.Calls, st.Summary.Failed, st.Summary.Tokens, st.Summary.CostUSD, st.Days)
	if st.LastPollAt.IsZero() {
		fmt.Println("  Call logs: not polled yet")
	} else {
		fmt.Printf("  Call logs: polled %d times, last %s\n", st.PollCount, st.LastPollAt.Local().Format(time.RFC3339))
	}
	if st.LastError != "" {
		fmt.Printf("  Last error: %s\n", st.LastError)
	}
	return nil
}

func fetchStatus(addr string) (daemon.Status, error) {
	var st daemon.Status
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/v1/status") //nolint:noctx // bounded by client timeout
	if err != nil {
		return st, fmt.Errorf("unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("malformed status: %w", err)
	}
	return st, nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	st, err := runtimeFile().Stop(8 * time.Second)
	if err != nil {
		return err
	}
	fmt.Printf("  Routing daemon stopped (pid %d)\n", st.PID)
	return nil
}
