// Command idleforge serves the blueprint editor API and provides offline
// tools for exporting, simulating and evaluating blueprints.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MJE43/idleforge/internal/api"
	"github.com/MJE43/idleforge/internal/authtoken"
	"github.com/MJE43/idleforge/internal/config"
	"github.com/MJE43/idleforge/internal/store"
)

const (
	tokenName       = "api-token"
	shutdownTimeout = 10 * time.Second
)

const usage = `usage: idleforge <command> [flags]

commands:
  serve      run the editor API
  export     render a blueprint file into a playable HTML game
  simulate   run a blueprint headless for a number of ticks
  eval       evaluate a formula at a level
  version    print build information
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "serve":
		err = runServe(args)
	case "export":
		err = runExport(args, os.Stdout)
	case "simulate":
		err = runSimulate(args, os.Stdout)
	case "eval":
		err = runEval(args, os.Stdout)
	case "version":
		fmt.Printf("idleforge %s (commit %s, built %s)\n", config.Version, config.GitCommit, config.BuildTime)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "idleforge %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func runServe(args []string) error {
	fs := newFlagSet("serve")
	configPath := fs.String("config", "", "path to config.yaml")
	addr := fs.String("addr", "", "listen address (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := log.New(os.Stdout, "[SERVE] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return err
	}

	db, err := store.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return err
	}

	if err := resolveToken(cfg, logger); err != nil {
		return err
	}

	srv, err := api.NewFromConfig(cfg, db)
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("server_listening addr=%s db=%s auth=%t version=%s", cfg.Addr, cfg.DBPath, !cfg.AuthDisabled, config.Version)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Printf("server_shutdown reason=signal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// resolveToken fills cfg.Token from the keyring, creating one on first run.
func resolveToken(cfg *config.Config, logger *log.Logger) error {
	if cfg.AuthDisabled || cfg.Token != "" {
		return nil
	}
	tokens := authtoken.NewStore(cfg.KeyringService, cfg.SecretsFile)
	token, created, err := tokens.Ensure(tokenName)
	if err != nil {
		return fmt.Errorf("load api token: %w", err)
	}
	cfg.Token = token
	if created {
		// Printed once so the user can configure their client.
		logger.Printf("token_created token=%s", token)
	}
	return nil
}

func writeOut(path string, data []byte, stdout io.Writer) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
