// Command bizdeskd serves the bizdesk record workflow API.
package main

import (
	"bizdesk/internal/app"
	"bizdesk/internal/config"
	"bizdesk/internal/core"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const shutdownTimeout = 15 * time.Second

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stderr)
	exitFunc(code)
}

func cli(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("bizdeskd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var configPath string
	var reset bool
	fs.StringVar(&configPath, "config", "", "path to a yaml, toml or json config file")
	fs.BoolVar(&reset, "reset", false, "replace every table with the demo dataset before serving")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "bizdeskd: %v\n", err)
		return 1
	}
	logger, err := core.NewKitLogger(stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "bizdeskd: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, cfg, reset, logger, nil); err != nil {
		logger.Error("bizdeskd stopped", "error", err)
		return 1
	}
	return 0
}

// serve runs the HTTP server until ctx is cancelled. When ready is non-nil it
// receives the bound listener address.
func serve(ctx context.Context, cfg config.Config, reset bool, logger core.Logger, ready chan<- string) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close storage", "error", err)
		}
	}()

	if reset {
		err = a.Reset(ctx)
	} else {
		err = a.SeedIfEmpty(ctx)
	}
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTP.Addr, err)
	}
	srv := &http.Server{Handler: a.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info("http server listening", "addr", ln.Addr().String())
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}
