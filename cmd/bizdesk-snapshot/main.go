// Command bizdesk-snapshot exports, lists and restores bizdesk table
// snapshots, and resets the tables to the demo dataset.
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
	"os"
	"time"
)

const usage = `usage: bizdesk-snapshot [-config path] <command>

commands:
  export           write every table to a new snapshot
  list             list stored snapshots, oldest first
  restore <key>    replace every table with a snapshot
  reset            replace every table with the demo dataset
`

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bizdesk-snapshot", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { _, _ = io.WriteString(stderr, usage) }
	var configPath string
	fs.StringVar(&configPath, "config", "", "path to a yaml, toml or json config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "bizdesk-snapshot: %v\n", err)
		return 1
	}
	logger, err := core.NewKitLogger(stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "bizdesk-snapshot: %v\n", err)
		return 1
	}
	if err := run(context.Background(), cfg, logger, rest, stdout); err != nil {
		if errors.Is(err, errUsage) {
			fs.Usage()
			return 2
		}
		_, _ = fmt.Fprintf(stderr, "bizdesk-snapshot: %v\n", err)
		return 1
	}
	return 0
}

var errUsage = errors.New("usage")

func run(ctx context.Context, cfg config.Config, logger core.Logger, args []string, stdout io.Writer) (err error) {
	cmd, params := args[0], args[1:]
	switch {
	case cmd == "restore" && len(params) != 1:
		return errUsage
	case cmd != "restore" && len(params) != 0:
		return errUsage
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	switch cmd {
	case "export":
		info, err := a.Snapshots.Export(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, info.Key)
		return err
	case "list":
		infos, err := a.Snapshots.List(ctx)
		if err != nil {
			return err
		}
		for _, info := range infos {
			if _, err := fmt.Fprintf(stdout, "%s\t%d\t%s\n", info.Key, info.Size, info.LastModified.UTC().Format(time.RFC3339)); err != nil {
				return err
			}
		}
		return nil
	case "restore":
		ds, err := a.Snapshots.Restore(ctx, params[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "restored %s (%d tables)\n", params[0], len(ds))
		return err
	case "reset":
		if err := a.Reset(ctx); err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, "tables reset to demo dataset")
		return err
	default:
		return errUsage
	}
}
