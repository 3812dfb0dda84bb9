// claimctl is the operator tool for the claim desk: it applies database
// migrations and inspects scanned QR payloads.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/munlink-zambales/claimdesk-api/internal/claim"
	"github.com/munlink-zambales/claimdesk-api/pkg/config"
	"github.com/munlink-zambales/claimdesk-api/pkg/database"
	"github.com/munlink-zambales/claimdesk-api/pkg/logger"
)

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		printUsage(out)
		return errUsage
	}
	switch args[0] {
	case "migrate":
		return runMigrate(args[1:], out)
	case "decode":
		return runDecode(args[1:], out)
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	default:
		fmt.Fprintf(out, "unknown command %q\n\n", args[0])
		printUsage(out)
		return errUsage
	}
}

func runMigrate(args []string, out io.Writer) error {
	flagSet := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	flagSet.SetOutput(out)
	timeout := flagSet.Duration("timeout", 30*time.Second, "database connect timeout")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		fmt.Fprintln(out, "usage: claimctl migrate up|down|status|version")
		return errUsage
	}
	action := flagSet.Arg(0)
	switch action {
	case "up", "down", "status", "version":
	default:
		return fmt.Errorf("unknown migrate action %q", action)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db.DB, logr)
	if err != nil {
		return err
	}

	switch action {
	case "up":
		return migrator.Up()
	case "down":
		return migrator.Down()
	case "status":
		return migrator.Status()
	default:
		version, err := migrator.Version()
		if err != nil {
			return err
		}
		logr.Info("current migration version", zap.Int64("version", version))
		fmt.Fprintln(out, version)
		return nil
	}
}

func runDecode(args []string, out io.Writer) error {
	flagSet := pflag.NewFlagSet("decode", pflag.ContinueOnError)
	flagSet.SetOutput(out)
	showToken := flagSet.Bool("show-token", false, "print the extracted token")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		fmt.Fprintln(out, "usage: claimctl decode [--show-token] <payload>")
		return errUsage
	}

	token, err := claim.Decode(flagSet.Arg(0))
	if err != nil {
		return err
	}
	if *showToken {
		fmt.Fprintln(out, token)
		return nil
	}
	fmt.Fprintf(out, "valid claim token (%d chars)\n", len(token))
	return nil
}

func printUsage(out io.Writer) {
	fmt.Fprint(out, `claimctl manages the claim desk database and inspects QR payloads.

Commands:
  migrate up|down|status|version   apply or inspect schema migrations
  decode [--show-token] <payload>  check a scanned QR payload or raw token
`)
}
