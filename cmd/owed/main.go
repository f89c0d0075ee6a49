package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/docopt/docopt-go"

	"owed/internal/backend"
	"owed/internal/cli"
	"owed/internal/core"
	"owed/internal/ledger"
	"owed/internal/log"
	"owed/internal/services"
)

const version = "0.1.0"

const usage = `owed - keep track of who owes whom.

Usage:
  owed record <user> <direction> <other> <amount>
  owed balance <user>
  owed history <user>
  owed users [add <name>]
  owed summary
  owed reconcile [--heal]
  owed -h | --help
  owed --version

Options:
  -h --help     Show this screen.
  --version     Show version.
  --heal        Write the missing half of every orphaned debt.

<direction> is owes or is-owed-by. Amounts are dollars with up to two
decimals, e.g. 12.50 or $3.
`

var (
	errUnbalanced   = errors.New("ledger does not balance")
	errInconsistent = errors.New("ledger has incomplete or conflicting debts")
	errEphemeral    = errors.New("the memory backend keeps nothing between runs, use DATA_BACKEND=sqlite")
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(argv []string, stdout, stderr io.Writer) int {
	opts, done, code := parseArgs(argv, stdout, stderr)
	if done {
		return code
	}

	cli.LoadEnvFile()
	cfg, logger, err := cli.LoadAndValidateConfig(stderr, log.ComponentCLI)
	if err != nil {
		return 2
	}
	if cfg.DataBackend == backend.MemoryBackend.String() {
		fmt.Fprintln(stderr, "owed:", errEphemeral)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cli.OpenApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open ledger", log.FieldError, err)
		return 1
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("Failed to close ledger", log.FieldError, err)
		}
	}()

	if err := execute(ctx, opts, app.Service, stdout); err != nil {
		fmt.Fprintln(stderr, "owed:", err)
		return 1
	}
	return 0
}

// parseArgs parses argv. done is set when there is nothing left to do: help
// or the version was printed, or the arguments were invalid.
func parseArgs(argv []string, stdout, stderr io.Writer) (opts docopt.Opts, done bool, code int) {
	parser := &docopt.Parser{
		HelpHandler: func(err error, text string) {
			done = true
			if err != nil {
				fmt.Fprintln(stderr, text)
				code = 64
				return
			}
			fmt.Fprintln(stdout, text)
		},
	}
	opts, err := parser.ParseArgs(usage, argv, version)
	if err != nil {
		return nil, true, 64
	}
	return opts, done, code
}

func execute(ctx context.Context, opts docopt.Opts, svc *services.LedgerService, w io.Writer) error {
	str := func(key string) string {
		s, _ := opts.String(key)
		return s
	}
	flag := func(key string) bool {
		b, _ := opts.Bool(key)
		return b
	}

	switch {
	case flag("record"):
		return record(ctx, svc, w, str("<user>"), str("<direction>"), str("<other>"), str("<amount>"))
	case flag("balance"):
		b, err := svc.Balance(ctx, str("<user>"))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %s\n", str("<user>"), b)
		return nil
	case flag("history"):
		return history(ctx, svc, w, str("<user>"))
	case flag("users"):
		if flag("add") {
			if err := svc.AddUser(ctx, str("<name>")); err != nil {
				return err
			}
			fmt.Fprintf(w, "added %s\n", str("<name>"))
			return nil
		}
		users, err := svc.Users(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			fmt.Fprintln(w, u.Name)
		}
		return nil
	case flag("summary"):
		return summary(ctx, svc, w)
	case flag("reconcile"):
		return reconcile(ctx, svc, w, flag("--heal"))
	}
	return fmt.Errorf("no command given")
}

func record(ctx context.Context, svc *services.LedgerService, w io.Writer, user, direction, other, amount string) error {
	dir, err := ledger.ParseDirection(direction)
	if err != nil {
		return err
	}
	m, err := core.ParseMoney(amount)
	if err != nil {
		return err
	}
	entry, err := svc.Record(ctx, ledger.Submission{
		Party:        user,
		Counterparty: other,
		Direction:    dir,
		Amount:       m,
	})
	if err != nil {
		return err
	}
	d := entry.Debt
	// the canonical amount is positive; print it unsigned
	fmt.Fprintf(w, "%s owes %s %s\n", d.Debtor, d.Creditor, strings.TrimPrefix(d.Amount.String(), "+"))
	return nil
}

func history(ctx context.Context, svc *services.LedgerService, w io.Writer, user string) error {
	debts, err := svc.History(ctx, user)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, d := range debts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Time.Format(time.RFC3339Nano), d.Debtor, d.Amount)
	}
	return tw.Flush()
}

func summary(ctx context.Context, svc *services.LedgerService, w io.Writer) error {
	s, err := svc.Summary(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, ub := range s.Balances {
		fmt.Fprintf(tw, "%s\t%s\n", ub.User, ub.Balance)
	}
	fmt.Fprintf(tw, "total\t%s\n", s.Total)
	if err := tw.Flush(); err != nil {
		return err
	}
	if !s.Balanced() {
		return fmt.Errorf("%w: total is %s, run owed reconcile", errUnbalanced, s.Total)
	}
	return nil
}

func reconcile(ctx context.Context, svc *services.LedgerService, w io.Writer, heal bool) error {
	report, err := svc.Reconcile(ctx, heal)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "scanned %d records: %d orphaned, %d conflicting, %d healed\n",
		report.Scanned, len(report.Orphans), len(report.Conflicts), report.Healed)
	for _, o := range report.Orphans {
		fmt.Fprintf(w, "orphan   %s\n", o.Key)
	}
	for _, c := range report.Conflicts {
		fmt.Fprintf(w, "conflict %s <> %s\n", c.Entry.Key, c.Mirror.Key)
	}
	if len(report.Conflicts) > 0 || len(report.Orphans) > report.Healed {
		return errInconsistent
	}
	return nil
}
