// main.go - Admin control tool for the attribution dashboard
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"attribly/internal"
	"attribly/internal/attribution"
	"attribly/internal/channels"
	"attribly/internal/config"
	"attribly/internal/report"
	"attribly/internal/seeder"
	"attribly/internal/timeframe"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	minPasswordLength      = 8
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// NeedsApp reports whether the command talks to the database
	NeedsApp() bool
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&ReportCommand{},
	&TotalsCommand{},
	&ChannelsCommand{},
	&MigrateCommand{},
	&SeedCommand{},
	&StatusCommand{},
	&HashPasswordCommand{},
	&HelpCommand{},
}

func main() {
	_ = godotenv.Load()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs(os.Args[1:])
	cmd := findCommand(cmdName)
	if cmd == nil {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	var app *internal.Application
	if cmd.NeedsApp() {
		var err error
		cfg := config.GetConfig()
		quiet(cfg)
		app, err = internal.NewAppWithConfig(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize app: %v", err)
		}
	}

	err := cmd.Execute(ctx, app, args)

	if app != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		if serr := app.Shutdown(shutdownCtx); serr != nil {
			log.Printf("Warning: Cleanup error: %v", serr)
		}
		cancelShutdown()
	}

	if err != nil {
		log.Fatalf("Command failed: %v", err)
	}
}

// windowFlags registers the window flags shared by the report commands.
func windowFlags(fs *flag.FlagSet) *timeframe.WindowParserParams {
	p := &timeframe.WindowParserParams{}
	fs.StringVar(&p.Start, "start", "", "inclusive window start (RFC 3339 or YYYY-MM-DD)")
	fs.StringVar(&p.End, "end", "", "exclusive window end (RFC 3339 or YYYY-MM-DD)")
	fs.StringVar(&p.Range, "range", "", "named range instead of start/end, e.g. last_7_days")
	return p
}

// ReportCommand prints one channel's attribution table
type ReportCommand struct{}

func (c *ReportCommand) Name() string        { return "report" }
func (c *ReportCommand) Description() string { return "Prints a channel's attribution rows: report <channel> [-start] [-end] [-range]" }
func (c *ReportCommand) NeedsApp() bool      { return true }

func (c *ReportCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		return fmt.Errorf("usage: %s <channel> [-start ...] [-end ...] [-range ...]", c.Name())
	}
	name := args[0]

	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	params := windowFlags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	ch, err := app.Reports.Channel(name)
	if err != nil {
		return err
	}

	var window *timeframe.Window
	if ch.Windowed {
		window, err = timeframe.NewWindowParser().ParseWindow(*params)
		if err != nil {
			return err
		}
	}

	summary, err := app.Reports.Summary(ctx, ch.Name, window)
	if err != nil {
		return err
	}
	return printSummary(os.Stdout, summary, window)
}

// TotalsCommand prints the window's signups and tagged views
type TotalsCommand struct{}

func (c *TotalsCommand) Name() string        { return "totals" }
func (c *TotalsCommand) Description() string { return "Prints signups and tagged views: totals [-start] [-end] [-range]" }
func (c *TotalsCommand) NeedsApp() bool      { return true }

func (c *TotalsCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	params := windowFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	window, err := timeframe.NewWindowParser().ParseWindow(*params)
	if err != nil {
		return err
	}

	totalUsers, err := app.Reports.TotalUsers(ctx)
	if err != nil {
		return err
	}
	totals, err := app.Reports.Totals(ctx, window)
	if err != nil {
		return err
	}
	return printTotals(os.Stdout, totalUsers, totals, window)
}

// ChannelsCommand lists the registered channels. It does not need a database.
type ChannelsCommand struct{}

func (c *ChannelsCommand) Name() string        { return "channels" }
func (c *ChannelsCommand) Description() string { return "Lists the registered channels and their match rules" }
func (c *ChannelsCommand) NeedsApp() bool      { return false }

func (c *ChannelsCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	reg, err := channels.Default()
	if err != nil {
		return err
	}
	return printChannels(os.Stdout, reg.All())
}

// MigrateCommand creates the analytics tables on a development database
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Creates the analytics tables (development and test only)" }
func (c *MigrateCommand) NeedsApp() bool      { return true }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Println("Migrations completed successfully")
	return nil
}

// SeedCommand populates a development DB with sample data
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with sample data" }
func (c *SeedCommand) NeedsApp() bool      { return true }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	events := fs.Int("events", 10000, "number of pageviews to generate")
	days := fs.Int("days", 30, "days of history to spread them over")
	seed := fs.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app.Config.IsProduction() {
		return errors.New("refusing to seed the production database")
	}
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	se := seeder.NewSeeder(app.DBManager, app.Logger, *events, *seed)
	se.Origin = app.Config.SiteOrigin
	se.FetchDate = app.Config.YouTubeFetchDate
	se.Days = *days
	return se.Run(ctx)
}

// StatusCommand checks the database and cache connections
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows database and cache status" }
func (c *StatusCommand) NeedsApp() bool      { return true }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if err := app.DBManager.Ping(ctx); err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	total, err := app.Reports.TotalUsers(ctx)
	if err != nil {
		return err
	}

	sqlDB, err := app.DBManager.GetConnection().DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}
	stats := sqlDB.Stats()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Environment\t%s\n", app.Config.Environment)
	fmt.Fprintf(w, "Database\t%s (connected)\n", app.Config.DatabaseType)
	fmt.Fprintf(w, "Accounts\t%d\n", total)
	fmt.Fprintf(w, "Report cache\t%s\n", enabled(app.Config.CacheEnabled()))
	fmt.Fprintf(w, "Basic auth\t%s\n", enabled(app.Config.BasicAuthEnabled()))
	fmt.Fprintf(w, "Max open connections\t%d\n", stats.MaxOpenConnections)
	fmt.Fprintf(w, "Open connections\t%d\n", stats.OpenConnections)
	return w.Flush()
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

// HashPasswordCommand prints a bcrypt hash for ATTRIBLY_BASIC_AUTH_PASSWORD_HASH
type HashPasswordCommand struct{}

func (c *HashPasswordCommand) Name() string { return "hash-password" }
func (c *HashPasswordCommand) Description() string {
	return "Prompts for a dashboard password and prints its bcrypt hash"
}
func (c *HashPasswordCommand) NeedsApp() bool { return false }

func (c *HashPasswordCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return errors.New("hash-password must be run from a terminal")
	}

	fmt.Fprintf(os.Stderr, "Enter dashboard password (minimum %d characters): ", minPasswordLength)
	passBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Fprint(os.Stderr, "Confirm dashboard password: ")
	confirmBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	if string(passBytes) != string(confirmBytes) {
		return errors.New("passwords do not match")
	}

	hash, err := hashPassword(string(passBytes))
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }
func (c *HelpCommand) NeedsApp() bool      { return false }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage(os.Stdout)
	return nil
}

// Output helpers

func printSummary(out io.Writer, s *report.ChannelSummary, window *timeframe.Window) error {
	fmt.Fprintf(out, "%s (%s)\n\n", s.Title, window)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "%s\tRedirects\tConverted\tRate\t\n", s.ItemLabel)
	for _, r := range s.Rows {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t\n", r.Post, r.RedirectCount, r.UserConverted, r.Rate)
	}
	fmt.Fprintf(w, "Total\t%d\t%d\t%s\t\n", s.Totals.Redirects, s.Totals.Conversions, s.Totals.RateLabel)
	return w.Flush()
}

func printTotals(out io.Writer, totalUsers int64, t *attribution.Totals, window *timeframe.Window) error {
	fmt.Fprintf(out, "Totals (%s)\n\n", window)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "All-time accounts\t%d\n", totalUsers)
	fmt.Fprintf(w, "Signups\t%d\n", t.TotalUsers)
	fmt.Fprintf(w, "LinkedIn views\t%d\n", t.LinkedInViews)
	fmt.Fprintf(w, "YouTube views\t%d\n", t.YouTubeViews)
	fmt.Fprintf(w, "Google views\t%d\n", t.GoogleViews)
	fmt.Fprintf(w, "Other\t%d\n", t.Other)
	return w.Flush()
}

func printChannels(out io.Writer, list []channels.Channel) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Name\tTitle\tWindow\tField\tInclude\tExclude")
	for _, ch := range list {
		window := "windowed"
		if !ch.Windowed {
			window = "all time"
		}
		excludes := make([]string, len(ch.Match.Exclude))
		for i, group := range ch.Match.Exclude {
			excludes[i] = strings.Join(group, "+")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ch.Name, ch.Title, window, ch.Match.Field,
			strings.Join(ch.Match.Include, ","), strings.Join(excludes, ","))
	}
	return w.Flush()
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage: attriblyctl [command] [args...]")
	fmt.Fprintln(out, "Available commands:")
	for _, cmd := range commands {
		fmt.Fprintf(out, "  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// parseArgs splits the command name from its arguments
func parseArgs(args []string) (string, []string) {
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

// quiet keeps the app's structured logs off the terminal while a report is printed.
func quiet(cfg *config.Config) {
	if cfg.LogLevel == "" || cfg.LogLevel == config.LogLevelDebug || cfg.LogLevel == config.LogLevelInfo {
		cfg.LogLevel = config.LogLevelWarn
	}
}
