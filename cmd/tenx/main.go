// Command tenx runs the assistant: an HTTP server, one-shot questions from
// the terminal, and a few maintenance commands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/clawinfra/tenx/internal/api"
	"github.com/clawinfra/tenx/internal/config"
	"github.com/clawinfra/tenx/internal/orchestrator"
	"github.com/clawinfra/tenx/internal/security"
	"github.com/clawinfra/tenx/internal/turnlog"
)

var (
	version   = "0.1.0"
	buildTime = "dev"
)

const usage = `Usage: tenx [-config path] [-log-level level] <command> [args]

Commands:
  serve                      run the HTTP API
  ask [-single] [-session id] <message>
                             process one message and print the reply
  turns [-n N] [-session id] list recent turns
  token -sub name [-ttl d] [-scope chat|read]
                             issue an API token
  init [-force]              write a default config
  version                    print the version
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type globals struct {
	configPath string
	logLevel   string
	stdout     io.Writer
	stderr     io.Writer
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tenx", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	g := globals{stdout: stdout, stderr: stderr}
	fs.StringVar(&g.configPath, "config", "tenx.json", "Path to config file")
	fs.StringVar(&g.logLevel, "log-level", "", "Override server.logLevel (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	var err error
	switch cmd {
	case "serve":
		err = g.serve(ctx, rest)
	case "ask":
		err = g.ask(ctx, rest)
	case "turns":
		err = g.turns(ctx, rest)
	case "token":
		err = g.token(rest)
	case "init":
		err = g.initConfig(rest)
	case "version":
		fmt.Fprintf(stdout, "tenx v%s (built %s)\n", version, buildTime)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		fs.Usage()
		return 2
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// load reads the config and builds the logger it asks for.
func (g globals) load() (*config.Config, *slog.Logger, error) {
	boot := newLogger(g.stderr, g.logLevel, "text")
	cfg, err := loadConfig(g.configPath, boot)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Server.LogLevel
	if g.logLevel != "" {
		level = g.logLevel
	}
	return cfg, newLogger(g.stderr, level, cfg.Server.LogFormat), nil
}

func (g globals) serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(g.stderr)
	port := fs.Int("port", 0, "Override server.port")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	if !cfg.API.Enabled {
		return errors.New("api.enabled is false in config")
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger.Info("starting tenx", "version", version, "config", g.configPath)
	app, err := setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer app.Close() //nolint:errcheck

	api.Version = version
	server := api.NewServer(cfg.Server.Port, api.Deps{
		Assistant:      app.Assistant,
		Sessions:       app.Sessions,
		Memory:         app.Memory,
		Turns:          app.Turns,
		Events:         app.Events,
		Auth:           security.NewAuthenticator(cfg.API.JWTSecret, logger),
		Gatherer:       app.Registry,
		AllowedOrigins: cfg.API.AllowedOrigins,
		MultiAgent:     cfg.Loop.MultiAgent,
	}, logger)
	return server.Start(ctx)
}

func (g globals) ask(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(g.stderr)
	single := fs.Bool("single", false, "Skip the multi-agent path")
	sessionID := fs.String("session", "cli", "Session to continue")
	if err := fs.Parse(args); err != nil {
		return err
	}
	message := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(message) == "" {
		return errors.New("ask needs a message")
	}

	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	app, err := setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer app.Close() //nolint:errcheck

	opts := orchestrator.TurnOptions{MultiAgent: cfg.Loop.MultiAgent && !*single}
	turn, err := app.Assistant.Process(ctx, app.Sessions.Get(*sessionID), message, opts)
	if err != nil {
		return err
	}
	printTurn(g.stdout, turn)
	if turn.Failed {
		return fmt.Errorf("turn %s failed", turn.ID)
	}
	return nil
}

func printTurn(w io.Writer, turn *orchestrator.Turn) {
	for _, n := range turn.Notices {
		fmt.Fprintln(w, n)
	}
	fmt.Fprintln(w, turn.Reply)
	if len(turn.Artifacts) > 0 {
		fmt.Fprintln(w)
		for _, a := range turn.Artifacts {
			fmt.Fprintf(w, "  [%s] %s\n", a.Kind, a.Summary())
		}
	}
}

func (g globals) turns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("turns", flag.ContinueOnError)
	fs.SetOutput(g.stderr)
	n := fs.Int("n", 20, "Number of turns")
	sessionID := fs.String("session", "", "Only this session")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := g.load()
	if err != nil {
		return err
	}
	store, err := turnlog.Open(cfg.TurnLogPath())
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	entries, err := store.Recent(ctx, *sessionID, *n)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(g.stdout, "No turns recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(g.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSESSION\tMODE\tOK\tAGENTS\tDURATION\tMESSAGE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\t%s\n",
			e.StartedAt.Local().Format("2006-01-02 15:04:05"), e.SessionID, e.Mode, e.Success,
			strings.Join(e.Capabilities, ","), e.Duration.Round(time.Millisecond), clip(e.Message, 60))
	}
	return tw.Flush()
}

func clip(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}

func (g globals) token(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(g.stderr)
	sub := fs.String("sub", "", "Token subject (client name)")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "Validity")
	scope := fs.String("scope", security.ScopeChat, "chat or read")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sub == "" {
		return errors.New("token needs -sub")
	}
	if *scope != security.ScopeChat && *scope != security.ScopeRead {
		return fmt.Errorf("unknown scope %q", *scope)
	}

	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	tok, err := security.NewAuthenticator(cfg.API.JWTSecret, logger).Issue(*sub, *ttl, *scope)
	if err != nil {
		return fmt.Errorf("issue token (set api.jwtSecret or TENX_API_JWT_SECRET): %w", err)
	}
	fmt.Fprintln(g.stdout, tok)
	return nil
}

func (g globals) initConfig(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(g.stderr)
	force := fs.Bool("force", false, "Overwrite an existing config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(g.configPath); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", g.configPath)
	}
	if err := config.DefaultConfig().Save(g.configPath); err != nil {
		return err
	}
	fmt.Fprintf(g.stdout, "Wrote %s\n", g.configPath)
	return nil
}
