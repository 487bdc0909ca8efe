package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/amirbrooks/mdv/internal/argv"
	"github.com/amirbrooks/mdv/internal/collection"
	"github.com/amirbrooks/mdv/internal/config"
	"github.com/amirbrooks/mdv/internal/logger"
	"github.com/amirbrooks/mdv/internal/present"
	"github.com/amirbrooks/mdv/internal/request"
	"github.com/amirbrooks/mdv/internal/vault"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// Exit codes
const (
	ExitOK       = 0
	ExitError    = 1
	ExitUsage    = 2
	ExitNotFound = 3
	ExitInvalid  = 4
	ExitInternal = 10
)

// Command is the closed set of top-level commands.
type Command int

const (
	CmdUnknown Command = iota
	CmdHelp
	CmdInit
	CmdAdd
	CmdCapture
	CmdQuery
	CmdRun
	CmdReport
	CmdValidate
	CmdList
	CmdInbox
	CmdVersion
)

func parseCommand(name string) Command {
	switch name {
	case "help", "--help", "-h":
		return CmdHelp
	case "init":
		return CmdInit
	case "add":
		return CmdAdd
	case "capture":
		return CmdCapture
	case "query", "q":
		return CmdQuery
	case "run":
		return CmdRun
	case "report":
		return CmdReport
	case "validate":
		return CmdValidate
	case "list", "ls":
		return CmdList
	case "inbox":
		return CmdInbox
	case "version", "--version":
		return CmdVersion
	default:
		return CmdUnknown
	}
}

type GlobalFlags struct {
	Vault    string
	Config   string
	LogLevel string
}

// App holds everything a command touches outside its arguments. Fields left
// nil are filled with the real implementations by Run.
type App struct {
	Stdout io.Writer
	Stderr io.Writer
	Now    func() time.Time
	NewID  func() string
	Open   collection.Opener
	Config *config.Config
	Logger *zap.Logger

	gf       GlobalFlags
	errColor *color.Color
}

// NewApp returns an App wired to the process environment.
func NewApp() *App {
	return &App{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run runs one command with the process environment and returns the exit code.
func Run(args []string) int {
	return NewApp().Run(args)
}

// Run parses global flags, dispatches to one command and returns its exit code.
func (a *App) Run(args []string) int {
	a.defaults()

	gf, rest, err := extractGlobalFlags(args)
	if err != nil {
		a.fail("mdv", err)
		return ExitUsage
	}
	a.gf = gf

	if a.Config == nil {
		cfg, err := config.Load(gf.Config)
		if err != nil {
			a.fail("mdv", err)
			return ExitUsage
		}
		a.Config = cfg
	}
	if a.Logger == nil {
		l, err := logger.New(logger.Options{
			Level:  a.Config.ResolveLogLevel(gf.LogLevel),
			File:   config.ExpandHome(a.Config.LogFile),
			Stderr: a.Stderr,
		})
		if err != nil {
			a.fail("mdv", err)
			return ExitUsage
		}
		a.Logger = l
	}
	defer func() { _ = a.Logger.Sync() }()

	name := "help"
	var cmdArgs []string
	if len(rest) > 0 {
		name, cmdArgs = rest[0], rest[1:]
	}

	start := time.Now()
	code := a.dispatch(parseCommand(name), name, cmdArgs)
	a.Logger.Debug("command finished",
		zap.String("command", name),
		zap.Int("exit", code),
		zap.Duration("took", time.Since(start)))
	return code
}

func (a *App) dispatch(cmd Command, name string, args []string) int {
	switch cmd {
	case CmdHelp:
		a.printHelp()
		return ExitOK
	case CmdVersion:
		fmt.Fprintf(a.Stdout, "mdv %s\n", Version)
		return ExitOK
	case CmdInit:
		return a.cmdInit(args)
	case CmdAdd:
		return a.cmdAdd(args)
	case CmdCapture:
		return a.cmdCapture(args)
	case CmdQuery:
		return a.cmdQuery(args)
	case CmdRun:
		return a.cmdRun(args)
	case CmdReport:
		return a.cmdReport(args)
	case CmdValidate:
		return a.cmdValidate(args)
	case CmdList:
		return a.cmdList(args)
	case CmdInbox:
		return a.cmdInbox(args)
	default:
		fmt.Fprintf(a.Stderr, "Unknown command: %s\n\n", name)
		a.printHelp()
		return ExitUsage
	}
}

func (a *App) defaults() {
	if a.Stdout == nil {
		a.Stdout = os.Stdout
	}
	if a.Stderr == nil {
		a.Stderr = os.Stderr
	}
	if a.Now == nil {
		a.Now = time.Now
	}
	if a.NewID == nil {
		a.NewID = func() string { return ulid.Make().String() }
	}
	a.errColor = color.New(color.FgRed)
	if f, ok := a.Stderr.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		a.errColor.DisableColor()
	}
}

func (a *App) printHelp() {
	fmt.Fprint(a.Stdout, `mdv - query and update a vault of typed markdown documents

Usage:
  mdv [global flags] <command> [args]

Global flags:
  --vault <path|name>   Vault root (default: MDV_VAULT, default_vault, or .)
  --config <file>       Config file (default: MDV_CONFIG or ~/.config/mdv/config.toml)
  --log-level <level>   debug|info|warn|error (default: warn)

Commands:
  init                                 Write a starter schema.yaml
  add <type> [--<field> <value>...] [--body <text>] [--path <file>]
  capture <text...> [--context <text>] [--source <text>] [--json]
  query [--type t] [--where expr] [--order field:dir] [--folder f]
        [--limit n] [--offset n] [--body] [--json|--format text|task|list|json]
  run <query.yaml> [--json]
  list [type] [--limit n] [--json]
  inbox [--limit n] [--json]
  report [--json]
  validate [--json]
  version
  help

Without filters, query shows open tasks ordered by priority.
`)
}

// extractGlobalFlags strips known global flags from anywhere in args.
func extractGlobalFlags(args []string) (GlobalFlags, []string, error) {
	gf := GlobalFlags{}
	out := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			out = append(out, args[i:]...)
			break
		}
		name, inline, hasInline := strings.Cut(a, "=")
		var target *string
		switch name {
		case "--vault":
			target = &gf.Vault
		case "--config":
			target = &gf.Config
		case "--log-level":
			target = &gf.LogLevel
		default:
			out = append(out, a)
			continue
		}
		if hasInline {
			*target = inline
			continue
		}
		if i+1 >= len(args) || strings.HasPrefix(args[i+1], "--") {
			return gf, nil, fmt.Errorf("%s requires a value", name)
		}
		*target = args[i+1]
		i++
	}
	return gf, out, nil
}

// open opens the configured vault. Callers must defer closeCollection.
func (a *App) open() (collection.Collection, error) {
	path := a.Config.ResolveVault(a.gf.Vault)
	a.Logger.Debug("opening vault", zap.String("path", path))
	if a.Open != nil {
		return a.Open(path)
	}
	return vault.Open(path, vault.WithLogger(a.Logger), vault.WithClock(a.Now))
}

func (a *App) closeCollection(cmd string, c collection.Collection) {
	if err := c.Close(); err != nil {
		a.Logger.Warn("close failed", zap.String("command", cmd), zap.Error(err))
	}
}

func (a *App) presenter() *present.Presenter {
	return present.New(a.Stdout, a.Now)
}

func (a *App) fail(cmd string, err error) {
	a.errColor.Fprintf(a.Stderr, "%s: %v\n", cmd, err)
}

// failJSON reports err as a structured response when JSON output is active,
// otherwise on stderr. It returns the matching exit code.
func (a *App) failJSON(cmd string, err error, asJSON bool) int {
	if asJSON {
		_ = a.presenter().RenderError(err, present.ModeJSON)
	} else {
		a.fail(cmd, err)
	}
	return exitCodeFor(err)
}

func (a *App) usage(msg string) int {
	fmt.Fprintf(a.Stderr, "Usage: mdv %s\n", msg)
	return ExitUsage
}

func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, argv.ErrMissingValue),
		errors.Is(err, argv.ErrInvalidNumber),
		errors.Is(err, request.ErrMissingType),
		errors.Is(err, request.ErrMissingContent),
		errors.Is(err, request.ErrUnknownFormat),
		errors.Is(err, request.ErrInvalidQuery):
		return ExitUsage
	case errors.Is(err, collection.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return ExitNotFound
	case errors.Is(err, context.Canceled):
		return ExitInternal
	default:
		return ExitError
	}
}
