package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/amirbrooks/mdv/internal/argv"
	"github.com/amirbrooks/mdv/internal/collection"
	"github.com/amirbrooks/mdv/internal/present"
	"github.com/amirbrooks/mdv/internal/request"
	"github.com/amirbrooks/mdv/internal/vault"
)

var (
	jsonFlag  = argv.Flag{Name: "json", Kind: argv.Bool}
	limitFlag = argv.Flag{Name: "limit", Short: "l", Kind: argv.Text}

	runFlags    = argv.Spec{Flags: []argv.Flag{jsonFlag, {Name: "format", Kind: argv.Text}}}
	listFlags   = argv.Spec{Flags: []argv.Flag{jsonFlag, limitFlag}}
	inboxFlags  = argv.Spec{Flags: []argv.Flag{jsonFlag, limitFlag}}
	reportFlags = argv.Spec{Flags: []argv.Flag{jsonFlag}}
	initFlags   = argv.Spec{Flags: []argv.Flag{{Name: "force", Kind: argv.Bool}}}
)

func (a *App) cmdAdd(args []string) int {
	p := argv.Tokenize(args, request.AddFlags)
	req, err := request.FromAddFlags(p)
	if errors.Is(err, request.ErrMissingType) {
		return a.usage("add <type> [--<field> <value>...] [--body <text>] [--path <file>]")
	}
	if err != nil {
		a.fail("add", err)
		return exitCodeFor(err)
	}

	c, err := a.open()
	if err != nil {
		a.fail("add", err)
		return exitCodeFor(err)
	}
	defer a.closeCollection("add", c)

	a.Logger.Debug("create", zap.String("type", req.Type), zap.Strings("fields", req.Frontmatter.Keys()))
	res, err := c.Create(context.Background(), req)
	if err != nil {
		a.fail("add", err)
		return exitCodeFor(err)
	}
	a.presenter().RenderCreated("Created", res.Path)
	return ExitOK
}

func (a *App) cmdCapture(args []string) int {
	p := argv.Tokenize(args, request.CaptureFlags)
	asJSON := p.Bool("json")
	req, err := request.FromCaptureFlags(p, a.NewID(), a.Now())
	if errors.Is(err, request.ErrMissingContent) && !asJSON {
		return a.usage("capture <text...> [--context <text>] [--source <text>]")
	}
	if err != nil {
		return a.failJSON("capture", err, asJSON)
	}

	c, err := a.open()
	if err != nil {
		return a.failJSON("capture", err, asJSON)
	}
	defer a.closeCollection("capture", c)

	res, err := c.Create(context.Background(), req)
	if err != nil {
		return a.failJSON("capture", err, asJSON)
	}
	if asJSON {
		if err := a.presenter().JSON(res); err != nil {
			a.fail("capture", err)
			return ExitInternal
		}
		return ExitOK
	}
	a.presenter().RenderCreated("Captured", res.Path)
	return ExitOK
}

func (a *App) cmdQuery(args []string) int {
	p := argv.Tokenize(args, request.QueryFlags)
	spec, err := request.FromFlags(p, request.DefaultView)
	if err != nil {
		return a.failJSON("query", err, wantsJSON(p))
	}
	return a.query("query", spec)
}

func (a *App) cmdRun(args []string) int {
	p := argv.Tokenize(args, runFlags)
	if len(p.Positional) == 0 {
		return a.usage("run <query.yaml> [--json]")
	}
	file := p.Positional[0]
	asJSON := wantsJSON(p)

	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("query file not found: %s: %w", file, collection.ErrNotFound)
		}
		return a.failJSON("run", err, asJSON)
	}
	req, err := request.FromYAML(data)
	if err != nil {
		return a.failJSON("run", fmt.Errorf("%s: %w", file, err), asJSON)
	}
	format, err := request.ParseFormat(p)
	if err != nil {
		return a.failJSON("run", err, asJSON)
	}
	return a.query("run", request.Spec{Request: req, View: request.ViewGeneric, Format: format})
}

// query executes a built request and renders it in the matching mode.
func (a *App) query(cmd string, spec request.Spec) int {
	mode := modeFor(spec)
	asJSON := mode == present.ModeJSON

	c, err := a.open()
	if err != nil {
		return a.failJSON(cmd, err, asJSON)
	}
	defer a.closeCollection(cmd, c)

	a.Logger.Debug("query", zap.String("command", cmd), zap.Any("request", spec.Request))
	resp, err := c.Query(context.Background(), spec.Request)
	if err != nil {
		return a.failJSON(cmd, err, asJSON)
	}
	if resp.Error != nil {
		return a.failResponse(cmd, resp, asJSON)
	}
	if err := a.presenter().Render(resp, mode); err != nil {
		a.fail(cmd, err)
		return ExitInternal
	}
	return ExitOK
}

// failResponse reports an error carried inside a query response. JSON mode
// prints the response as returned.
func (a *App) failResponse(cmd string, resp collection.QueryResponse, asJSON bool) int {
	if asJSON {
		if err := a.presenter().JSON(resp); err != nil {
			a.fail(cmd, err)
			return ExitInternal
		}
		return ExitError
	}
	a.fail(cmd, errors.New(resp.Error.Message))
	return ExitError
}

// wantsJSON reports whether --json or --format json was given.
func wantsJSON(p argv.Parsed) bool {
	return p.Bool("json") || strings.EqualFold(strings.TrimSpace(p.String("format")), "json")
}

func modeFor(spec request.Spec) present.Mode {
	switch spec.Format {
	case request.FormatJSON:
		return present.ModeJSON
	case request.FormatTask:
		return present.ModeTask
	case request.FormatList:
		return present.ModeGeneric
	}
	if spec.View == request.ViewTasks {
		return present.ModeTask
	}
	return present.ModeGeneric
}

func (a *App) cmdList(args []string) int {
	p := argv.Tokenize(args, listFlags)
	limit, err := nonNegativeLimit(p)
	if err != nil {
		return a.failJSON("list", err, p.Bool("json"))
	}
	var types []string
	for _, tok := range p.Positional {
		types = append(types, request.SplitList(tok)...)
	}
	format := request.FormatList
	if p.Bool("json") {
		format = request.FormatJSON
	}
	return a.query("list", request.Spec{Request: request.ListRequest(types, limit), Format: format})
}

func (a *App) cmdInbox(args []string) int {
	p := argv.Tokenize(args, inboxFlags)
	asJSON := p.Bool("json")
	limit, err := nonNegativeLimit(p)
	if err != nil {
		return a.failJSON("inbox", err, asJSON)
	}

	c, err := a.open()
	if err != nil {
		return a.failJSON("inbox", err, asJSON)
	}
	defer a.closeCollection("inbox", c)

	resp, err := c.Query(context.Background(), request.InboxRequest(limit))
	if err != nil {
		return a.failJSON("inbox", err, asJSON)
	}
	if resp.Error != nil {
		return a.failResponse("inbox", resp, asJSON)
	}
	mode := present.ModeInbox
	if asJSON {
		mode = present.ModeJSON
	}
	if err := a.presenter().Render(resp, mode); err != nil {
		a.fail("inbox", err)
		return ExitInternal
	}
	return ExitOK
}

func nonNegativeLimit(p argv.Parsed) (*int, error) {
	n, ok, err := p.Int("limit")
	if err != nil || !ok {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("--limit %d: %w", n, argv.ErrInvalidNumber)
	}
	return &n, nil
}

func (a *App) cmdReport(args []string) int {
	p := argv.Tokenize(args, reportFlags)
	asJSON := p.Bool("json")

	c, err := a.open()
	if err != nil {
		return a.failJSON("report", err, asJSON)
	}
	defer a.closeCollection("report", c)

	resp, err := c.Query(context.Background(), request.ListRequest(nil, nil))
	if err != nil {
		return a.failJSON("report", err, asJSON)
	}
	if resp.Error != nil {
		return a.failResponse("report", resp, asJSON)
	}
	if err := a.presenter().RenderReport(summarize(resp.Results), asJSON); err != nil {
		a.fail("report", err)
		return ExitInternal
	}
	return ExitOK
}

const (
	untypedLabel  = "(untyped)"
	noStatusLabel = "(none)"
)

// summarize counts documents per type and task documents per status. A
// document with several types is counted under each of them.
func summarize(docs []collection.Document) present.Report {
	types := map[string]int{}
	tasks := map[string]int{}
	for _, doc := range docs {
		if len(doc.Types) == 0 {
			types[untypedLabel]++
		}
		for _, t := range doc.Types {
			types[t]++
			if t != request.TaskType {
				continue
			}
			status, _ := doc.Frontmatter.Get("status").AsString()
			if status == "" {
				status = noStatusLabel
			}
			tasks[status]++
		}
	}
	return present.Report{Documents: len(docs), Types: counts(types), Tasks: counts(tasks)}
}

func counts(m map[string]int) []present.Count {
	out := make([]present.Count, 0, len(m))
	for name, n := range m {
		out = append(out, present.Count{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (a *App) cmdValidate(args []string) int {
	p := argv.Tokenize(args, reportFlags)
	asJSON := p.Bool("json")

	c, err := a.open()
	if err != nil {
		return a.failJSON("validate", err, asJSON)
	}
	defer a.closeCollection("validate", c)

	rep, err := c.Validate(context.Background())
	if err != nil {
		return a.failJSON("validate", err, asJSON)
	}
	if err := a.presenter().RenderValidation(rep, asJSON); err != nil {
		a.fail("validate", err)
		return ExitInternal
	}
	if !rep.Valid() {
		return ExitInvalid
	}
	return ExitOK
}

func (a *App) cmdInit(args []string) int {
	p := argv.Tokenize(args, initFlags)
	root := a.Config.ResolveVault(a.gf.Vault)

	res, err := vault.Init(root, p.Bool("force"))
	if err != nil {
		a.fail("init", err)
		return ExitInternal
	}
	if res.Written {
		fmt.Fprintf(a.Stdout, "Schema written to %s\n", res.SchemaPath)
	} else {
		fmt.Fprintf(a.Stdout, "Schema already exists: %s (use --force to overwrite)\n", res.SchemaPath)
	}
	for _, folder := range res.Folders {
		fmt.Fprintf(a.Stdout, "Folder: %s\n", folder)
	}
	return ExitOK
}
