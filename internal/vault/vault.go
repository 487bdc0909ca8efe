// Package vault is a collection of markdown documents with YAML frontmatter,
// typed by an optional schema.yaml at the vault root. Documents are indexed into
// an in-memory SQLite database when the vault is opened, and queries run
// against that index.
package vault

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/amirbrooks/mdv/internal/collection"
	"github.com/amirbrooks/mdv/internal/frontmatter"
)

type randReader struct{}

func (randReader) Read(p []byte) (int, error) { return rand.Read(p) }

// Vault implements collection.Collection. It is not safe for concurrent use.
type Vault struct {
	root   string
	schema *Schema
	db     *sql.DB
	docs   map[string]document
	broken []collection.Problem

	log *zap.Logger
	now func() time.Time
}

var _ collection.Collection = (*Vault)(nil)

type Option func(*Vault)

func WithLogger(l *zap.Logger) Option {
	return func(v *Vault) {
		if l != nil {
			v.log = l
		}
	}
}

// WithClock sets the clock used for generated ids.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		if now != nil {
			v.now = now
		}
	}
}

const createDocs = `CREATE TABLE docs (
	path   TEXT PRIMARY KEY,
	folder TEXT NOT NULL,
	name   TEXT NOT NULL,
	types  TEXT NOT NULL,
	fields TEXT NOT NULL
)`

// Open indexes the vault rooted at path. The directory must exist.
func Open(path string, opts ...Option) (*Vault, error) {
	v := &Vault{
		root: path,
		docs: map[string]document{},
		log:  zap.NewNop(),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(v)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("vault %s: %w", path, collection.ErrNotFound)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault %s: not a directory: %w", path, collection.ErrNotFound)
	}

	v.schema, err = loadSchema(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	v.db = db
	if _, err := db.Exec(createDocs); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	start := time.Now()
	if err := v.scan(); err != nil {
		db.Close()
		return nil, err
	}
	v.log.Debug("vault indexed",
		zap.String("root", path),
		zap.Int("documents", len(v.docs)),
		zap.Int("unreadable", len(v.broken)),
		zap.Duration("took", time.Since(start)))
	return v, nil
}

// Root returns the vault directory.
func (v *Vault) Root() string { return v.root }

// Schema returns the loaded schema. It is empty when schema.yaml is absent.
func (v *Vault) Schema() *Schema { return v.schema }

func (v *Vault) scan() error {
	return filepath.WalkDir(v.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != v.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".md") || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(v.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		doc, err := parseDocument(rel, b)
		if err != nil {
			v.broken = append(v.broken, collection.Problem{Path: rel, Message: err.Error()})
			v.log.Debug("skipping unreadable document", zap.String("path", rel), zap.Error(err))
			return nil
		}
		return v.index(context.Background(), doc)
	})
}

func (v *Vault) index(ctx context.Context, doc document) error {
	types := doc.types
	if types == nil {
		types = []string{}
	}
	typesJSON, err := json.Marshal(types)
	if err != nil {
		return err
	}
	fieldsJSON, err := json.Marshal(doc.frontmatter)
	if err != nil {
		return fmt.Errorf("%s: %w", doc.path, err)
	}
	_, err = v.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO docs (path, folder, name, types, fields) VALUES (?, ?, ?, ?, ?)`,
		doc.path, doc.folder(), doc.name(), string(typesJSON), string(fieldsJSON))
	if err != nil {
		return fmt.Errorf("failed to index %s: %w", doc.path, err)
	}
	v.docs[doc.path] = doc
	return nil
}

// Close releases the index. Calling it more than once is harmless.
func (v *Vault) Close() error {
	if v.db == nil {
		return nil
	}
	err := v.db.Close()
	v.db = nil
	return err
}

func (v *Vault) checkOpen() error {
	if v.db == nil {
		return errors.New("vault is closed")
	}
	return nil
}

// Create writes a new document. Existing files are never overwritten.
func (v *Vault) Create(ctx context.Context, req collection.CreateRequest) (collection.CreateResult, error) {
	if err := v.checkOpen(); err != nil {
		return collection.CreateResult{}, err
	}
	typ := strings.TrimSpace(req.Type)
	if typ == "" {
		return collection.CreateResult{}, fmt.Errorf("%w: missing type", collection.ErrInvalid)
	}

	fm := frontmatter.Map{}
	for k, val := range req.Frontmatter {
		fm[k] = val
	}
	fm["type"] = frontmatter.String(typ)

	if v.schema.Defines() {
		def, ok := v.schema.lookup(typ)
		if !ok {
			return collection.CreateResult{}, fmt.Errorf("%w: unknown type %q", collection.ErrInvalid, typ)
		}
		if errs := def.check(fm); errs != nil {
			return collection.CreateResult{}, fmt.Errorf("%w: %s: %v", collection.ErrInvalid, typ, errs)
		}
	}

	data, err := renderDocument(fm, req.Body)
	if err != nil {
		return collection.CreateResult{}, err
	}

	rel, err := v.placeDocument(typ, req.Path, fm, data)
	if err != nil {
		return collection.CreateResult{}, err
	}
	doc, err := parseDocument(rel, data)
	if err != nil {
		return collection.CreateResult{}, err
	}
	if err := v.index(ctx, doc); err != nil {
		return collection.CreateResult{}, err
	}
	v.log.Debug("document created", zap.String("path", rel), zap.String("type", typ))
	return collection.CreateResult{Path: rel}, nil
}

// placeDocument writes data under an explicit or generated path and returns
// the vault-relative path that was used.
func (v *Vault) placeDocument(typ, explicit string, fm frontmatter.Map, data []byte) (string, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		rel, err := v.cleanRelPath(explicit)
		if err != nil {
			return "", err
		}
		if err := createExclusive(filepath.Join(v.root, filepath.FromSlash(rel)), data); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return "", fmt.Errorf("%w: %s already exists", collection.ErrInvalid, rel)
			}
			return "", err
		}
		return rel, nil
	}

	folder := v.schema.FolderFor(typ)
	base := v.baseName(fm)
	for n := 1; ; n++ {
		name := base
		if n > 1 {
			name = fmt.Sprintf("%s-%d", base, n)
		}
		rel := name + ".md"
		if folder != "" {
			rel = folder + "/" + rel
		}
		err := createExclusive(filepath.Join(v.root, filepath.FromSlash(rel)), data)
		if err == nil {
			return rel, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
	}
}

func (v *Vault) baseName(fm frontmatter.Map) string {
	for _, key := range []string{"title", "id"} {
		if s, ok := fm.Get(key).AsString(); ok {
			if name := slug.Make(s); name != "" {
				return name
			}
		}
	}
	return strings.ToLower(v.newULID())
}

func (v *Vault) cleanRelPath(p string) (string, error) {
	p = filepath.ToSlash(strings.TrimSpace(p))
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: path %q must be relative to the vault", collection.ErrInvalid, p)
	}
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: path %q leaves the vault", collection.ErrInvalid, p)
	}
	if !strings.EqualFold(filepath.Ext(clean), ".md") {
		clean += ".md"
	}
	return clean, nil
}

func (v *Vault) newULID() string {
	t := ulid.Timestamp(v.now())
	id, err := ulid.New(t, ulid.Monotonic(randReader{}, 0))
	if err != nil {
		return fmt.Sprintf("%d", v.now().UnixNano())
	}
	return id.String()
}

// Validate checks every document against the schema. Documents that failed
// to parse and schema violations are issues; untyped documents and types the
// schema does not define are warnings.
func (v *Vault) Validate(ctx context.Context) (collection.ValidationReport, error) {
	if err := v.checkOpen(); err != nil {
		return collection.ValidationReport{}, err
	}
	rep := collection.ValidationReport{Checked: len(v.docs) + len(v.broken)}
	rep.Issues = append(rep.Issues, v.broken...)
	if !v.schema.Defines() {
		rep.Warnings = append(rep.Warnings, collection.Problem{Message: "no types defined in " + SchemaFile + "; documents are not checked"})
	}

	paths := make([]string, 0, len(v.docs))
	for p := range v.docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return collection.ValidationReport{}, err
		}
		doc := v.docs[p]
		if len(doc.types) == 0 {
			rep.Warnings = append(rep.Warnings, collection.Problem{Path: p, Message: "document has no type"})
			continue
		}
		if !v.schema.Defines() {
			continue
		}
		for _, typ := range doc.types {
			def, ok := v.schema.lookup(typ)
			if !ok {
				rep.Warnings = append(rep.Warnings, collection.Problem{Path: p, Message: fmt.Sprintf("type %q is not defined in %s", typ, SchemaFile)})
				continue
			}
			if errs := def.check(doc.frontmatter); errs != nil {
				rep.Issues = append(rep.Issues, problems(p, errs)...)
			}
		}
	}
	sort.SliceStable(rep.Issues, func(i, j int) bool { return rep.Issues[i].Path < rep.Issues[j].Path })
	return rep, nil
}
