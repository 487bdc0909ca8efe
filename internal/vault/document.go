package vault

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/amirbrooks/mdv/internal/collection"
	"github.com/amirbrooks/mdv/internal/frontmatter"
)

// document is a parsed markdown file. path is vault-relative with forward slashes.
type document struct {
	path        string
	types       []string
	frontmatter frontmatter.Map
	body        string
}

func (d document) folder() string {
	dir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(d.path)))
	if dir == "." {
		return ""
	}
	return dir
}

func (d document) name() string {
	return strings.TrimSuffix(filepath.Base(filepath.FromSlash(d.path)), ".md")
}

func (d document) toResult(includeBody bool) collection.Document {
	out := collection.Document{
		Path:        d.path,
		Types:       d.types,
		Frontmatter: d.frontmatter,
	}
	if out.Types == nil {
		out.Types = []string{}
	}
	if out.Frontmatter == nil {
		out.Frontmatter = frontmatter.Map{}
	}
	if includeBody {
		body := d.body
		out.Body = &body
	}
	return out
}

// parseDocument splits a file into frontmatter and body. A file without a
// leading "---" line has no frontmatter and is untyped.
func parseDocument(relPath string, b []byte) (document, error) {
	doc := document{path: relPath, frontmatter: frontmatter.Map{}}
	s := strings.ReplaceAll(string(b), "\r\n", "\n")
	s = strings.TrimPrefix(s, "\ufeff")
	if !strings.HasPrefix(s, "---\n") {
		doc.body = s
		return doc, nil
	}
	rest := strings.TrimPrefix(s, "---\n")
	var yamlPart string
	switch {
	case strings.HasPrefix(rest, "---\n"), rest == "---":
		yamlPart, doc.body = "", strings.TrimPrefix(strings.TrimPrefix(rest, "---"), "\n")
	default:
		parts := strings.SplitN(rest, "\n---\n", 2)
		if len(parts) != 2 {
			if strings.HasSuffix(rest, "\n---") {
				parts = []string{strings.TrimSuffix(rest, "\n---"), ""}
			} else {
				return doc, fmt.Errorf("%w: unterminated frontmatter", collection.ErrInvalid)
			}
		}
		yamlPart, doc.body = parts[0], parts[1]
	}
	doc.body = strings.TrimPrefix(doc.body, "\n")

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(yamlPart), &raw); err != nil {
		return doc, fmt.Errorf("%w: frontmatter: %v", collection.ErrInvalid, err)
	}
	doc.frontmatter = frontmatter.FromRaw(raw)
	doc.types = typesOf(doc.frontmatter.Get("type"))
	return doc, nil
}

func typesOf(v frontmatter.Value) []string {
	if list, ok := v.AsList(); ok {
		var out []string
		for _, t := range list {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
		return out
	}
	if s, ok := v.AsString(); ok && strings.TrimSpace(s) != "" {
		return []string{strings.TrimSpace(s)}
	}
	return nil
}

// renderDocument writes "type" first, then the remaining keys sorted.
func renderDocument(fm frontmatter.Map, body string) ([]byte, error) {
	keys := fm.Keys()
	sort.SliceStable(keys, func(i, j int) bool { return keys[i] == "type" && keys[j] != "type" })

	mapping := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		var val yaml.Node
		if err := val.Encode(fm[k]); err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		mapping.Content = append(mapping.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, &val)
	}
	yamlBytes, err := yaml.Marshal(mapping)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	if len(keys) > 0 {
		buf.Write(yamlBytes)
	}
	buf.WriteString("---\n\n")
	if strings.TrimSpace(body) != "" {
		buf.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

func atomicWriteFile(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	// Rename is atomic on the same filesystem.
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// createExclusive writes data to path only if nothing exists there yet.
func createExclusive(path string, data []byte) error {
	if _, err := os.Lstat(path); err == nil {
		return fs.ErrExist
	}
	return atomicWriteFile(path, data, 0o644)
}
