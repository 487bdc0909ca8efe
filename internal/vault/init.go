package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/amirbrooks/mdv/internal/collection"
)

// InitResult reports what Init wrote.
type InitResult struct {
	SchemaPath string
	// Written is false when an existing schema was kept.
	Written bool
	// Folders lists the type folders that exist after Init, relative to root.
	Folders []string
}

// Init prepares root as a vault: it writes the starter schema unless one
// already exists (or force is set) and creates the folder of every type.
func Init(root string, force bool) (InitResult, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return InitResult{}, err
	}
	res := InitResult{SchemaPath: filepath.Join(root, SchemaFile)}

	_, err := os.Stat(res.SchemaPath)
	if force || os.IsNotExist(err) {
		if err := atomicWriteFile(res.SchemaPath, []byte(StarterSchema), 0o644); err != nil {
			return res, err
		}
		res.Written = true
	} else if err != nil {
		return res, err
	}

	schema, err := loadSchema(root)
	if err != nil {
		return res, err
	}
	names := make([]string, 0, len(schema.Types))
	for name := range schema.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		folder := schema.FolderFor(name)
		if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(folder)), 0o755); err != nil {
			return res, fmt.Errorf("%w: folder %s: %v", collection.ErrInvalid, folder, err)
		}
		res.Folders = append(res.Folders, folder)
	}
	return res, nil
}
