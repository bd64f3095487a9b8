package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bull/docrag-mcp-server/internal/markdown"
)

const sidecarExt = ".txt"

// Directory is a Source over a file or a directory tree on local disk.
type Directory struct {
	root      string
	converter *markdown.Converter
}

// NewDirectory creates a source rooted at path, which may be a single file.
func NewDirectory(path string, converter *markdown.Converter) *Directory {
	if converter == nil {
		converter = markdown.NewConverter(0)
	}
	return &Directory{root: path, converter: converter}
}

// List returns the keys (paths relative to the root) of every ingestible
// file, sorted. Sidecar files are listed under their original's key.
func (d *Directory) List(ctx context.Context) ([]string, error) {
	info, err := os.Stat(d.root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{filepath.Base(d.root)}, nil
	}

	seen := make(map[string]bool)
	err = filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			if path != d.root && strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		if key, ok := d.keyFor(rel); ok {
			seen[key] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", d.root, err)
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// keyFor decides whether rel is ingestible and under which key.
func (d *Directory) keyFor(rel string) (string, bool) {
	switch TypeFor(rel) {
	case TypeMarkdown:
		return rel, true
	case TypeText:
		original := strings.TrimSuffix(rel, filepath.Ext(rel))
		if TypeFor(original) != TypeOther && fileExists(filepath.Join(d.root, original)) {
			return original, true
		}
		return rel, true
	}
	if fileExists(filepath.Join(d.root, rel+sidecarExt)) {
		return rel, true
	}
	return "", false
}

// Fetch reads the document stored under key.
func (d *Directory) Fetch(ctx context.Context, key string) (*Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := d.root
	if info, err := os.Stat(d.root); err == nil && info.IsDir() {
		path = filepath.Join(d.root, key)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	item := &Item{
		Key:  key,
		Name: filepath.Base(path),
		Size: info.Size(),
		Type: TypeFor(path),
	}
	if abs, err := filepath.Abs(path); err == nil {
		item.Origin = abs
	} else {
		item.Origin = path
	}

	textPath := path
	if item.Type != TypeText && item.Type != TypeMarkdown {
		textPath = path + sidecarExt
		if !fileExists(textPath) {
			return nil, fmt.Errorf("%w: %s has no extracted text", ErrUnsupported, key)
		}
	}

	raw, err := os.ReadFile(textPath)
	if err != nil {
		return nil, err
	}

	if item.Type == TypeMarkdown {
		doc, err := d.converter.Convert(raw)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", key, err)
		}
		item.Text = doc.Text
		item.Description = doc.Description()
		return item, nil
	}

	item.Text = string(raw)
	return item, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
