// Package source abstracts where receipt images come from. Providers
// list the items in a container (a folder, a Drive directory) and
// download individual items by identifier.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Item is one downloadable receipt image.
type Item struct {
	ID         string
	Name       string
	MIMEType   string
	Size       int64
	ModifiedAt time.Time
}

// Provider lists and fetches receipt images from one backend.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string

	// ListItems returns the supported items inside containerID.
	ListItems(ctx context.Context, containerID string) ([]Item, error)

	// Download fetches the raw bytes of one item.
	Download(ctx context.Context, id string) ([]byte, error)
}

// supportedMIMEs are the content types the pipeline can decode.
var supportedMIMEs = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/tiff":      true,
	"image/bmp":       true,
	"image/webp":      true,
	"image/heic":      true,
	"application/pdf": true,
}

var extensionMIMEs = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".heic": "image/heic",
	".pdf":  "application/pdf",
}

// MIMEForName maps a filename to a supported content type, or "" when
// the extension is not recognized.
func MIMEForName(name string) string {
	return extensionMIMEs[strings.ToLower(filepath.Ext(name))]
}

// Local serves receipt images from a directory tree. Item identifiers
// are paths relative to the root.
type Local struct {
	root string
}

// NewLocal creates a provider rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{root: dir}
}

// Name implements Provider.
func (l *Local) Name() string { return "local" }

// ListItems implements Provider. containerID is a subdirectory of the
// root; empty means the root itself. Unsupported files are skipped.
func (l *Local) ListItems(ctx context.Context, containerID string) ([]Item, error) {
	dir := filepath.Join(l.root, containerID)
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var items []Item
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if de.IsDir() {
			continue
		}

		mime := MIMEForName(de.Name())
		if mime == "" {
			continue
		}

		info, err := de.Info()
		if err != nil {
			return nil, fmt.Errorf("reading file info: %w", err)
		}

		items = append(items, Item{
			ID:         filepath.Join(containerID, de.Name()),
			Name:       de.Name(),
			MIMEType:   mime,
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// Download implements Provider.
func (l *Local) Download(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(l.root, id))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", id, err)
	}
	return data, nil
}
