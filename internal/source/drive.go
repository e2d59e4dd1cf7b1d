package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Drive serves receipt images from a Google Drive folder. Item
// identifiers are Drive file IDs.
type Drive struct {
	svc *drive.Service
}

// NewDrive creates a read-only Drive provider from a service account
// credentials file.
func NewDrive(ctx context.Context, credentialsFile string) (*Drive, error) {
	svc, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}
	return &Drive{svc: svc}, nil
}

// Name implements Provider.
func (d *Drive) Name() string { return "drive" }

// ListItems implements Provider. containerID is the Drive folder ID.
// Pagination is followed to exhaustion.
func (d *Drive) ListItems(ctx context.Context, containerID string) ([]Item, error) {
	query := fmt.Sprintf("(%s) and '%s' in parents and trashed=false", mimeQuery(), containerID)

	var items []Item
	pageToken := ""
	for {
		call := d.svc.Files.List().
			Q(query).
			PageSize(100).
			Fields("nextPageToken, files(id, name, size, mimeType, modifiedTime)").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("listing drive folder %s: %w", containerID, err)
		}

		for _, f := range page.Files {
			modified, _ := time.Parse(time.RFC3339, f.ModifiedTime)
			items = append(items, Item{
				ID:         f.Id,
				Name:       f.Name,
				MIMEType:   f.MimeType,
				Size:       f.Size,
				ModifiedAt: modified,
			})
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	slog.Info("listed drive folder", "folder", containerID, "items", len(items))
	return items, nil
}

// Download implements Provider.
func (d *Drive) Download(ctx context.Context, id string) ([]byte, error) {
	resp, err := d.svc.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("downloading drive file %s: %w", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading drive file %s: %w", id, err)
	}
	return data, nil
}

func mimeQuery() string {
	parts := make([]string, 0, len(supportedMIMEs))
	for mime := range supportedMIMEs {
		parts = append(parts, fmt.Sprintf("mimeType='%s'", mime))
	}
	sort.Strings(parts)
	return strings.Join(parts, " or ")
}
