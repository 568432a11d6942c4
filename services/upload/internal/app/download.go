package app

import (
	"context"
	"strings"

	"papercast/pkg/domain"
)

// Download is a short-lived link to the stored PDF.
type Download struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// DownloadURL presigns a GET for an upload the actor may read.
func (a *App) DownloadURL(ctx context.Context, actor domain.Actor, id string) (Download, error) {
	if err := requireOwnerOrAdmin(actor); err != nil {
		return Download{}, err
	}
	u, err := a.loadVisible(ctx, actor, id)
	if err != nil {
		return Download{}, err
	}
	if strings.TrimSpace(u.StorageKey) == "" {
		return Download{}, domain.NotFound("upload has no stored file")
	}
	url, err := a.objects.PresignGet(ctx, u.StorageKey, a.presignExpiry)
	if err != nil {
		return Download{}, domain.Storage("could not create download link", err)
	}
	return Download{URL: url, Filename: u.OriginalFilename}, nil
}
