package scraper

import (
	"context"

	"github.com/medscope/telegram-insights/internal/models"
)

// Source is the contract for message-collection clients
type Source interface {
	Name() string
	Enabled() bool
	// FetchPosts collects up to limit new channel posts for the named
	// channels. Channels outside the list are ignored.
	FetchPosts(ctx context.Context, channels []string, limit int) ([]models.RawMessage, error)
	// DownloadMedia fetches the bytes of a media attachment by file ID.
	DownloadMedia(ctx context.Context, fileID string) (string, []byte, error)
}
