package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/medscope/telegram-insights/internal/models"
	"github.com/medscope/telegram-insights/internal/storage"
)

// batchExecutor is the warehouse surface the loaders need: queued inserts
// submitted in one round trip.
type batchExecutor interface {
	Batch(ctx context.Context, batch *pgx.Batch) error
}

const insertMessageSQL = `
	INSERT INTO raw.telegram_messages (
		message_id, channel_id, channel_name, sender_id, sender_username,
		message_text, message_date, views, forwards,
		has_media, media_type, scraped_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (channel_name, message_id) DO NOTHING`

const insertMediaSQL = `
	INSERT INTO raw.telegram_media (
		message_id, channel_name, media_type, file_id, file_size, mime_type, local_path
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (channel_name, message_id) DO NOTHING`

// MessageLoader moves scraped channel snapshots from the data lake into the
// raw warehouse tables.
type MessageLoader struct {
	lake storage.Interface
	db   batchExecutor
}

func NewMessageLoader(lake storage.Interface, db batchExecutor) *MessageLoader {
	return &MessageLoader{lake: lake, db: db}
}

// LoadDate reads every channel snapshot stored for the given scrape date
// and inserts its messages and media rows. Returns the number of rows
// queued for insert.
func (l *MessageLoader) LoadDate(ctx context.Context, date time.Time) (int, error) {
	keys, err := l.lake.List(storage.MessagePrefix(date))
	if err != nil {
		return 0, fmt.Errorf("listing lake snapshots failed: %w", err)
	}
	if len(keys) == 0 {
		logrus.Infof("No snapshots found for %s", date.Format("2006-01-02"))
		return 0, nil
	}

	batch := &pgx.Batch{}
	rows := 0
	for _, key := range keys {
		data, err := l.lake.Retrieve(key)
		if err != nil {
			return 0, fmt.Errorf("retrieving snapshot %s failed: %w", key, err)
		}

		var snapshot models.ChannelSnapshot
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return 0, fmt.Errorf("decoding snapshot %s failed: %w", key, err)
		}

		rows += queueSnapshot(batch, &snapshot)
		logrus.Debugf("Queued %d messages from %s", len(snapshot.Messages), key)
	}

	if err := l.db.Batch(ctx, batch); err != nil {
		return 0, fmt.Errorf("loading messages failed: %w", err)
	}

	logrus.Infof("Loaded %d raw rows from %d snapshots", rows, len(keys))
	return rows, nil
}

func queueSnapshot(batch *pgx.Batch, snapshot *models.ChannelSnapshot) int {
	rows := 0
	for _, msg := range snapshot.Messages {
		var mediaType any
		if msg.Media != nil {
			mediaType = msg.Media.Type
		}
		batch.Queue(insertMessageSQL,
			msg.MessageID, msg.ChannelID, msg.ChannelName,
			msg.SenderID, msg.SenderUsername,
			msg.Text, msg.Date, msg.Views, msg.Forwards,
			msg.Media != nil, mediaType, msg.ScrapedAt,
		)
		rows++

		if msg.Media != nil {
			batch.Queue(insertMediaSQL,
				msg.MessageID, msg.ChannelName, msg.Media.Type,
				msg.Media.FileID, msg.Media.FileSize,
				msg.Media.MimeType, msg.Media.LocalPath,
			)
			rows++
		}
	}
	return rows
}
