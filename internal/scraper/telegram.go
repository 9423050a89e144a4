package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/medscope/telegram-insights/internal/models"
	"github.com/sirupsen/logrus"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramSource collects channel posts through the Telegram Bot API. The
// bot must be a member of each channel; history older than the update
// window is not reachable over this API.
type TelegramSource struct {
	token   string
	client  *resty.Client
	baseURL string

	mu     sync.Mutex
	offset int64 // next update offset, acknowledged server-side
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type update struct {
	UpdateID    int64        `json:"update_id"`
	ChannelPost *channelPost `json:"channel_post"`
}

type channelPost struct {
	MessageID int64  `json:"message_id"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
	Caption   string `json:"caption"`
	Views     *int64 `json:"views"`
	Forwards  *int64 `json:"forward_count"`
	Chat      struct {
		ID       int64  `json:"id"`
		Title    string `json:"title"`
		Username string `json:"username"`
		Type     string `json:"type"`
	} `json:"chat"`
	From *struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
	Photo    []photoSize `json:"photo"`
	Document *struct {
		FileID   string `json:"file_id"`
		FileName string `json:"file_name"`
		MimeType string `json:"mime_type"`
		FileSize *int64 `json:"file_size"`
	} `json:"document"`
}

type photoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize *int64 `json:"file_size"`
}

type telegramFile struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
	FileSize *int64 `json:"file_size"`
}

// NewTelegramSource creates a Telegram Bot API source
func NewTelegramSource(token string) *TelegramSource {
	return &TelegramSource{
		token:   token,
		client:  resty.New().SetTimeout(30 * time.Second),
		baseURL: telegramAPIBase,
	}
}

func (t *TelegramSource) Name() string {
	return "telegram"
}

func (t *TelegramSource) Enabled() bool {
	return t.token != ""
}

// FetchPosts drains the bot's update queue and keeps channel posts from the
// registered channels, newest updates acknowledged via the offset. Scheduled
// and manually triggered ingestion runs can overlap, so the whole drain is
// serialized: interleaved getUpdates calls would tear the offset and drop or
// double-acknowledge update batches.
func (t *TelegramSource) FetchPosts(ctx context.Context, channels []string, limit int) ([]models.RawMessage, error) {
	if !t.Enabled() {
		logrus.Debug("Telegram source disabled - missing bot token")
		return nil, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	registered := make(map[string]bool, len(channels))
	for _, name := range channels {
		registered[strings.ToLower(name)] = true
	}

	var messages []models.RawMessage
	for len(messages) < limit {
		updates, err := t.fetchUpdates(ctx)
		if err != nil {
			return nil, fmt.Errorf("telegram getUpdates failed: %w", err)
		}
		if len(updates) == 0 {
			break
		}

		for _, u := range updates {
			if u.UpdateID >= t.offset {
				t.offset = u.UpdateID + 1
			}
			if u.ChannelPost == nil {
				continue
			}
			if !registered[strings.ToLower(u.ChannelPost.Chat.Username)] {
				logrus.Debugf("Skipping post from unregistered channel %q", u.ChannelPost.Chat.Username)
				continue
			}
			messages = append(messages, mapChannelPost(u.ChannelPost))
		}
	}

	return deduplicateMessages(messages), nil
}

func (t *TelegramSource) fetchUpdates(ctx context.Context) ([]update, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"offset":          fmt.Sprintf("%d", t.offset),
			"limit":           "100",
			"allowed_updates": `["channel_post"]`,
		}).
		Get(fmt.Sprintf("%s/bot%s/getUpdates", t.baseURL, t.token))

	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("telegram API returned status %d", resp.StatusCode())
	}

	var api apiResponse
	if err := json.Unmarshal(resp.Body(), &api); err != nil {
		return nil, err
	}
	if !api.OK {
		return nil, fmt.Errorf("telegram API error: %s", api.Description)
	}

	var updates []update
	if err := json.Unmarshal(api.Result, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// DownloadMedia resolves a file ID and downloads its bytes
func (t *TelegramSource) DownloadMedia(ctx context.Context, fileID string) (string, []byte, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParam("file_id", fileID).
		Get(fmt.Sprintf("%s/bot%s/getFile", t.baseURL, t.token))

	if err != nil {
		return "", nil, err
	}

	var api apiResponse
	if err := json.Unmarshal(resp.Body(), &api); err != nil {
		return "", nil, err
	}
	if !api.OK {
		return "", nil, fmt.Errorf("telegram getFile error: %s", api.Description)
	}

	var file telegramFile
	if err := json.Unmarshal(api.Result, &file); err != nil {
		return "", nil, err
	}
	if file.FilePath == "" {
		return "", nil, fmt.Errorf("telegram getFile returned no path for %s", fileID)
	}

	download, err := t.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("%s/file/bot%s/%s", t.baseURL, t.token, file.FilePath))
	if err != nil {
		return "", nil, err
	}
	if download.StatusCode() != 200 {
		return "", nil, fmt.Errorf("telegram file download returned status %d", download.StatusCode())
	}

	return path.Base(file.FilePath), download.Body(), nil
}

// mapChannelPost converts a Bot API channel post into a raw message record
func mapChannelPost(post *channelPost) models.RawMessage {
	msg := models.RawMessage{
		MessageID:   post.MessageID,
		ChannelID:   post.Chat.ID,
		ChannelName: post.Chat.Username,
		Text:        post.Text,
		Date:        time.Unix(post.Date, 0).UTC(),
		Views:       post.Views,
		Forwards:    post.Forwards,
		ScrapedAt:   time.Now().UTC(),
	}
	if msg.ChannelName == "" {
		msg.ChannelName = post.Chat.Title
	}
	if msg.Text == "" {
		msg.Text = post.Caption
	}
	if post.From != nil {
		senderID := post.From.ID
		msg.SenderID = &senderID
		msg.SenderUsername = post.From.Username
	}

	if len(post.Photo) > 0 {
		largest := post.Photo[0]
		for _, size := range post.Photo[1:] {
			if size.Width*size.Height > largest.Width*largest.Height {
				largest = size
			}
		}
		msg.Media = &models.RawMedia{
			Type:     "photo",
			FileID:   largest.FileID,
			FileSize: largest.FileSize,
			MimeType: "image/jpeg",
		}
	} else if post.Document != nil {
		msg.Media = &models.RawMedia{
			Type:     "document",
			FileID:   post.Document.FileID,
			FileSize: post.Document.FileSize,
			MimeType: post.Document.MimeType,
		}
	}

	return msg
}

// deduplicateMessages drops repeated (channel, message_id) pairs
func deduplicateMessages(messages []models.RawMessage) []models.RawMessage {
	seen := make(map[string]bool, len(messages))
	var unique []models.RawMessage
	for _, msg := range messages {
		key := fmt.Sprintf("%s_%d", msg.ChannelName, msg.MessageID)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, msg)
	}
	return unique
}
