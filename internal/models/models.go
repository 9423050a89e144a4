package models

import "time"

// Channel is a row of the channel dimension with per-channel analytics.
type Channel struct {
	ChannelName              string     `json:"channel_name"`
	ChannelID                *int64     `json:"channel_id,omitempty"`
	Category                 string     `json:"category,omitempty"`
	Priority                 string     `json:"priority,omitempty"`
	MessageCount             int64      `json:"message_count"`
	MediaCount               int64      `json:"media_count"`
	MedicalMessagesCount     int64      `json:"medical_messages_count"`
	PriceMessagesCount       int64      `json:"price_messages_count"`
	AvgMessageLength         float64    `json:"avg_message_length"`
	UniqueSenders            int64      `json:"unique_senders"`
	MedicalContentPercentage float64    `json:"medical_content_percentage"` // 0-100
	MediaContentPercentage   float64    `json:"media_content_percentage"`   // 0-100
	ActivityLevel            string     `json:"activity_level"`
	ChannelType              string     `json:"channel_type"`
	FirstMessageDate         *time.Time `json:"first_message_date,omitempty"`
	LastMessageDate          *time.Time `json:"last_message_date,omitempty"`
}

// Message is a row of the message fact table.
type Message struct {
	MessageID               int64     `json:"message_id"`
	ChannelName             string    `json:"channel_name"`
	SenderID                *int64    `json:"sender_id,omitempty"`
	SenderUsername          string    `json:"sender_username,omitempty"`
	MessageText             string    `json:"message_text,omitempty"`
	MessageLength           int64     `json:"message_length"`
	MessageDate             time.Time `json:"message_date"`
	HasText                 bool      `json:"has_text"`
	HasMedia                bool      `json:"has_media"`
	ContainsMedicalKeywords bool      `json:"contains_medical_keywords"`
	ContainsPriceInfo       bool      `json:"contains_price_info"`
	MessageType             string    `json:"message_type,omitempty"`
	ContentType             string    `json:"content_type,omitempty"`
	MediaType               string    `json:"media_type,omitempty"`
	LocalMediaPath          string    `json:"local_media_path,omitempty"`
}

// ActivityBucket aggregates one channel's messages over one calendar bucket.
type ActivityBucket struct {
	ChannelName      string    `json:"channel_name"`
	ActivityDate     time.Time `json:"activity_date"`
	MessageCount     int64     `json:"message_count"`
	MediaCount       int64     `json:"media_count"`
	MedicalCount     int64     `json:"medical_count"`
	PriceCount       int64     `json:"price_count"`
	AvgMessageLength float64   `json:"avg_message_length"`
	UniqueSenders    int64     `json:"unique_senders"`
}

// SearchHit is a message matched by a text search, with its tiered score.
type SearchHit struct {
	MessageID               int64     `json:"message_id"`
	ChannelName             string    `json:"channel_name"`
	MessageText             string    `json:"message_text,omitempty"`
	MessageDate             time.Time `json:"message_date"`
	ContainsMedicalKeywords bool      `json:"contains_medical_keywords"`
	ContainsPriceInfo       bool      `json:"contains_price_info"`
	RelevanceScore          float64   `json:"relevance_score"` // 1.0, 0.8, 0.6 or 0.3
}

// ProductMention aggregates vocabulary matches by (product, channel).
type ProductMention struct {
	ProductName    string    `json:"product_name"`
	MentionCount   int64     `json:"mention_count"`
	ChannelName    string    `json:"channel_name"`
	FirstMentioned time.Time `json:"first_mentioned"`
	LastMentioned  time.Time `json:"last_mentioned"`
	MedicalRelated bool      `json:"medical_related"`
}

// ChannelRanking positions a channel by a single metric. Rank is the ordinal
// position in the sorted result, not a gap-aware rank over tied values.
type ChannelRanking struct {
	Rank        int64   `json:"rank"`
	ChannelName string  `json:"channel_name"`
	MetricValue float64 `json:"metric_value"`
	MetricType  string  `json:"metric_type"`
}

// BoundingBox holds pixel-space detection coordinates.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// ImageDetection is a row of the image-detection fact table.
type ImageDetection struct {
	DetectionID      int64       `json:"detection_id"`
	MessageID        *int64      `json:"message_id,omitempty"`
	ChannelName      string      `json:"channel_name"`
	ObjectClass      string      `json:"detected_object_class"`
	ConfidenceScore  float64     `json:"confidence_score"` // 0-1
	ConfidenceLevel  string      `json:"confidence_level"` // "high", "medium" or "low"
	IsMedicalRelated bool        `json:"is_medical_related"`
	BBox             BoundingBox `json:"bbox_coordinates"`
	DetectionArea    float64     `json:"detection_area"`
	DetectionTime    time.Time   `json:"detection_time"`
}

// DateRange bounds the message fact by earliest and latest timestamps.
type DateRange struct {
	Earliest *time.Time `json:"earliest,omitempty"`
	Latest   *time.Time `json:"latest,omitempty"`
}

// AnalyticsSummary is the single aggregate over the whole message fact.
type AnalyticsSummary struct {
	TotalMessages            int64     `json:"total_messages"`
	TotalChannels            int64     `json:"total_channels"`
	TotalMedia               int64     `json:"total_media"`
	TotalMedicalMessages     int64     `json:"total_medical_messages"`
	TotalPriceMessages       int64     `json:"total_price_messages"`
	DateRange                DateRange `json:"date_range"`
	AvgMessageLength         float64   `json:"avg_message_length"`
	MedicalContentPercentage float64   `json:"medical_content_percentage"` // 0 when the fact is empty
}

// RawMessage is one message as scraped from Telegram, before loading.
type RawMessage struct {
	MessageID      int64     `json:"message_id"`
	ChannelID      int64     `json:"channel_id"`
	ChannelName    string    `json:"channel_name"`
	SenderID       *int64    `json:"sender_id,omitempty"`
	SenderUsername string    `json:"sender_username,omitempty"`
	Text           string    `json:"text,omitempty"`
	Date           time.Time `json:"date"`
	Views          *int64    `json:"views,omitempty"`
	Forwards       *int64    `json:"forwards,omitempty"`
	Media          *RawMedia `json:"media,omitempty"`
	ScrapedAt      time.Time `json:"scraped_at"`
}

// RawMedia describes an attachment referenced by a raw message.
type RawMedia struct {
	Type      string `json:"type"`
	FileID    string `json:"file_id,omitempty"`
	FileSize  *int64 `json:"file_size,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	LocalPath string `json:"local_path,omitempty"`
}

// ChannelSnapshot is the unit written to the raw data lake: one channel,
// one scrape run.
type ChannelSnapshot struct {
	ChannelName  string       `json:"channel_name"`
	ChannelID    int64        `json:"channel_id"`
	ScrapeDate   time.Time    `json:"scrape_date"`
	MessageCount int          `json:"message_count"`
	Messages     []RawMessage `json:"messages"`
}

// RawDetection is one object detection as emitted by the external vision
// model, before loading.
type RawDetection struct {
	ClassID       int         `json:"class_id"`
	ClassName     string      `json:"class_name"`
	Confidence    float64     `json:"confidence"`
	BBox          BoundingBox `json:"bbox"`
	Area          float64     `json:"area"`
	DetectionTime time.Time   `json:"detection_time"`
}

// DetectionFile is the on-lake layout of one image's detection results.
type DetectionFile struct {
	ImagePath   string         `json:"image_path"`
	ImageName   string         `json:"image_name"`
	ChannelName string         `json:"channel_name"`
	MessageID   *int64         `json:"message_id,omitempty"`
	Detections  []RawDetection `json:"detections"`
}

// RunReport summarizes one pipeline run for notifications and /metrics.
type RunReport struct {
	RunID         string         `json:"run_id"`
	Job           string         `json:"job"`
	StartedAt     time.Time      `json:"started_at"`
	Duration      string         `json:"duration"`
	ChannelCounts map[string]int `json:"channel_counts,omitempty"`
	MessagesSeen  int            `json:"messages_seen"`
	MediaSeen     int            `json:"media_seen"`
	RowsLoaded    int            `json:"rows_loaded"`
	ErrorCount    int            `json:"error_count"`
	Succeeded     bool           `json:"succeeded"`
}

// PaginationInfo accompanies list responses.
type PaginationInfo struct {
	Page  int   `json:"page"`
	Size  int   `json:"size"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}
