package storage

import (
	"fmt"
	"time"
)

// Interface defines the contract for data-lake operations
type Interface interface {
	Store(key string, data []byte) error
	Retrieve(key string) ([]byte, error)
	List(prefix string) ([]string, error)
	Delete(key string) error
}

// Lake key layout: raw scrapes partitioned by date then channel, media by
// channel, detection output under enriched/.

// MessageKey returns the lake key for one channel's scrape snapshot
func MessageKey(date time.Time, channelName string) string {
	return fmt.Sprintf("raw/telegram_messages/%s/%s.json", date.Format("2006-01-02"), channelName)
}

// MessagePrefix returns the listing prefix for one scrape date
func MessagePrefix(date time.Time) string {
	return fmt.Sprintf("raw/telegram_messages/%s/", date.Format("2006-01-02"))
}

// MediaKey returns the lake key for a downloaded media file
func MediaKey(channelName string, messageID int64, fileName string) string {
	return fmt.Sprintf("raw/media/%s/%d_%s", channelName, messageID, fileName)
}

// DetectionPrefix is the listing prefix for vision-model output
const DetectionPrefix = "enriched/detections/"
