package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/medscope/telegram-insights/internal/models"
	"github.com/medscope/telegram-insights/internal/warehouse"
)

// ErrInvalidParameter marks a caller-supplied value outside the documented
// domain. It is raised before any query is built.
var ErrInvalidParameter = errors.New("invalid parameter")

// Service builds parameterized read queries against the warehouse star
// schema and maps result rows into typed records. It holds no state beyond
// the injected executor; every operation is idempotent for identical
// parameters and unchanged data.
type Service struct {
	exec warehouse.Executor
}

// New creates an analytics service over the given executor
func New(exec warehouse.Executor) *Service {
	return &Service{exec: exec}
}

// builder accumulates positional arguments and hands out their placeholders
// in emission order, so placeholder numbering can never drift from the
// argument list.
type builder struct {
	args []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

const channelColumns = `channel_name, channel_id, category, priority,
	message_count, media_count, medical_messages_count, price_messages_count,
	avg_message_length::float8 AS avg_message_length, unique_senders,
	medical_content_percentage::float8 AS medical_content_percentage,
	media_content_percentage::float8 AS media_content_percentage,
	activity_level, channel_type, first_message_date, last_message_date`

// ListChannels returns channels ordered by message_count descending.
// An empty result is an empty slice, not an error.
func (s *Service) ListChannels(ctx context.Context, limit, offset int) ([]models.Channel, error) {
	b := &builder{}
	query := fmt.Sprintf(`SELECT %s FROM marts.dim_channels ORDER BY message_count DESC LIMIT %s OFFSET %s`,
		channelColumns, b.bind(limit), b.bind(offset))

	rows, err := s.exec.ExecuteMany(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}

	channels := make([]models.Channel, 0, len(rows))
	for _, row := range rows {
		channels = append(channels, mapChannel(row))
	}
	return channels, nil
}

// GetChannel looks up a single channel by exact name. A missing channel is
// (nil, nil), distinct from an execution failure.
func (s *Service) GetChannel(ctx context.Context, name string) (*models.Channel, error) {
	b := &builder{}
	query := fmt.Sprintf(`SELECT %s FROM marts.dim_channels WHERE channel_name = %s`,
		channelColumns, b.bind(name))

	row, err := s.exec.ExecuteOne(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	ch := mapChannel(row)
	return &ch, nil
}

// ChannelMessages returns a channel's messages, newest first
func (s *Service) ChannelMessages(ctx context.Context, channelName string, limit, offset int) ([]models.Message, error) {
	b := &builder{}
	query := fmt.Sprintf(`SELECT message_id, channel_name, sender_id, sender_username,
		message_text, message_length, message_date, has_text, has_media,
		contains_medical_keywords, contains_price_info, message_type,
		content_type, media_type, local_media_path
	FROM marts.fct_messages
	WHERE channel_name = %s
	ORDER BY message_date DESC
	LIMIT %s OFFSET %s`, b.bind(channelName), b.bind(limit), b.bind(offset))

	rows, err := s.exec.ExecuteMany(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("channel messages: %w", err)
	}

	messages := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, models.Message{
			MessageID:               fieldInt64(row, "message_id"),
			ChannelName:             fieldString(row, "channel_name"),
			SenderID:                fieldInt64Ptr(row, "sender_id"),
			SenderUsername:          fieldString(row, "sender_username"),
			MessageText:             fieldString(row, "message_text"),
			MessageLength:           fieldInt64(row, "message_length"),
			MessageDate:             fieldTime(row, "message_date"),
			HasText:                 fieldBool(row, "has_text"),
			HasMedia:                fieldBool(row, "has_media"),
			ContainsMedicalKeywords: fieldBool(row, "contains_medical_keywords"),
			ContainsPriceInfo:       fieldBool(row, "contains_price_info"),
			MessageType:             fieldString(row, "message_type"),
			ContentType:             fieldString(row, "content_type"),
			MediaType:               fieldString(row, "media_type"),
			LocalMediaPath:          fieldString(row, "local_media_path"),
		})
	}
	return messages, nil
}

// ActivityParams filters a channel activity query
type ActivityParams struct {
	ChannelName string
	DateFrom    *time.Time
	DateTo      *time.Time
	GroupBy     string // "day", "week" or "month"
}

// ChannelActivity aggregates one channel's message fact into calendar
// buckets at the requested granularity. An unsupported GroupBy is rejected,
// never silently bucketed by day.
func (s *Service) ChannelActivity(ctx context.Context, params ActivityParams) ([]models.ActivityBucket, error) {
	bucket, ok := activityBuckets[params.GroupBy]
	if !ok {
		return nil, fmt.Errorf("%w: group_by %q (want day, week or month)", ErrInvalidParameter, params.GroupBy)
	}

	b := &builder{}
	where := []string{fmt.Sprintf("channel_name = %s", b.bind(params.ChannelName))}
	if params.DateFrom != nil {
		where = append(where, fmt.Sprintf("message_date_id >= %s", b.bind(*params.DateFrom)))
	}
	if params.DateTo != nil {
		where = append(where, fmt.Sprintf("message_date_id <= %s", b.bind(*params.DateTo)))
	}

	query := fmt.Sprintf(`SELECT channel_name, %s AS activity_date,
		COUNT(*) AS message_count,
		COUNT(CASE WHEN has_media THEN 1 END) AS media_count,
		COUNT(CASE WHEN contains_medical_keywords THEN 1 END) AS medical_count,
		COUNT(CASE WHEN contains_price_info THEN 1 END) AS price_count,
		COALESCE(AVG(message_length), 0)::float8 AS avg_message_length,
		COUNT(DISTINCT sender_id) AS unique_senders
	FROM marts.fct_messages
	WHERE %s
	GROUP BY channel_name, activity_date
	ORDER BY activity_date DESC`, bucket, strings.Join(where, " AND "))

	rows, err := s.exec.ExecuteMany(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("channel activity: %w", err)
	}

	buckets := make([]models.ActivityBucket, 0, len(rows))
	for _, row := range rows {
		buckets = append(buckets, models.ActivityBucket{
			ChannelName:      fieldString(row, "channel_name"),
			ActivityDate:     fieldTime(row, "activity_date"),
			MessageCount:     fieldInt64(row, "message_count"),
			MediaCount:       fieldInt64(row, "media_count"),
			MedicalCount:     fieldInt64(row, "medical_count"),
			PriceCount:       fieldInt64(row, "price_count"),
			AvgMessageLength: fieldFloat(row, "avg_message_length"),
			UniqueSenders:    fieldInt64(row, "unique_senders"),
		})
	}
	return buckets, nil
}

// SearchParams filters a message search
type SearchParams struct {
	Query         string
	Limit         int
	Offset        int
	ChannelFilter string
	DateFrom      *time.Time
	DateTo        *time.Time
	MedicalOnly   bool
	PriceOnly     bool
}

// relevancePatterns derives the three canonical match forms for the tiered
// score: the whole-text form (1.0), the trimmed containment form (0.8) and
// the first-token containment form (0.6).
func relevancePatterns(query string) (exact, contains, partial string) {
	trimmed := strings.TrimSpace(query)
	token := trimmed
	if fields := strings.Fields(trimmed); len(fields) > 0 {
		token = fields[0]
	}
	return trimmed, "%" + trimmed + "%", "%" + token + "%"
}

func (s *Service) searchWhere(b *builder, params SearchParams) string {
	where := []string{
		"message_text IS NOT NULL",
		"message_text != ''",
	}
	if params.ChannelFilter != "" {
		where = append(where, fmt.Sprintf("channel_name = %s", b.bind(params.ChannelFilter)))
	}
	if params.DateFrom != nil {
		where = append(where, fmt.Sprintf("message_date >= %s", b.bind(*params.DateFrom)))
	}
	if params.DateTo != nil {
		where = append(where, fmt.Sprintf("message_date <= %s", b.bind(*params.DateTo)))
	}
	if params.MedicalOnly {
		where = append(where, "contains_medical_keywords = TRUE")
	}
	if params.PriceOnly {
		where = append(where, "contains_price_info = TRUE")
	}
	return strings.Join(where, " AND ")
}

// SearchMessages scores every non-empty message with the fixed 4-tier rule:
// 1.0 when the whole text equals the query, 0.8 when it contains the trimmed
// query, 0.6 when it contains the query's first token, 0.3 otherwise. The
// 0.3 arm is a catch-all floor, so the predicate excludes only null and
// empty texts plus the optional filters; it never requires a query match.
// Ordering is score, then recency.
func (s *Service) SearchMessages(ctx context.Context, params SearchParams) ([]models.SearchHit, error) {
	if strings.TrimSpace(params.Query) == "" {
		return nil, fmt.Errorf("%w: empty search query", ErrInvalidParameter)
	}

	exact, contains, partial := relevancePatterns(params.Query)

	b := &builder{}
	score := fmt.Sprintf(`CASE
			WHEN message_text ILIKE %s THEN 1.0
			WHEN message_text ILIKE %s THEN 0.8
			WHEN message_text ILIKE %s THEN 0.6
			ELSE 0.3
		END`, b.bind(exact), b.bind(contains), b.bind(partial))

	query := fmt.Sprintf(`SELECT message_id, channel_name, message_text, message_date,
		contains_medical_keywords, contains_price_info,
		%s::float8 AS relevance_score
	FROM marts.fct_messages
	WHERE %s
	ORDER BY relevance_score DESC, message_date DESC
	LIMIT %s OFFSET %s`, score, s.searchWhere(b, params), b.bind(params.Limit), b.bind(params.Offset))

	rows, err := s.exec.ExecuteMany(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}

	hits := make([]models.SearchHit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, models.SearchHit{
			MessageID:               fieldInt64(row, "message_id"),
			ChannelName:             fieldString(row, "channel_name"),
			MessageText:             fieldString(row, "message_text"),
			MessageDate:             fieldTime(row, "message_date"),
			ContainsMedicalKeywords: fieldBool(row, "contains_medical_keywords"),
			ContainsPriceInfo:       fieldBool(row, "contains_price_info"),
			RelevanceScore:          fieldFloat(row, "relevance_score"),
		})
	}
	return hits, nil
}

// CountSearch returns the true number of messages matching the search
// filters, for pagination totals. It shares the predicate with
// SearchMessages so the total can never drift from the page.
func (s *Service) CountSearch(ctx context.Context, params SearchParams) (int64, error) {
	if strings.TrimSpace(params.Query) == "" {
		return 0, fmt.Errorf("%w: empty search query", ErrInvalidParameter)
	}

	b := &builder{}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM marts.fct_messages WHERE %s`, s.searchWhere(b, params))

	total, err := s.exec.ExecuteScalar(ctx, query, b.args...)
	if err != nil {
		return 0, fmt.Errorf("count search: %w", err)
	}
	return total, nil
}

// ProductParams filters a top-products query
type ProductParams struct {
	Limit         int
	ChannelFilter string
	DateFrom      *time.Time
	DateTo        *time.Time
	MedicalOnly   bool
}

// TopProducts aggregates controlled-vocabulary matches over medical-flagged
// messages by (product, channel), most mentioned first. Terms match on word
// boundaries, a message naming several terms counts for the one occurring
// first in its text, and messages matching no term are dropped from the
// aggregate.
func (s *Service) TopProducts(ctx context.Context, params ProductParams) ([]models.ProductMention, error) {
	b := &builder{}

	pattern := `\y(` + strings.Join(productVocabulary, "|") + `)\y`
	productExpr := fmt.Sprintf("(regexp_match(lower(message_text), %s))[1]", b.bind(pattern))

	where := []string{
		"message_text IS NOT NULL",
		"message_text != ''",
		"contains_medical_keywords = TRUE",
	}
	if params.ChannelFilter != "" {
		where = append(where, fmt.Sprintf("channel_name = %s", b.bind(params.ChannelFilter)))
	}
	if params.DateFrom != nil {
		where = append(where, fmt.Sprintf("message_date >= %s", b.bind(*params.DateFrom)))
	}
	if params.DateTo != nil {
		where = append(where, fmt.Sprintf("message_date <= %s", b.bind(*params.DateTo)))
	}
	// Every aggregated message is medical-flagged already; MedicalOnly is
	// accepted for interface symmetry with the search operations.

	query := fmt.Sprintf(`WITH product_mentions AS (
		SELECT channel_name, message_date, %s AS product_name
		FROM marts.fct_messages
		WHERE %s
	)
	SELECT product_name, COUNT(*) AS mention_count, channel_name,
		MIN(message_date) AS first_mentioned, MAX(message_date) AS last_mentioned,
		TRUE AS medical_related
	FROM product_mentions
	WHERE product_name IS NOT NULL
	GROUP BY product_name, channel_name
	ORDER BY mention_count DESC
	LIMIT %s`, productExpr, strings.Join(where, " AND "), b.bind(params.Limit))

	rows, err := s.exec.ExecuteMany(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}

	mentions := make([]models.ProductMention, 0, len(rows))
	for _, row := range rows {
		mentions = append(mentions, models.ProductMention{
			ProductName:    fieldString(row, "product_name"),
			MentionCount:   fieldInt64(row, "mention_count"),
			ChannelName:    fieldString(row, "channel_name"),
			FirstMentioned: fieldTime(row, "first_mentioned"),
			LastMentioned:  fieldTime(row, "last_mentioned"),
			MedicalRelated: fieldBool(row, "medical_related"),
		})
	}
	return mentions, nil
}

// Summary aggregates the full message fact. Percentages and averages are
// zero-guarded when the fact is empty.
func (s *Service) Summary(ctx context.Context) (*models.AnalyticsSummary, error) {
	counts, err := s.exec.ExecuteOne(ctx, `SELECT
		COUNT(*) AS total_messages,
		COUNT(DISTINCT channel_name) AS total_channels,
		COUNT(CASE WHEN has_media THEN 1 END) AS total_media,
		COUNT(CASE WHEN contains_medical_keywords THEN 1 END) AS total_medical_messages,
		COUNT(CASE WHEN contains_price_info THEN 1 END) AS total_price_messages,
		COALESCE(AVG(message_length), 0)::float8 AS avg_message_length
	FROM marts.fct_messages`)
	if err != nil {
		return nil, fmt.Errorf("analytics summary: %w", err)
	}

	dateRange, err := s.exec.ExecuteOne(ctx, `SELECT
		MIN(message_date) AS earliest_date,
		MAX(message_date) AS latest_date
	FROM marts.fct_messages`)
	if err != nil {
		return nil, fmt.Errorf("analytics summary: %w", err)
	}

	summary := &models.AnalyticsSummary{
		TotalMessages:        fieldInt64(counts, "total_messages"),
		TotalChannels:        fieldInt64(counts, "total_channels"),
		TotalMedia:           fieldInt64(counts, "total_media"),
		TotalMedicalMessages: fieldInt64(counts, "total_medical_messages"),
		TotalPriceMessages:   fieldInt64(counts, "total_price_messages"),
		AvgMessageLength:     fieldFloat(counts, "avg_message_length"),
	}
	if dateRange != nil {
		summary.DateRange = models.DateRange{
			Earliest: fieldTimePtr(dateRange, "earliest_date"),
			Latest:   fieldTimePtr(dateRange, "latest_date"),
		}
	}
	if summary.TotalMessages > 0 {
		summary.MedicalContentPercentage = float64(summary.TotalMedicalMessages) / float64(summary.TotalMessages) * 100
	}
	return summary, nil
}

// ChannelRankings orders channels by a named metric and assigns each a rank
// by sorted position. An unrecognized metric ranks by message_count.
func (s *Service) ChannelRankings(ctx context.Context, metric string, limit int) ([]models.ChannelRanking, error) {
	expr, ok := metricExpressions[metric]
	if !ok {
		metric = defaultRankingMetric
		expr = metricExpressions[metric]
	}

	b := &builder{}
	query := fmt.Sprintf(`SELECT
		ROW_NUMBER() OVER (ORDER BY %[1]s DESC) AS rank,
		channel_name,
		(%[1]s)::float8 AS metric_value,
		%[2]s::text AS metric_type
	FROM marts.dim_channels
	ORDER BY %[1]s DESC
	LIMIT %[3]s`, expr, b.bind(metric), b.bind(limit))

	rows, err := s.exec.ExecuteMany(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("channel rankings: %w", err)
	}

	rankings := make([]models.ChannelRanking, 0, len(rows))
	for _, row := range rows {
		rankings = append(rankings, models.ChannelRanking{
			Rank:        fieldInt64(row, "rank"),
			ChannelName: fieldString(row, "channel_name"),
			MetricValue: fieldFloat(row, "metric_value"),
			MetricType:  fieldString(row, "metric_type"),
		})
	}
	return rankings, nil
}

// DetectionParams filters an image-detection list
type DetectionParams struct {
	ChannelName string
	ObjectClass string
	MedicalOnly bool
	Limit       int
	Offset      int
}

// ImageDetections lists detection fact rows, newest first, with the bounding
// box mapped into a structured record.
func (s *Service) ImageDetections(ctx context.Context, params DetectionParams) ([]models.ImageDetection, error) {
	b := &builder{}
	where := []string{"1=1"}
	if params.ChannelName != "" {
		where = append(where, fmt.Sprintf("channel_name = %s", b.bind(params.ChannelName)))
	}
	if params.ObjectClass != "" {
		where = append(where, fmt.Sprintf("detected_object_class = %s", b.bind(params.ObjectClass)))
	}
	if params.MedicalOnly {
		where = append(where, "is_medical_related = TRUE")
	}

	query := fmt.Sprintf(`SELECT detection_id, message_id, channel_name,
		detected_object_class,
		confidence_score::float8 AS confidence_score, confidence_level,
		is_medical_related,
		bbox_x1::float8 AS bbox_x1, bbox_y1::float8 AS bbox_y1,
		bbox_x2::float8 AS bbox_x2, bbox_y2::float8 AS bbox_y2,
		detection_area::float8 AS detection_area, detection_time
	FROM marts.fct_image_detections
	WHERE %s
	ORDER BY detection_time DESC
	LIMIT %s OFFSET %s`, strings.Join(where, " AND "), b.bind(params.Limit), b.bind(params.Offset))

	rows, err := s.exec.ExecuteMany(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("image detections: %w", err)
	}

	detections := make([]models.ImageDetection, 0, len(rows))
	for _, row := range rows {
		detections = append(detections, models.ImageDetection{
			DetectionID:      fieldInt64(row, "detection_id"),
			MessageID:        fieldInt64Ptr(row, "message_id"),
			ChannelName:      fieldString(row, "channel_name"),
			ObjectClass:      fieldString(row, "detected_object_class"),
			ConfidenceScore:  fieldFloat(row, "confidence_score"),
			ConfidenceLevel:  fieldString(row, "confidence_level"),
			IsMedicalRelated: fieldBool(row, "is_medical_related"),
			BBox: models.BoundingBox{
				X1: fieldFloat(row, "bbox_x1"),
				Y1: fieldFloat(row, "bbox_y1"),
				X2: fieldFloat(row, "bbox_x2"),
				Y2: fieldFloat(row, "bbox_y2"),
			},
			DetectionArea: fieldFloat(row, "detection_area"),
			DetectionTime: fieldTime(row, "detection_time"),
		})
	}
	return detections, nil
}

// Count counts rows of a known entity kind under equality filters. Entity
// kinds and filter keys resolve against closed allow-lists; anything outside
// them is rejected before query construction.
func (s *Service) Count(ctx context.Context, entity string, filters map[string]any) (int64, error) {
	table, ok := countEntities[entity]
	if !ok {
		return 0, fmt.Errorf("%w: unknown entity kind %q", ErrInvalidParameter, entity)
	}
	allowed := countFilterColumns[entity]

	keys := make([]string, 0, len(filters))
	for key := range filters {
		if !allowed[key] {
			return 0, fmt.Errorf("%w: filter key %q not allowed for %s", ErrInvalidParameter, key, entity)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	b := &builder{}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if len(keys) > 0 {
		conditions := make([]string, 0, len(keys))
		for _, key := range keys {
			conditions = append(conditions, fmt.Sprintf("%s = %s", key, b.bind(filters[key])))
		}
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	total, err := s.exec.ExecuteScalar(ctx, query, b.args...)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", entity, err)
	}
	return total, nil
}

func mapChannel(row map[string]any) models.Channel {
	return models.Channel{
		ChannelName:              fieldString(row, "channel_name"),
		ChannelID:                fieldInt64Ptr(row, "channel_id"),
		Category:                 fieldString(row, "category"),
		Priority:                 fieldString(row, "priority"),
		MessageCount:             fieldInt64(row, "message_count"),
		MediaCount:               fieldInt64(row, "media_count"),
		MedicalMessagesCount:     fieldInt64(row, "medical_messages_count"),
		PriceMessagesCount:       fieldInt64(row, "price_messages_count"),
		AvgMessageLength:         fieldFloat(row, "avg_message_length"),
		UniqueSenders:            fieldInt64(row, "unique_senders"),
		MedicalContentPercentage: fieldFloat(row, "medical_content_percentage"),
		MediaContentPercentage:   fieldFloat(row, "media_content_percentage"),
		ActivityLevel:            fieldString(row, "activity_level"),
		ChannelType:              fieldString(row, "channel_type"),
		FirstMessageDate:         fieldTimePtr(row, "first_message_date"),
		LastMessageDate:          fieldTimePtr(row, "last_message_date"),
	}
}
