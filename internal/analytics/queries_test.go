package analytics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/medscope/telegram-insights/internal/models"
	"github.com/stretchr/testify/assert"
)

// fakeExecutor records the last query and args and replays canned results
type fakeExecutor struct {
	lastQuery string
	lastArgs  []any

	rows   []map[string]any
	row    map[string]any
	scalar int64
	err    error
}

func (f *fakeExecutor) ExecuteMany(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	f.lastQuery = query
	f.lastArgs = args
	return f.rows, f.err
}

func (f *fakeExecutor) ExecuteOne(ctx context.Context, query string, args ...any) (map[string]any, error) {
	f.lastQuery = query
	f.lastArgs = args
	return f.row, f.err
}

func (f *fakeExecutor) ExecuteScalar(ctx context.Context, query string, args ...any) (int64, error) {
	f.lastQuery = query
	f.lastArgs = args
	return f.scalar, f.err
}

func TestListChannels(t *testing.T) {
	exec := &fakeExecutor{rows: []map[string]any{
		{"channel_name": "tikvahpharma", "message_count": int64(120), "medical_content_percentage": 42.5},
		{"channel_name": "lobelia4cosmetics", "message_count": int64(80)},
	}}
	service := New(exec)

	channels, err := service.ListChannels(context.Background(), 50, 10)
	assert.NoError(t, err)
	assert.Len(t, channels, 2)
	assert.Equal(t, "tikvahpharma", channels[0].ChannelName)
	assert.Equal(t, int64(120), channels[0].MessageCount)
	assert.Equal(t, 42.5, channels[0].MedicalContentPercentage)

	assert.Contains(t, exec.lastQuery, "ORDER BY message_count DESC")
	assert.Contains(t, exec.lastQuery, "LIMIT $1 OFFSET $2")
	assert.Equal(t, []any{50, 10}, exec.lastArgs)
}

func TestListChannels_EmptyResult(t *testing.T) {
	service := New(&fakeExecutor{})

	channels, err := service.ListChannels(context.Background(), 10, 0)
	assert.NoError(t, err)
	assert.NotNil(t, channels)
	assert.Empty(t, channels)
}

func TestGetChannel_NotFound(t *testing.T) {
	exec := &fakeExecutor{row: nil}
	service := New(exec)

	channel, err := service.GetChannel(context.Background(), "no_such_channel")
	assert.NoError(t, err)
	assert.Nil(t, channel)
	assert.Equal(t, []any{"no_such_channel"}, exec.lastArgs)
}

func TestGetChannel_ExecutionFailure(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("connection refused")}
	service := New(exec)

	channel, err := service.GetChannel(context.Background(), "tikvahpharma")
	assert.Error(t, err)
	assert.Nil(t, channel)
}

func TestChannelActivity_GroupBy(t *testing.T) {
	tests := []struct {
		name       string
		groupBy    string
		wantErr    bool
		wantBucket string
	}{
		{name: "day buckets", groupBy: "day", wantBucket: "message_date_id AS activity_date"},
		{name: "week truncation", groupBy: "week", wantBucket: "DATE_TRUNC('week', message_date_id)"},
		{name: "month truncation", groupBy: "month", wantBucket: "DATE_TRUNC('month', message_date_id)"},
		{name: "unsupported value rejected", groupBy: "hour", wantErr: true},
		{name: "empty value rejected", groupBy: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			service := New(exec)

			_, err := service.ChannelActivity(context.Background(), ActivityParams{
				ChannelName: "tikvahpharma",
				GroupBy:     tt.groupBy,
			})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidParameter)
				assert.Empty(t, exec.lastQuery, "no query may be built for an invalid group_by")
				return
			}
			assert.NoError(t, err)
			assert.Contains(t, exec.lastQuery, tt.wantBucket)
		})
	}
}

func TestChannelActivity_DateBounds(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		params   ActivityParams
		wantArgs []any
		wantFrom bool
		wantTo   bool
	}{
		{
			name:     "both bounds",
			params:   ActivityParams{ChannelName: "chan1", DateFrom: &from, DateTo: &to, GroupBy: "week"},
			wantArgs: []any{"chan1", from, to},
			wantFrom: true,
			wantTo:   true,
		},
		{
			name:     "from only",
			params:   ActivityParams{ChannelName: "chan1", DateFrom: &from, GroupBy: "day"},
			wantArgs: []any{"chan1", from},
			wantFrom: true,
		},
		{
			name:     "to only",
			params:   ActivityParams{ChannelName: "chan1", DateTo: &to, GroupBy: "day"},
			wantArgs: []any{"chan1", to},
			wantTo:   true,
		},
		{
			name:     "no bounds",
			params:   ActivityParams{ChannelName: "chan1", GroupBy: "day"},
			wantArgs: []any{"chan1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			service := New(exec)

			_, err := service.ChannelActivity(context.Background(), tt.params)
			assert.NoError(t, err)
			assert.Equal(t, tt.wantArgs, exec.lastArgs)
			assert.Equal(t, tt.wantFrom, strings.Contains(exec.lastQuery, "message_date_id >="))
			assert.Equal(t, tt.wantTo, strings.Contains(exec.lastQuery, "message_date_id <="))
		})
	}
}

func TestRelevancePatterns(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		wantExact    string
		wantContains string
		wantPartial  string
	}{
		{
			name:         "single token",
			query:        "metformin",
			wantExact:    "metformin",
			wantContains: "%metformin%",
			wantPartial:  "%metformin%",
		},
		{
			name:         "multi token uses first token as loosest form",
			query:        "metformin tablets",
			wantExact:    "metformin tablets",
			wantContains: "%metformin tablets%",
			wantPartial:  "%metformin%",
		},
		{
			name:         "surrounding whitespace trimmed",
			query:        "  aspirin ",
			wantExact:    "aspirin",
			wantContains: "%aspirin%",
			wantPartial:  "%aspirin%",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exact, contains, partial := relevancePatterns(tt.query)
			assert.Equal(t, tt.wantExact, exact)
			assert.Equal(t, tt.wantContains, contains)
			assert.Equal(t, tt.wantPartial, partial)
		})
	}
}

func TestSearchMessages(t *testing.T) {
	exec := &fakeExecutor{rows: []map[string]any{
		{"message_id": int64(7), "channel_name": "tikvahpharma", "message_text": "metformin", "relevance_score": 1.0},
		{"message_id": int64(8), "channel_name": "tikvahpharma", "message_text": "metformin tablets in stock", "relevance_score": 0.8},
	}}
	service := New(exec)

	hits, err := service.SearchMessages(context.Background(), SearchParams{
		Query:  "metformin",
		Limit:  10,
		Offset: 0,
	})
	assert.NoError(t, err)
	assert.Len(t, hits, 2)
	assert.Equal(t, 1.0, hits[0].RelevanceScore)
	assert.Equal(t, 0.8, hits[1].RelevanceScore)

	// Tier placeholders come first, in descending-score order, then
	// limit/offset. The predicate binds nothing for an unfiltered search.
	assert.Equal(t, []any{"metformin", "%metformin%", "%metformin%", 10, 0}, exec.lastArgs)
	assert.Contains(t, exec.lastQuery, "THEN 1.0")
	assert.Contains(t, exec.lastQuery, "THEN 0.8")
	assert.Contains(t, exec.lastQuery, "THEN 0.6")
	assert.Contains(t, exec.lastQuery, "ELSE 0.3")
	assert.Contains(t, exec.lastQuery, "message_text IS NOT NULL")
	assert.Contains(t, exec.lastQuery, "message_text != ''")
	assert.Contains(t, exec.lastQuery, "ORDER BY relevance_score DESC, message_date DESC")
}

func TestSearchMessages_CatchAllTier(t *testing.T) {
	exec := &fakeExecutor{rows: []map[string]any{
		{"message_id": int64(9), "channel_name": "tikvahpharma", "message_text": "new stock arriving friday", "relevance_score": 0.3},
	}}
	service := New(exec)

	hits, err := service.SearchMessages(context.Background(), SearchParams{
		Query: "metformin",
		Limit: 10,
	})
	assert.NoError(t, err)
	assert.Len(t, hits, 1)
	assert.Equal(t, 0.3, hits[0].RelevanceScore)

	// The 0.3 arm is a floor over every non-empty row: the predicate must
	// not require any form of the query to match, or those rows could
	// never surface.
	wherePart := exec.lastQuery[strings.Index(exec.lastQuery, "WHERE"):]
	assert.NotContains(t, wherePart, "ILIKE")
	assert.Contains(t, wherePart, "message_text IS NOT NULL")
	assert.Contains(t, wherePart, "message_text != ''")
}

func TestSearchMessages_Filters(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	exec := &fakeExecutor{}
	service := New(exec)

	_, err := service.SearchMessages(context.Background(), SearchParams{
		Query:         "paracetamol 500mg",
		Limit:         5,
		Offset:        10,
		ChannelFilter: "addis_pharmacy",
		DateFrom:      &from,
		MedicalOnly:   true,
		PriceOnly:     true,
	})
	assert.NoError(t, err)
	assert.Contains(t, exec.lastQuery, "channel_name = $4")
	assert.Contains(t, exec.lastQuery, "message_date >= $5")
	assert.Contains(t, exec.lastQuery, "contains_medical_keywords = TRUE")
	assert.Contains(t, exec.lastQuery, "contains_price_info = TRUE")
	assert.Equal(t, []any{
		"paracetamol 500mg", "%paracetamol 500mg%", "%paracetamol%",
		"addis_pharmacy", from, 5, 10,
	}, exec.lastArgs)
}

func TestSearchMessages_EmptyQuery(t *testing.T) {
	service := New(&fakeExecutor{})

	_, err := service.SearchMessages(context.Background(), SearchParams{Query: "   "})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestCountSearch_SharesPredicate(t *testing.T) {
	exec := &fakeExecutor{scalar: 37}
	service := New(exec)

	total, err := service.CountSearch(context.Background(), SearchParams{
		Query:         "vitamin",
		ChannelFilter: "lobelia4cosmetics",
		MedicalOnly:   true,
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(37), total)
	assert.Contains(t, exec.lastQuery, "SELECT COUNT(*)")
	assert.Contains(t, exec.lastQuery, "message_text IS NOT NULL")
	assert.Contains(t, exec.lastQuery, "channel_name = $1")
	assert.Contains(t, exec.lastQuery, "contains_medical_keywords = TRUE")
	assert.Equal(t, []any{"lobelia4cosmetics"}, exec.lastArgs)
}

func TestTopProducts(t *testing.T) {
	exec := &fakeExecutor{rows: []map[string]any{
		{
			"product_name":    "paracetamol",
			"mention_count":   int64(14),
			"channel_name":    "tikvahpharma",
			"first_mentioned": time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
			"last_mentioned":  time.Date(2024, 2, 9, 18, 30, 0, 0, time.UTC),
			"medical_related": true,
		},
	}}
	service := New(exec)

	products, err := service.TopProducts(context.Background(), ProductParams{Limit: 5, MedicalOnly: true})
	assert.NoError(t, err)
	assert.Len(t, products, 1)
	assert.Equal(t, "paracetamol", products[0].ProductName)
	assert.Equal(t, int64(14), products[0].MentionCount)
	assert.True(t, products[0].MedicalRelated)

	assert.Contains(t, exec.lastQuery, "contains_medical_keywords = TRUE")
	assert.Contains(t, exec.lastQuery, "WHERE product_name IS NOT NULL")
	assert.Contains(t, exec.lastQuery, "GROUP BY product_name, channel_name")
	assert.Contains(t, exec.lastQuery, "ORDER BY mention_count DESC")

	// One bound vocabulary pattern, then the limit. regexp_match returns
	// the leftmost match, so a message naming several terms is ascribed to
	// the one occurring first in its text.
	assert.Contains(t, exec.lastQuery, "regexp_match(lower(message_text), $1)")
	assert.Equal(t, []any{`\y(`+strings.Join(productVocabulary, "|")+`)\y`, 5}, exec.lastArgs)
}

func TestTopProducts_VocabularyIsClosed(t *testing.T) {
	exec := &fakeExecutor{}
	service := New(exec)

	_, err := service.TopProducts(context.Background(), ProductParams{Limit: 10})
	assert.NoError(t, err)

	// Every matched name the query can produce is a capture of the bound
	// alternation, so the output vocabulary is exactly the fixed list.
	pattern, ok := exec.lastArgs[0].(string)
	assert.True(t, ok)
	assert.True(t, strings.HasPrefix(pattern, `\y(`))
	assert.True(t, strings.HasSuffix(pattern, `)\y`))

	terms := strings.Split(pattern[len(`\y(`):len(pattern)-len(`)\y`)], "|")
	assert.Equal(t, productVocabulary, terms)

	// Word boundaries keep superstrings out: "drugstore" is not a "drug"
	// mention.
	assert.Contains(t, terms, "drug")
	assert.NotContains(t, pattern, "%")
	assert.NotContains(t, exec.lastQuery, "Unknown Product")
}

func TestSummary_EmptyFact(t *testing.T) {
	exec := &fakeExecutor{row: map[string]any{
		"total_messages":         int64(0),
		"total_channels":         int64(0),
		"total_media":            int64(0),
		"total_medical_messages": int64(0),
		"total_price_messages":   int64(0),
		"avg_message_length":     float64(0),
		"earliest_date":          nil,
		"latest_date":            nil,
	}}
	service := New(exec)

	summary, err := service.Summary(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(0), summary.TotalMessages)
	assert.Equal(t, float64(0), summary.MedicalContentPercentage)
	assert.Nil(t, summary.DateRange.Earliest)
	assert.Nil(t, summary.DateRange.Latest)
}

func TestSummary_MedicalPercentage(t *testing.T) {
	exec := &fakeExecutor{row: map[string]any{
		"total_messages":         int64(200),
		"total_channels":         int64(4),
		"total_media":            int64(90),
		"total_medical_messages": int64(50),
		"total_price_messages":   int64(30),
		"avg_message_length":     73.5,
	}}
	service := New(exec)

	summary, err := service.Summary(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(200), summary.TotalMessages)
	assert.InDelta(t, 25.0, summary.MedicalContentPercentage, 1e-9)
	assert.Equal(t, 73.5, summary.AvgMessageLength)
}

func TestChannelRankings(t *testing.T) {
	tests := []struct {
		name       string
		metric     string
		wantExpr   string
		wantMetric string
	}{
		{name: "message count", metric: "message_count", wantExpr: "message_count DESC", wantMetric: "message_count"},
		{name: "medical percentage", metric: "medical_percentage", wantExpr: "medical_content_percentage DESC", wantMetric: "medical_percentage"},
		{name: "activity level bucket", metric: "activity_level", wantExpr: "WHEN message_count >= 100 THEN 3 WHEN message_count >= 50 THEN 2 ELSE 1", wantMetric: "activity_level"},
		{name: "unknown metric falls back to message_count", metric: "upvotes", wantExpr: "message_count DESC", wantMetric: "message_count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{rows: []map[string]any{
				{"rank": int64(1), "channel_name": "a", "metric_value": 99.0, "metric_type": tt.wantMetric},
				{"rank": int64(2), "channel_name": "b", "metric_value": 42.0, "metric_type": tt.wantMetric},
				{"rank": int64(3), "channel_name": "c", "metric_value": 7.0, "metric_type": tt.wantMetric},
			}}
			service := New(exec)

			rankings, err := service.ChannelRankings(context.Background(), tt.metric, 3)
			assert.NoError(t, err)
			assert.Len(t, rankings, 3)
			for i, r := range rankings {
				assert.Equal(t, int64(i+1), r.Rank)
			}
			assert.Contains(t, exec.lastQuery, "ROW_NUMBER() OVER (ORDER BY ")
			assert.Contains(t, exec.lastQuery, tt.wantExpr)
			assert.Equal(t, []any{tt.wantMetric, 3}, exec.lastArgs)
		})
	}
}

func TestImageDetections_Filters(t *testing.T) {
	exec := &fakeExecutor{rows: []map[string]any{
		{
			"detection_id":          int64(3),
			"message_id":            int64(77),
			"channel_name":          "chemed_ethiopia",
			"detected_object_class": "bottle",
			"confidence_score":      0.91,
			"confidence_level":      "high",
			"is_medical_related":    true,
			"bbox_x1":               10.0, "bbox_y1": 20.0, "bbox_x2": 110.0, "bbox_y2": 220.0,
			"detection_area":  20000.0,
			"detection_time":  time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC),
		},
	}}
	service := New(exec)

	detections, err := service.ImageDetections(context.Background(), DetectionParams{
		ChannelName: "chemed_ethiopia",
		ObjectClass: "bottle",
		MedicalOnly: true,
		Limit:       50,
		Offset:      0,
	})
	assert.NoError(t, err)
	assert.Len(t, detections, 1)
	assert.Equal(t, "bottle", detections[0].ObjectClass)
	assert.Equal(t, models.BoundingBox{X1: 10, Y1: 20, X2: 110, Y2: 220}, detections[0].BBox)
	assert.NotNil(t, detections[0].MessageID)
	assert.Equal(t, int64(77), *detections[0].MessageID)

	assert.Contains(t, exec.lastQuery, "channel_name = $1")
	assert.Contains(t, exec.lastQuery, "detected_object_class = $2")
	assert.Contains(t, exec.lastQuery, "is_medical_related = TRUE")
	assert.Equal(t, []any{"chemed_ethiopia", "bottle", 50, 0}, exec.lastArgs)
}

func TestImageDetections_NoFilters(t *testing.T) {
	exec := &fakeExecutor{}
	service := New(exec)

	_, err := service.ImageDetections(context.Background(), DetectionParams{Limit: 10, Offset: 5})
	assert.NoError(t, err)
	assert.Contains(t, exec.lastQuery, "WHERE 1=1")
	assert.Equal(t, []any{10, 5}, exec.lastArgs)
}

func TestCount(t *testing.T) {
	tests := []struct {
		name      string
		entity    string
		filters   map[string]any
		wantErr   bool
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "channels without filters",
			entity:    "channels",
			wantQuery: "SELECT COUNT(*) FROM marts.dim_channels",
			wantArgs:  nil,
		},
		{
			name:      "messages by channel",
			entity:    "messages",
			filters:   map[string]any{"channel_name": "tikvahpharma"},
			wantQuery: "SELECT COUNT(*) FROM marts.fct_messages WHERE channel_name = $1",
			wantArgs:  []any{"tikvahpharma"},
		},
		{
			name:   "filter keys emitted in sorted order",
			entity: "messages",
			filters: map[string]any{
				"has_media":    true,
				"channel_name": "chemed_ethiopia",
			},
			wantQuery: "SELECT COUNT(*) FROM marts.fct_messages WHERE channel_name = $1 AND has_media = $2",
			wantArgs:  []any{"chemed_ethiopia", true},
		},
		{
			name:    "unknown entity rejected",
			entity:  "users",
			wantErr: true,
		},
		{
			name:    "non-allow-listed filter key rejected",
			entity:  "channels",
			filters: map[string]any{"channel_name; DROP TABLE": "x"},
			wantErr: true,
		},
		{
			name:    "column valid for another entity rejected",
			entity:  "channels",
			filters: map[string]any{"has_media": true},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{scalar: 11}
			service := New(exec)

			total, err := service.Count(context.Background(), tt.entity, tt.filters)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidParameter)
				assert.Empty(t, exec.lastQuery, "no query may be built for rejected input")
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, int64(11), total)
			assert.Equal(t, tt.wantQuery, exec.lastQuery)
			assert.Equal(t, tt.wantArgs, exec.lastArgs)
		})
	}
}
