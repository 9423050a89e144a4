package analytics

// productVocabulary is the fixed controlled vocabulary for product-mention
// extraction. Matching is case-insensitive on word boundaries; a message
// naming several terms is ascribed to the one occurring first in its text.
// This is a closed word list, not entity extraction.
var productVocabulary = []string{
	"paracetamol",
	"aspirin",
	"ibuprofen",
	"amoxicillin",
	"vitamin",
	"cream",
	"tablet",
	"syrup",
	"injection",
	"antibiotic",
	"medicine",
	"drug",
	"pill",
	"capsule",
}

// metricExpressions maps ranking metric names to warehouse expressions over
// marts.dim_channels. The map is closed; identifiers never come from request
// input. An unknown metric falls back to message_count (the one documented
// silent default).
var metricExpressions = map[string]string{
	"message_count":      "message_count",
	"media_count":        "media_count",
	"medical_messages":   "medical_messages_count",
	"price_messages":     "price_messages_count",
	"activity_level":     "CASE WHEN message_count >= 100 THEN 3 WHEN message_count >= 50 THEN 2 ELSE 1 END",
	"medical_percentage": "medical_content_percentage",
	"media_percentage":   "media_content_percentage",
}

const defaultRankingMetric = "message_count"

// countEntities maps count entity kinds to warehouse tables.
var countEntities = map[string]string{
	"channels":         "marts.dim_channels",
	"messages":         "marts.fct_messages",
	"image_detections": "marts.fct_image_detections",
}

// countFilterColumns lists, per entity kind, the columns accepted as
// equality-filter keys. Keys outside the list are rejected before any query
// is built.
var countFilterColumns = map[string]map[string]bool{
	"channels": {
		"channel_name":   true,
		"category":       true,
		"priority":       true,
		"activity_level": true,
		"channel_type":   true,
	},
	"messages": {
		"channel_name":              true,
		"has_media":                 true,
		"contains_medical_keywords": true,
		"contains_price_info":       true,
		"message_type":              true,
		"content_type":              true,
	},
	"image_detections": {
		"channel_name":          true,
		"detected_object_class": true,
		"is_medical_related":    true,
		"confidence_level":      true,
	},
}

// activityBuckets maps group_by values to bucket expressions over the
// message date. Anything else is an invalid parameter, never a silent day.
var activityBuckets = map[string]string{
	"day":   "message_date_id",
	"week":  "DATE_TRUNC('week', message_date_id)",
	"month": "DATE_TRUNC('month', message_date_id)",
}
