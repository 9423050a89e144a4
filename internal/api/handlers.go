package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/medscope/telegram-insights/internal/analytics"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.analytics.Summary(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, summary)
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)

	channels, err := s.analytics.ListChannels(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	total, err := s.analytics.Count(r.Context(), "channels", nil)
	if err != nil {
		writeError(w, err)
		return
	}

	writePage(w, channels, paginationInfo(limit, offset, total))
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	channel, err := s.analytics.GetChannel(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	if channel == nil {
		writeNotFound(w, "channel "+name+" not found")
		return
	}
	writeData(w, channel)
}

func (s *Server) handleChannelActivity(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	dateFrom, err := dateParam(r, "date_from")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	dateTo, err := dateParam(r, "date_to")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	groupBy := r.URL.Query().Get("group_by")
	if groupBy == "" {
		groupBy = "day"
	}

	activity, err := s.analytics.ChannelActivity(r.Context(), analytics.ActivityParams{
		ChannelName: name,
		DateFrom:    dateFrom,
		DateTo:      dateTo,
		GroupBy:     groupBy,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, activity)
}

func (s *Server) handleChannelMessages(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	limit, offset := pageParams(r)

	channel, err := s.analytics.GetChannel(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	if channel == nil {
		writeNotFound(w, "channel "+name+" not found")
		return
	}

	messages, err := s.analytics.ChannelMessages(r.Context(), name, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	total, err := s.analytics.Count(r.Context(), "messages", map[string]any{"channel_name": name})
	if err != nil {
		writeError(w, err)
		return
	}

	writePage(w, messages, paginationInfo(limit, offset, total))
}

func (s *Server) handleSearchMessages(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)

	dateFrom, err := dateParam(r, "date_from")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	dateTo, err := dateParam(r, "date_to")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	params := analytics.SearchParams{
		Query:         r.URL.Query().Get("query"),
		Limit:         limit,
		Offset:        offset,
		ChannelFilter: r.URL.Query().Get("channel"),
		DateFrom:      dateFrom,
		DateTo:        dateTo,
		MedicalOnly:   boolParam(r, "medical_only"),
		PriceOnly:     boolParam(r, "price_only"),
	}

	hits, err := s.analytics.SearchMessages(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}

	total, err := s.analytics.CountSearch(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}

	writePage(w, hits, paginationInfo(limit, offset, total))
}

func (s *Server) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	limit, _ := pageParams(r)

	dateFrom, err := dateParam(r, "date_from")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	dateTo, err := dateParam(r, "date_to")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	products, err := s.analytics.TopProducts(r.Context(), analytics.ProductParams{
		Limit:         limit,
		ChannelFilter: r.URL.Query().Get("channel"),
		DateFrom:      dateFrom,
		DateTo:        dateTo,
		MedicalOnly:   boolParam(r, "medical_only"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, products)
}

func (s *Server) handleChannelRankings(w http.ResponseWriter, r *http.Request) {
	limit, _ := pageParams(r)

	rankings, err := s.analytics.ChannelRankings(r.Context(), r.URL.Query().Get("metric"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, rankings)
}

// handleMedicalInsights composes the medical overview: the fact summary,
// the channels carrying the most medical content, the most mentioned
// products and a sample of recent medicine posts.
func (s *Server) handleMedicalInsights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	summary, err := s.analytics.Summary(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	rankings, err := s.analytics.ChannelRankings(ctx, "medical_messages", 5)
	if err != nil {
		writeError(w, err)
		return
	}

	products, err := s.analytics.TopProducts(ctx, analytics.ProductParams{Limit: 10, MedicalOnly: true})
	if err != nil {
		writeError(w, err)
		return
	}

	recent, err := s.analytics.SearchMessages(ctx, analytics.SearchParams{Query: "medicine", Limit: 5})
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, map[string]any{
		"summary":         summary,
		"top_channels":    rankings,
		"top_products":    products,
		"recent_messages": recent,
	})
}

func (s *Server) handleImageDetections(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)

	channel := r.URL.Query().Get("channel")
	objectClass := r.URL.Query().Get("object_class")
	medicalOnly := boolParam(r, "medical_only")

	detections, err := s.analytics.ImageDetections(r.Context(), analytics.DetectionParams{
		ChannelName: channel,
		ObjectClass: objectClass,
		MedicalOnly: medicalOnly,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	filters := map[string]any{}
	if channel != "" {
		filters["channel_name"] = channel
	}
	if objectClass != "" {
		filters["detected_object_class"] = objectClass
	}
	if medicalOnly {
		filters["is_medical_related"] = true
	}

	total, err := s.analytics.Count(r.Context(), "image_detections", filters)
	if err != nil {
		writeError(w, err)
		return
	}

	writePage(w, detections, paginationInfo(limit, offset, total))
}
