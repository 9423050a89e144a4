package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medscope/telegram-insights/internal/analytics"
	"github.com/medscope/telegram-insights/internal/models"
)

// Response is the envelope every JSON endpoint returns
type Response struct {
	Success    bool                   `json:"success"`
	Message    string                 `json:"message,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Data       any                    `json:"data,omitempty"`
	Pagination *models.PaginationInfo `json:"pagination,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp *Response) {
	resp.Timestamp = time.Now().UTC()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, &Response{Success: true, Data: data})
}

func writePage(w http.ResponseWriter, data any, page *models.PaginationInfo) {
	writeJSON(w, http.StatusOK, &Response{Success: true, Data: data, Pagination: page})
}

// writeError maps service errors onto status codes. Parameter errors carry
// their message through; everything else stays generic.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, analytics.ErrInvalidParameter) {
		writeJSON(w, http.StatusBadRequest, &Response{Success: false, Message: err.Error()})
		return
	}
	logrus.Errorf("Request failed: %v", err)
	writeJSON(w, http.StatusInternalServerError, &Response{Success: false, Message: "internal server error"})
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusNotFound, &Response{Success: false, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, &Response{Success: false, Message: message})
}
