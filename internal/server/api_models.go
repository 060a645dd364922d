package server

import (
	"time"

	"github.com/dkarali/urlmeta/internal/store"
)

// MetadataRequest is the POST /metadata body.
type MetadataRequest struct {
	URL string `json:"url"`
}

// MetadataResponse is a stored record as returned to clients.
type MetadataResponse struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers"`
	Cookies     map[string]string `json:"cookies"`
	PageSource  string            `json:"page_source"`
	PageTitle   string            `json:"page_title,omitempty"`
	StatusCode  int               `json:"status_code"`
	Status      string            `json:"status"`
	CollectedAt time.Time         `json:"collected_at"`
}

// MetadataAccepted is the 202 body returned when collection has been
// scheduled in the background.
type MetadataAccepted struct {
	URL     string `json:"url"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

const scheduledMessage = "Metadata collection has been scheduled. Please retry shortly."

func toResponse(rec *store.MetadataRecord) MetadataResponse {
	return MetadataResponse{
		ID:          rec.ID.Hex(),
		URL:         rec.URL,
		Headers:     rec.Headers,
		Cookies:     rec.Cookies,
		PageSource:  rec.PageSource,
		PageTitle:   rec.PageTitle,
		StatusCode:  rec.StatusCode,
		Status:      string(rec.Status),
		CollectedAt: rec.UpdatedAt,
	}
}
