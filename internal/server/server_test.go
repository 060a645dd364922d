package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dkarali/urlmeta/internal/collector"
	"github.com/dkarali/urlmeta/internal/logging"
	"github.com/dkarali/urlmeta/internal/service"
	"github.com/dkarali/urlmeta/internal/store"
)

type stubService struct {
	createRec *store.MetadataRecord
	createErr error

	getRec   *store.MetadataRecord
	getFound bool
	getErr   error

	createURLs []string
	getURLs    []string
}

func (s *stubService) CreateMetadata(ctx context.Context, rawURL string) (*store.MetadataRecord, error) {
	s.createURLs = append(s.createURLs, rawURL)
	return s.createRec, s.createErr
}

func (s *stubService) GetMetadata(ctx context.Context, rawURL string) (*store.MetadataRecord, bool, error) {
	s.getURLs = append(s.getURLs, rawURL)
	return s.getRec, s.getFound, s.getErr
}

func newTestServer(t *testing.T, svc *stubService) *Server {
	t.Helper()
	return NewServer(Config{}, svc, logging.NewTestLogger(false))
}

func completedRecord() *store.MetadataRecord {
	return &store.MetadataRecord{
		ID:         primitive.NewObjectID(),
		URL:        "https://example.com/",
		Status:     store.StatusCompleted,
		Headers:    map[string]string{"content-type": "text/html"},
		Cookies:    map[string]string{"session": "abc"},
		PageSource: "<html></html>",
		PageTitle:  "Example",
		StatusCode: 200,
	}
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubService{})

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeBody[map[string]string](t, rr)
	if body["status"] != "healthy" || body["service"] == "" {
		t.Errorf("body = %v, want healthy with service name", body)
	}
}

func TestCreateMetadata_Created(t *testing.T) {
	svc := &stubService{createRec: completedRecord()}
	srv := newTestServer(t, svc)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/metadata",
		strings.NewReader(`{"url": "https://Example.com"}`))
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody[MetadataResponse](t, rr)
	if resp.URL != "https://example.com/" || resp.Status != "completed" {
		t.Errorf("response = %+v, want completed canonical record", resp)
	}
	if resp.ID == "" {
		t.Error("response must carry the record id")
	}
	if len(svc.createURLs) != 1 || svc.createURLs[0] != "https://Example.com" {
		t.Errorf("service saw %v, want the raw input url", svc.createURLs)
	}
}

func TestCreateMetadata_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"url": `},
		{"missing url", `{}`},
		{"empty url", `{"url": ""}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, &stubService{})
			rr := httptest.NewRecorder()
			srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/metadata", strings.NewReader(tc.body)))

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			resp := decodeBody[ErrorResponse](t, rr)
			if resp.Detail == "" {
				t.Error("error body must carry a detail message")
			}
		})
	}
}

func TestCreateMetadata_InvalidURLFromService(t *testing.T) {
	svc := &stubService{createErr: service.ErrInvalidURL}
	srv := newTestServer(t, svc)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/metadata",
		strings.NewReader(`{"url": "::not a url::"}`)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestCreateMetadata_CollectionFailure(t *testing.T) {
	svc := &stubService{createErr: &collector.Error{
		URL: "https://example.com/", Kind: collector.KindPermanent, Reason: "HTTP 404: permanent failure",
	}}
	srv := newTestServer(t, svc)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/metadata",
		strings.NewReader(`{"url": "https://example.com"}`)))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	resp := decodeBody[ErrorResponse](t, rr)
	if !strings.Contains(resp.Detail, "HTTP 404") {
		t.Errorf("detail = %q, want the classified collection error", resp.Detail)
	}
}

func TestGetMetadata_Hit(t *testing.T) {
	svc := &stubService{getRec: completedRecord(), getFound: true}
	srv := newTestServer(t, svc)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/metadata?url=https://example.com", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decodeBody[MetadataResponse](t, rr)
	if resp.URL != "https://example.com/" || resp.StatusCode != 200 {
		t.Errorf("response = %+v, want the stored record", resp)
	}
}

func TestGetMetadata_MissAccepted(t *testing.T) {
	svc := &stubService{getFound: false}
	srv := newTestServer(t, svc)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/metadata?url=https://New.example", nil))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}
	resp := decodeBody[MetadataAccepted](t, rr)
	if resp.URL != "https://New.example" {
		t.Errorf("accepted url = %q, want the raw input echoed back", resp.URL)
	}
	if resp.Status != "pending" || resp.Message == "" {
		t.Errorf("accepted body = %+v, want pending with message", resp)
	}
}

func TestGetMetadata_MissingURLParam(t *testing.T) {
	srv := newTestServer(t, &stubService{})

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/metadata", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t, &stubService{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example")
	srv.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Error("expected Access-Control-Allow-Origin header")
	}
}
