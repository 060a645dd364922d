package queue

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeTask(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Task
		wantErr bool
	}{
		{
			name:    "fresh enqueue without retry count",
			payload: `{"url":"https://example.com/"}`,
			want:    Task{URL: "https://example.com/", RetryCount: 0},
		},
		{
			name:    "republished with retry count",
			payload: `{"url":"https://example.com/","retry_count":2}`,
			want:    Task{URL: "https://example.com/", RetryCount: 2},
		},
		{
			name:    "malformed json",
			payload: `{"url":`,
			wantErr: true,
		},
		{
			name:    "missing url",
			payload: `{"retry_count":1}`,
			wantErr: true,
		},
		{
			name:    "not utf-8 json at all",
			payload: "\xff\xfe",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeTask([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("DecodeTask(%q): expected error", tt.payload)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeTask(%q): %v", tt.payload, err)
			}
			if got != tt.want {
				t.Errorf("DecodeTask(%q) = %+v, want %+v", tt.payload, got, tt.want)
			}
		})
	}

	if _, err := DecodeTask([]byte(`{"retry_count":1}`)); !errors.Is(err, ErrMissingURL) {
		t.Errorf("missing url: got %v, want ErrMissingURL", err)
	}
}

func TestTaskEncoding_FreshEnqueueOmitsRetryCount(t *testing.T) {
	payload, err := json.Marshal(Task{URL: "https://example.com/"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(payload) != `{"url":"https://example.com/"}` {
		t.Errorf("fresh task payload = %s, want retry_count omitted", payload)
	}
}
