package store

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status is the lifecycle state of a metadata record.
type Status string

const (
	// StatusPending means a collection is enqueued or in flight.
	StatusPending Status = "pending"
	// StatusCompleted means the most recent fetch succeeded and the
	// HTTP-derived fields are valid.
	StatusCompleted Status = "completed"
	// StatusFailed means the last collection attempt was routed to the
	// dead-letter topic; the record is eligible for re-scheduling.
	StatusFailed Status = "failed"
)

// MetadataRecord is the persisted document, keyed uniquely by canonical URL.
type MetadataRecord struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	URL        string             `bson:"url"`
	Status     Status             `bson:"status"`
	Headers    map[string]string  `bson:"headers,omitempty"`
	Cookies    map[string]string  `bson:"cookies,omitempty"`
	PageSource string             `bson:"page_source,omitempty"`
	PageTitle  string             `bson:"page_title,omitempty"`
	StatusCode int                `bson:"status_code,omitempty"`
	Error      string             `bson:"error,omitempty"`
	CreatedAt  time.Time          `bson:"created_at,omitempty"`
	UpdatedAt  time.Time          `bson:"updated_at,omitempty"`
}

// Fields is the HTTP-derived payload written by a successful collection.
type Fields struct {
	Headers    map[string]string
	Cookies    map[string]string
	PageSource string
	PageTitle  string
	StatusCode int
}
