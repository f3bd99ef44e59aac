package dashboard

import (
	"sync"
	"time"

	"alertbot/internal/models"
)

// defaultRecorderCapacity bounds the in-memory alert window.
const defaultRecorderCapacity = 50

// AlertOutcome is the terminal state of one processed message.
type AlertOutcome string

const (
	OutcomeSubmitted AlertOutcome = "submitted"
	OutcomeRejected  AlertOutcome = "rejected"
	OutcomeMalformed AlertOutcome = "malformed"
)

// AlertRecord is one processed alert as shown on the dashboard.
type AlertRecord struct {
	TraceID    string             `json:"trace_id"`
	ReceivedAt time.Time          `json:"received_at"`
	Outcome    AlertOutcome       `json:"outcome"`
	Alert      *models.TradeAlert `json:"alert,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Recorder keeps a bounded, most-recent-first window of processed alerts and
// running counters. It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	records  []AlertRecord
	capacity int

	seen      int64
	submitted int64
	rejected  int64
	malformed int64
}

// NewRecorder creates a recorder holding up to capacity records; capacity
// values below one fall back to the default.
func NewRecorder(capacity int) *Recorder {
	if capacity < 1 {
		capacity = defaultRecorderCapacity
	}
	return &Recorder{capacity: capacity}
}

// Record appends rec, evicting the oldest entry once the window is full.
func (r *Recorder) Record(rec AlertRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seen++
	switch rec.Outcome {
	case OutcomeSubmitted:
		r.submitted++
	case OutcomeRejected:
		r.rejected++
	case OutcomeMalformed:
		r.malformed++
	}

	r.records = append(r.records, rec)
	if len(r.records) > r.capacity {
		r.records = r.records[len(r.records)-r.capacity:]
	}
}

// Recent returns the recorded alerts, newest first.
func (r *Recorder) Recent() []AlertRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]AlertRecord, len(r.records))
	for i, rec := range r.records {
		out[len(r.records)-1-i] = rec
	}
	return out
}

// Counters is a snapshot of the running totals.
type Counters struct {
	AlertsSeen      int64 `json:"alerts_seen"`
	OrdersSubmitted int64 `json:"orders_submitted"`
	OrdersRejected  int64 `json:"orders_rejected"`
	Malformed       int64 `json:"malformed"`
}

// Stats returns the current counter snapshot.
func (r *Recorder) Stats() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Counters{
		AlertsSeen:      r.seen,
		OrdersSubmitted: r.submitted,
		OrdersRejected:  r.rejected,
		Malformed:       r.malformed,
	}
}
