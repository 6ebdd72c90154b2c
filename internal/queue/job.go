package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobKind tags the payload variant so workers dispatch by exhaustive switch.
type JobKind string

const (
	JobProcessPayment JobKind = "process_payment"
	JobProcessRefund  JobKind = "process_refund"
	JobDeliverWebhook JobKind = "deliver_webhook"
)

// Job is a unit of background work. It carries only the referenced entity id;
// workers re-read authoritative state from the store, which keeps re-delivery
// of the same job harmless.
type Job struct {
	ID         string    `json:"id"`
	Kind       JobKind   `json:"kind"`
	EntityID   string    `json:"entityId"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// NewJob constructs a Job for the given kind and entity.
func NewJob(kind JobKind, entityID string) *Job {
	return &Job{
		ID:         uuid.New().String(),
		Kind:       kind,
		EntityID:   entityID,
		EnqueuedAt: time.Now().UTC(),
	}
}

func (j *Job) encode() (string, error) {
	b, err := json.Marshal(j)
	return string(b), err
}

func decodeJob(raw string) (*Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return nil, err
	}
	return &j, nil
}
