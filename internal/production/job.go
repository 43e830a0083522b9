package production

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"reelforge/internal/pricing"
)

// Event is one entry in a job's status trail.
type Event struct {
	Seq     int
	From    Status
	To      Status
	Message string
	At      time.Time
}

// SegmentRecord is the persisted outcome of one scene prompt.
type SegmentRecord struct {
	Index  int
	Prompt string
	Asset  string
	Failed bool
	Reason string
	Cost   decimal.Decimal
}

// Job is one production run of a strategy.
type Job struct {
	ID                string
	StrategyID        int64
	Status            Status
	Mode              pricing.Mode
	MinSuccessful     int
	EstimatedCost     decimal.Decimal
	NarrationAsset    string
	NarrationProvider string
	NarrationDuration float64
	Segments          []SegmentRecord
	AssembledAsset    string
	FinalAsset        string
	RemoteRef         string
	FinalDuration     float64
	FinalWidth        int
	FinalHeight       int
	FinalSizeBytes    int64
	MusicTrack        string
	MusicVolume       float64
	CostNarration     decimal.Decimal
	CostSegments      decimal.Decimal
	CostTotal         decimal.Decimal
	ErrorMessage      string
	Events            []Event
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewJob returns a pending job for strategyID.
func NewJob(id string, strategyID int64, mode pricing.Mode, now time.Time) *Job {
	return &Job{
		ID:            id,
		StrategyID:    strategyID,
		Status:        StatusPending,
		Mode:          mode,
		EstimatedCost: decimal.Zero,
		CostNarration: decimal.Zero,
		CostSegments:  decimal.Zero,
		CostTotal:     decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// transition moves the job to "to" and appends the event to the trail.
func (j *Job) transition(to Status, message string, at time.Time) (Event, error) {
	if err := checkTransition(j.Status, to); err != nil {
		return Event{}, err
	}
	ev := Event{
		Seq:     len(j.Events) + 1,
		From:    j.Status,
		To:      to,
		Message: message,
		At:      at,
	}
	j.Status = to
	j.UpdatedAt = at
	j.Events = append(j.Events, ev)
	return ev, nil
}

// FinalizeCosts sets CostTotal to narration plus segments. It is the only
// writer of CostTotal.
func (j *Job) FinalizeCosts() {
	j.CostTotal = j.CostNarration.Add(j.CostSegments)
}

// SucceededSegments counts segments that produced an asset.
func (j *Job) SucceededSegments() int {
	n := 0
	for _, s := range j.Segments {
		if !s.Failed {
			n++
		}
	}
	return n
}

// JobStore persists jobs. RecordTransition must write the job row and the
// event atomically.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) error
	SaveJob(ctx context.Context, job *Job) error
	RecordTransition(ctx context.Context, job *Job, ev Event) error
	SaveSegments(ctx context.Context, jobID string, segments []SegmentRecord) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
}
