package production

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status is the lifecycle state of a production job.
type Status string

const (
	StatusPending             Status = "pending"
	StatusGeneratingNarration Status = "generating_narration"
	StatusGeneratingSegments  Status = "generating_segments"
	StatusAssembling          Status = "assembling"
	StatusCompleted           Status = "completed"
	StatusFailed              Status = "failed"
)

// ErrIllegalTransition reports a status change outside the transition table.
var ErrIllegalTransition = errors.New("illegal status transition")

var allStatuses = []Status{
	StatusPending,
	StatusGeneratingNarration,
	StatusGeneratingSegments,
	StatusAssembling,
	StatusCompleted,
	StatusFailed,
}

var allowedTransitions = map[Status][]Status{
	StatusPending:             {StatusGeneratingNarration, StatusFailed},
	StatusGeneratingNarration: {StatusGeneratingSegments, StatusFailed},
	StatusGeneratingSegments:  {StatusAssembling, StatusFailed},
	StatusAssembling:          {StatusCompleted, StatusFailed},
}

// ParseStatus converts raw to a known Status.
func ParseStatus(raw string) (Status, bool) {
	candidate := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, s := range allStatuses {
		if s == candidate {
			return s, true
		}
	}
	return "", false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

// StageLabel renders a status for humans ("generating_segments" -> "Generating Segments").
func StageLabel(s Status) string {
	if s == "" {
		return ""
	}
	// Casers carry state, so each call gets its own.
	return cases.Title(language.English).String(strings.ReplaceAll(string(s), "_", " "))
}
