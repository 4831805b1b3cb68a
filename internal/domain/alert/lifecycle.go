package alert

import (
	"time"

	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
)

// ErrDuplicate is returned when an active alert with the same key already
// exists inside the dedup window.
var ErrDuplicate = errors.Duplicate("active alert already exists for this key")

// transitions lists the allowed status moves. There is no way back to active.
var transitions = map[string][]string{
	StatusActive:       {StatusAcknowledged, StatusResolved},
	StatusAcknowledged: {StatusResolved},
}

// CanTransition reports whether an alert may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Acknowledge moves an active alert to acknowledged
func (a *Alert) Acknowledge(actor string, at time.Time) error {
	if !CanTransition(a.Status, StatusAcknowledged) {
		return errors.InvalidTransition(a.Status, StatusAcknowledged)
	}
	at = at.UTC()
	a.Status = StatusAcknowledged
	a.Acknowledged = true
	a.AcknowledgedBy = actor
	a.AcknowledgedAt = &at
	a.UpdatedAt = at
	return nil
}

// Resolve closes an active or acknowledged alert
func (a *Alert) Resolve(actor, notes string, at time.Time) error {
	if !CanTransition(a.Status, StatusResolved) {
		return errors.InvalidTransition(a.Status, StatusResolved)
	}
	at = at.UTC()
	a.Status = StatusResolved
	a.Resolved = true
	a.ResolvedBy = actor
	a.ResolvedAt = &at
	a.ResolutionNotes = notes
	a.UpdatedAt = at
	return nil
}
