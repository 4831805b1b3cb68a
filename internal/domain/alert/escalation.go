package alert

import (
	"fmt"
	"time"

	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
)

// Escalation records advisory escalation metadata on an alert. Nothing pages
// automatically; operators read it to decide who to contact.
type Escalation struct {
	Level        int        `json:"level"`
	DelayMinutes int        `json:"delay_minutes"`
	Recipients   []string   `json:"recipients"`
	Channels     []string   `json:"channels"`
	EscalatedAt  *time.Time `json:"escalated_at,omitempty"`
}

// EscalationLevels are the three fixed tiers
var EscalationLevels = map[int]Escalation{
	1: {Level: 1, DelayMinutes: 30, Recipients: []string{"manager@company.com"}, Channels: []string{"email"}},
	2: {Level: 2, DelayMinutes: 60, Recipients: []string{"director@company.com"}, Channels: []string{"email", "sms"}},
	3: {Level: 3, DelayMinutes: 120, Recipients: []string{"cto@company.com"}, Channels: []string{"email", "sms", "phone"}},
}

// Escalate attaches escalation metadata for the given level.
func (a *Alert) Escalate(level int, at time.Time) error {
	tier, ok := EscalationLevels[level]
	if !ok {
		return errors.BadRequest(fmt.Sprintf("invalid escalation level %d", level))
	}
	if a.Status == StatusResolved {
		return errors.InvalidTransition(a.Status, fmt.Sprintf("escalation level %d", level))
	}
	at = at.UTC()
	tier.Recipients = append([]string(nil), tier.Recipients...)
	tier.Channels = append([]string(nil), tier.Channels...)
	tier.EscalatedAt = &at
	a.Escalation = &tier
	a.UpdatedAt = at
	return nil
}
