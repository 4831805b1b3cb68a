package notification

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pratik-mahalle/costwatch/internal/domain/alert"
	"github.com/pratik-mahalle/costwatch/internal/domain/report"
)

// FormatAlert renders the subject and body for an alert on its routed channel.
func FormatAlert(a *alert.Alert) Message {
	subject := fmt.Sprintf("%s Cost Alert: %s - %s",
		SeverityTag(a.Severity), a.Service, strings.ToUpper(a.Severity))

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", a.Message)
	fmt.Fprintf(&b, "Alert ID:     %s\n", a.ID)
	fmt.Fprintf(&b, "Type:         %s\n", HumanizeType(a.Type))
	fmt.Fprintf(&b, "Severity:     %s\n", strings.ToUpper(a.Severity))
	fmt.Fprintf(&b, "Service:      %s\n", a.Service)
	fmt.Fprintf(&b, "Region:       %s\n", a.Region)
	fmt.Fprintf(&b, "Current cost: $%s\n", a.CurrentCost.StringFixed(2))
	fmt.Fprintf(&b, "Threshold:    $%s\n", a.Threshold.StringFixed(2))
	fmt.Fprintf(&b, "Timestamp:    %s\n\n", a.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&b, "Investigate: check cost trends for %s in %s\n", a.Service, a.Region)
	fmt.Fprintf(&b, "Acknowledge: costwatch alerts ack %s\n", a.ID)

	return Message{
		Channel:  ChannelFor(a.Type),
		Subject:  subject,
		Body:     b.String(),
		Severity: a.Severity,
	}
}

// HumanizeType turns service_threshold_breach into Service Threshold Breach
func HumanizeType(t string) string {
	words := strings.Split(t, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// FormatSummary renders a cost summary for the reports channel
func FormatSummary(s report.Summary) Message {
	period := s.PeriodStart
	if s.PeriodEnd != "" && s.PeriodEnd != s.PeriodStart {
		period = s.PeriodStart + " to " + s.PeriodEnd
	}
	subject := fmt.Sprintf("%s - %s", s.Title, period)

	var b strings.Builder
	if s.NoData {
		fmt.Fprintf(&b, "No cost data for %s\n", period)
		return Message{Channel: ChannelReports, Subject: subject, Body: b.String(), Severity: alert.SeverityInfo}
	}
	fmt.Fprintf(&b, "Total cost:         $%.2f\n", s.TotalCost)
	fmt.Fprintf(&b, "Average daily cost: $%.2f\n", s.AverageDailyCost)
	fmt.Fprintf(&b, "Days:               %d\n", s.DaysInPeriod)
	fmt.Fprintf(&b, "Records:            %d\n", s.RecordCount)
	if s.WeekOverWeekChange != nil {
		fmt.Fprintf(&b, "Week over week:     %+.1f%%\n", *s.WeekOverWeekChange)
	}
	writeBreakdown(&b, "Daily", s.DailyBreakdown, false)
	writeBreakdown(&b, "By service", s.ServiceBreakdown, true)
	writeBreakdown(&b, "By region", s.RegionalBreakdown, true)

	return Message{Channel: ChannelReports, Subject: subject, Body: b.String(), Severity: alert.SeverityInfo}
}

// writeBreakdown lists entries by key, or by cost descending when byCost is set
func writeBreakdown(b *strings.Builder, title string, m map[string]float64, byCost bool) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if byCost && m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(b, "  %-20s $%.2f\n", k, m[k])
	}
}
