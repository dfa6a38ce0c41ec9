// Package policy turns per-device expectation configuration into verdicts.
// Classification is a pure function of its inputs: the same observation,
// policy, and clock always produce the same verdict.
package policy

import (
	"strings"
	"time"

	"github.com/roomoperable/fleetpulse/pkg/models"
)

// DefaultAlertAfter is applied when a device declares no grace period.
const DefaultAlertAfter = 300 * time.Second

// MinAlertAfter is the floor for the offline grace period. Anything shorter
// would alert on a single missed probe.
const MinAlertAfter = 15 * time.Second

// Rule is one parsed expected-on window. Start and End are minutes from
// midnight in the policy's timezone; Start > End means the window crosses
// midnight into the next day.
type Rule struct {
	Days  map[time.Weekday]bool
	Start int
	End   int
}

// Policy is the agent-side expectation set for one device.
type Policy struct {
	AlwaysOn   bool
	AlertAfter time.Duration
	Location   *time.Location
	Rules      []Rule
}

var weekdayNames = map[string]time.Weekday{
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
	"sun": time.Sunday, "sunday": time.Sunday,
}

// parseHHMM returns minutes from midnight, or -1 when the value is malformed.
func parseHHMM(s string) int {
	s = strings.TrimSpace(s)
	t, err := time.Parse("15:04", s)
	if err != nil {
		return -1
	}
	return t.Hour()*60 + t.Minute()
}

// parseDays normalizes a day list; unrecognized names are dropped.
func parseDays(raw []string) map[time.Weekday]bool {
	out := make(map[time.Weekday]bool, len(raw))
	for _, d := range raw {
		if wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(d))]; ok {
			out[wd] = true
		}
	}
	return out
}

// FromExpectations builds a Policy from a device's expectation block.
// Malformed schedule rules are dropped rather than failing the device
// (configuration errors never abort a probe cycle), an unknown timezone falls
// back to defaultTZ and then UTC, and the grace period is clamped to
// MinAlertAfter.
func FromExpectations(exp models.Expectations, defaultTZ string) Policy {
	p := Policy{AlwaysOn: exp.AlwaysOn}

	after := time.Duration(exp.AlertAfterSeconds) * time.Second
	if exp.AlertAfterSeconds <= 0 {
		after = DefaultAlertAfter
	}
	if after < MinAlertAfter {
		after = MinAlertAfter
	}
	p.AlertAfter = after

	tzName := strings.TrimSpace(exp.Schedule.Timezone)
	if tzName == "" {
		tzName = strings.TrimSpace(defaultTZ)
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil || tzName == "" {
		loc = time.UTC
	}
	p.Location = loc

	for _, r := range exp.Schedule.Rules {
		days := parseDays(r.Days)
		start := parseHHMM(r.Start)
		end := parseHHMM(r.End)
		if len(days) == 0 || start < 0 || end < 0 {
			continue // rule dropped, safe default
		}
		p.Rules = append(p.Rules, Rule{Days: days, Start: start, End: end})
	}
	return p
}
