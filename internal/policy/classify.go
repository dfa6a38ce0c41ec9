package policy

import (
	"time"

	"github.com/roomoperable/fleetpulse/pkg/models"
)

// expectedOn reports whether the device is inside at least one expected-on
// window at the given local time. An empty rule set means the device is
// expected on at all times.
//
// Midnight-crossing windows split in two: for a 22:00-02:00 rule on fri, the
// pre-midnight half matches Friday evenings, and the post-midnight half
// matches Saturday until 02:00 because the rule's day list names the weekday
// the window started on.
func expectedOn(nowLocal time.Time, p Policy) bool {
	if len(p.Rules) == 0 {
		return true
	}

	minute := nowLocal.Hour()*60 + nowLocal.Minute()
	day := nowLocal.Weekday()
	prevDay := (day + 6) % 7

	for _, r := range p.Rules {
		if r.Start <= r.End {
			if r.Days[day] && minute >= r.Start && minute <= r.End {
				return true
			}
			continue
		}
		// Window crosses midnight.
		if r.Days[day] && minute >= r.Start {
			return true
		}
		if r.Days[prevDay] && minute <= r.End {
			return true
		}
	}
	return false
}

// Classify derives the verdict for one observation. Pure: no I/O, no clock
// reads beyond the supplied now.
//
//   - A fresh online reading is always ok, before any doubt check.
//   - A device not seen online for doubtAfterDays or more is doubt.
//   - An offline streak shorter than the policy grace period is unknown
//     (this absorbs flaps and slow boots).
//   - Past the grace period, always-on devices and devices inside an
//     expected-on window are fault; everything else is expected_off.
//
// offlineFor is the length of the current continuous offline streak; pass a
// negative value when the streak start is unknown (treated as past grace).
func Classify(now time.Time, p Policy, status models.Status, lastOkAt time.Time, offlineFor time.Duration, doubtAfterDays int) models.Verdict {
	if status == models.StatusOnline {
		return models.VerdictOK
	}

	if !lastOkAt.IsZero() && doubtAfterDays > 0 {
		if now.Sub(lastOkAt) >= time.Duration(doubtAfterDays)*24*time.Hour {
			return models.VerdictDoubt
		}
	}

	if status == models.StatusOffline {
		if offlineFor >= 0 && offlineFor < p.AlertAfter {
			return models.VerdictUnknown
		}
		if p.AlwaysOn {
			return models.VerdictFault
		}
		if expectedOn(now.In(p.Location), p) {
			return models.VerdictFault
		}
		return models.VerdictExpectedOff
	}

	return models.VerdictUnknown
}
