package policy

import (
	"testing"
	"time"

	"github.com/roomoperable/fleetpulse/pkg/models"
)

func TestFromExpectationsDefaults(t *testing.T) {
	p := FromExpectations(models.Expectations{}, "")

	if p.AlertAfter != DefaultAlertAfter {
		t.Errorf("AlertAfter = %v, want %v", p.AlertAfter, DefaultAlertAfter)
	}
	if p.Location != time.UTC {
		t.Errorf("Location = %v, want UTC", p.Location)
	}
	if p.AlwaysOn {
		t.Error("AlwaysOn = true, want false")
	}
}

func TestFromExpectationsClampsAlertAfter(t *testing.T) {
	p := FromExpectations(models.Expectations{AlertAfterSeconds: 5}, "UTC")
	if p.AlertAfter != MinAlertAfter {
		t.Errorf("AlertAfter = %v, want clamped to %v", p.AlertAfter, MinAlertAfter)
	}
}

func TestFromExpectationsDropsMalformedRules(t *testing.T) {
	p := FromExpectations(models.Expectations{
		Schedule: models.Schedule{
			Timezone: "UTC",
			Rules: []models.ScheduleRule{
				{Days: []string{"mon"}, Start: "notatime", End: "18:00"},
				{Days: nil, Start: "08:00", End: "18:00"},
				{Days: []string{"blursday"}, Start: "08:00", End: "18:00"},
				{Days: []string{"Tuesday", "wed"}, Start: "08:00", End: "18:00"},
			},
		},
	}, "UTC")

	if len(p.Rules) != 1 {
		t.Fatalf("got %d rules, want 1 (malformed rules dropped)", len(p.Rules))
	}
	if !p.Rules[0].Days[time.Tuesday] || !p.Rules[0].Days[time.Wednesday] {
		t.Errorf("day normalization lost tue/wed: %v", p.Rules[0].Days)
	}
}

func TestFromExpectationsBadTimezoneFallsBack(t *testing.T) {
	p := FromExpectations(models.Expectations{
		Schedule: models.Schedule{Timezone: "Mars/Olympus_Mons"},
	}, "nonsense-too")
	if p.Location != time.UTC {
		t.Errorf("Location = %v, want UTC fallback", p.Location)
	}
}
