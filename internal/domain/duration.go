package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type DurationUnit string

const (
	UnitHours DurationUnit = "hours"
	UnitDays  DurationUnit = "days"
	UnitWeeks DurationUnit = "weeks"
)

// Working hours per unit used for learning-hour accounting.
const (
	HoursPerDay  = 8
	HoursPerWeek = 40
)

// LearningDuration is a workshop length as a number of units.
type LearningDuration struct {
	Value float64      `json:"value"`
	Unit  DurationUnit `json:"unit"`
}

func NewLearningDuration(value float64, unit DurationUnit) (LearningDuration, error) {
	d := LearningDuration{Value: value, Unit: unit}
	return d, d.Validate()
}

func (d LearningDuration) Validate() error {
	if d.Value <= 0 {
		return Invalid("duration.value", "must be greater than zero")
	}
	switch d.Unit {
	case UnitHours, UnitDays, UnitWeeks:
		return nil
	}
	return Invalid("duration.unit", "must be one of hours, days, weeks; got %q", d.Unit)
}

// Hours converts d into learning hours.
func (d LearningDuration) Hours() float64 {
	switch d.Unit {
	case UnitDays:
		return d.Value * HoursPerDay
	case UnitWeeks:
		return d.Value * HoursPerWeek
	}
	return d.Value
}

func (d LearningDuration) String() string {
	return strconv.FormatFloat(d.Value, 'f', -1, 64) + " " + string(d.Unit)
}

var leadingNumber = regexp.MustCompile(`\d+`)

// ParseLegacyDuration reads free-text durations such as "2 hours" or "1 week".
// Text naming no known unit becomes two hours; a missing number counts as one.
func ParseLegacyDuration(s string) LearningDuration {
	lower := strings.ToLower(s)
	n := 1.0
	if m := leadingNumber.FindString(lower); m != "" {
		if v, err := strconv.Atoi(m); err == nil {
			n = float64(v)
		}
	}
	switch {
	case strings.Contains(lower, "hour"):
		return LearningDuration{Value: n, Unit: UnitHours}
	case strings.Contains(lower, "day"):
		return LearningDuration{Value: n, Unit: UnitDays}
	case strings.Contains(lower, "week"):
		return LearningDuration{Value: n, Unit: UnitWeeks}
	}
	return LearningDuration{Value: 2, Unit: UnitHours}
}

// UnmarshalJSON accepts the structured form and, for imported data, a legacy string.
func (d *LearningDuration) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = ParseLegacyDuration(s)
		return nil
	}
	type plain LearningDuration
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	*d = LearningDuration(p)
	return nil
}
