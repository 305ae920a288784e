// Package preptime computes when a dish ordered at a given instant will be
// ready, based on the kitchen-configured timing rule. All functions are pure.
package preptime

import (
	"fmt"
	"regexp"
	"time"
)

type OptionType string

const (
	OptionFixed  OptionType = "fixed"
	OptionRange  OptionType = "range"
	OptionCutoff OptionType = "cutoff"
)

// Config is the timing rule attached to an offer. Exactly one shape applies
// depending on OptionType; unrelated fields are ignored.
type Config struct {
	OptionType OptionType `json:"optionType"`

	// fixed
	PrepTimeMinutes int `json:"prepTimeMinutes,omitempty"`

	// range
	PrepTimeMinMinutes int `json:"prepTimeMinMinutes,omitempty"`
	PrepTimeMaxMinutes int `json:"prepTimeMaxMinutes,omitempty"`

	// cutoff, times as "HH:MM"
	CutoffTime            string `json:"cutoffTime,omitempty"`
	BeforeCutoffReadyTime string `json:"beforeCutoffReadyTime,omitempty"`
	AfterCutoffReadyTime  string `json:"afterCutoffReadyTime,omitempty"`
	AfterCutoffDayOffset  int    `json:"afterCutoffDayOffset,omitempty"`
}

// Result is the computed ready time for one line.
type Result struct {
	ReadyAt time.Time

	// ReadyAtMin is informational only, set for range configs.
	ReadyAtMin *time.Time

	Display      string
	BeforeCutoff bool
	NextDay      bool
}

const (
	minPrepMinutes = 5
	maxPrepMinutes = 1440
)

var timeOfDayRe = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

// Validate reports whether the config is well formed.
func (c Config) Validate() error {
	switch c.OptionType {
	case OptionFixed:
		if c.PrepTimeMinutes < minPrepMinutes || c.PrepTimeMinutes > maxPrepMinutes {
			return fmt.Errorf("prepTimeMinutes must be between %d and %d", minPrepMinutes, maxPrepMinutes)
		}
	case OptionRange:
		if c.PrepTimeMinMinutes < minPrepMinutes || c.PrepTimeMinMinutes > maxPrepMinutes {
			return fmt.Errorf("prepTimeMinMinutes must be between %d and %d", minPrepMinutes, maxPrepMinutes)
		}
		if c.PrepTimeMaxMinutes < minPrepMinutes || c.PrepTimeMaxMinutes > maxPrepMinutes {
			return fmt.Errorf("prepTimeMaxMinutes must be between %d and %d", minPrepMinutes, maxPrepMinutes)
		}
		if c.PrepTimeMinMinutes >= c.PrepTimeMaxMinutes {
			return fmt.Errorf("prepTimeMinMinutes must be less than prepTimeMaxMinutes")
		}
	case OptionCutoff:
		if !timeOfDayRe.MatchString(c.CutoffTime) {
			return fmt.Errorf("cutoffTime must be in HH:MM format")
		}
		if !timeOfDayRe.MatchString(c.BeforeCutoffReadyTime) {
			return fmt.Errorf("beforeCutoffReadyTime must be in HH:MM format")
		}
		if !timeOfDayRe.MatchString(c.AfterCutoffReadyTime) {
			return fmt.Errorf("afterCutoffReadyTime must be in HH:MM format")
		}
		if c.AfterCutoffDayOffset < 1 {
			return fmt.Errorf("afterCutoffDayOffset must be at least 1")
		}
	default:
		return fmt.Errorf("optionType must be: fixed, range, or cutoff")
	}
	return nil
}

// Calculate converts the timing rule and an order timestamp into a ready time.
func Calculate(cfg Config, orderTime time.Time) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	switch cfg.OptionType {
	case OptionFixed:
		return Result{
			ReadyAt: orderTime.Add(time.Duration(cfg.PrepTimeMinutes) * time.Minute),
			Display: fmt.Sprintf("%d mins", cfg.PrepTimeMinutes),
		}, nil

	case OptionRange:
		readyAtMin := orderTime.Add(time.Duration(cfg.PrepTimeMinMinutes) * time.Minute)
		return Result{
			ReadyAt:    orderTime.Add(time.Duration(cfg.PrepTimeMaxMinutes) * time.Minute),
			ReadyAtMin: &readyAtMin,
			Display:    fmt.Sprintf("%d-%d mins", cfg.PrepTimeMinMinutes, cfg.PrepTimeMaxMinutes),
		}, nil

	case OptionCutoff:
		cutoff := parseTimeOfDay(cfg.CutoffTime)
		order := minutesOfDay(orderTime)

		if order >= cutoff {
			ready := atTimeOfDay(orderTime.AddDate(0, 0, cfg.AfterCutoffDayOffset), cfg.AfterCutoffReadyTime)
			return Result{
				ReadyAt: ready,
				Display: fmt.Sprintf("Ready tomorrow at %s", cfg.AfterCutoffReadyTime),
				NextDay: true,
			}, nil
		}

		return Result{
			ReadyAt:      atTimeOfDay(orderTime, cfg.BeforeCutoffReadyTime),
			Display:      fmt.Sprintf("Ready by %s", cfg.BeforeCutoffReadyTime),
			BeforeCutoff: true,
		}, nil
	}

	return Result{}, fmt.Errorf("optionType must be: fixed, range, or cutoff")
}

// CombinedReadyTime aggregates a sub-order's line ready times into the
// latest one, compared as absolute timestamps.
func CombinedReadyTime(results []Result) time.Time {
	var latest time.Time
	for _, r := range results {
		if r.ReadyAt.After(latest) {
			latest = r.ReadyAt
		}
	}
	return latest
}

func parseTimeOfDay(s string) int {
	var hours, mins int
	fmt.Sscanf(s, "%d:%d", &hours, &mins)
	return hours*60 + mins
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func atTimeOfDay(day time.Time, timeOfDay string) time.Time {
	var hours, mins int
	fmt.Sscanf(timeOfDay, "%d:%d", &hours, &mins)
	return time.Date(day.Year(), day.Month(), day.Day(), hours, mins, 0, 0, day.Location())
}
