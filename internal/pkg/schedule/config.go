package schedule

import (
	"errors"
	"fmt"

	"taskhost/internal/pkg/config"
)

// FromConfig builds the schedule a scheduled processor definition declares.
// An omitted multiplier defaults to 1; an explicit negative one is rejected.
func FromConfig(cfg *config.ScheduleConfig) (Schedule, error) {
	if cfg == nil {
		return nil, errors.New("schedule is required")
	}
	if cfg.Cron != "" {
		return NewCron(cfg.Cron)
	}

	freq, err := ParseFrequency(cfg.Frequency)
	if err != nil {
		return nil, err
	}
	weekdays, err := ParseWeekdays(cfg.Weekdays)
	if err != nil {
		return nil, err
	}

	every := cfg.Every
	if every == 0 {
		every = 1
	}

	opts := []Option{func(i *Info) { i.Weekdays = weekdays }}
	if cfg.EarliestRun != nil {
		opts = append(opts, WithEarliestRun(*cfg.EarliestRun))
	}
	if cfg.LatestRun != nil {
		opts = append(opts, WithLatestRun(*cfg.LatestRun))
	}

	info, err := New(freq, every, cfg.Offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}
	return info, nil
}
