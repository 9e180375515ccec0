package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Cron is a schedule driven by a standard five-field cron expression
type Cron struct {
	Expression string
	schedule   cron.Schedule
}

// NewCron creates a new cron schedule from a cron expression.
func NewCron(expression string) (*Cron, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	return &Cron{
		Expression: expression,
		schedule:   schedule,
	}, nil
}

// NextRun maps cron's "no match" zero time onto Never
func (c *Cron) NextRun(from time.Time) time.Time {
	next := c.schedule.Next(from)
	if next.IsZero() {
		return Never
	}
	return next
}

func (c *Cron) String() string {
	return fmt.Sprintf("cron(%s)", c.Expression)
}
