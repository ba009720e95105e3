// Package schedule launches SCHEDULE executions for workflows that declare a
// schedule trigger node.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/dukex/runledger/pkg/models"
	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned when a schedule trigger node cannot be scheduled.
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Schedule is the due-time bookkeeping of one schedule trigger node.
type Schedule struct {
	WorkflowID     string
	NodeID         string
	CronExpression string
	Location       *time.Location
	Payload        map[string]any

	// NextDueAt is the precomputed next firing time.
	NextDueAt time.Time

	spec cron.Schedule
}

// NewSchedule parses the node config and computes the first due time after now.
func NewSchedule(workflowID string, node *models.WorkflowNode, now time.Time) (*Schedule, error) {
	expression, _ := node.Config["cron"].(string)
	if expression == "" {
		return nil, fmt.Errorf("%w: node %s has no cron expression", ErrInvalidSchedule, node.ID)
	}

	spec, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: node %s: %w", ErrInvalidSchedule, node.ID, err)
	}

	location := time.UTC

	if tz, _ := node.Config["timezone"].(string); tz != "" {
		location, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("%w: node %s: %w", ErrInvalidSchedule, node.ID, err)
		}
	}

	payload, _ := node.Config["payload"].(map[string]any)

	schedule := &Schedule{
		WorkflowID:     workflowID,
		NodeID:         node.ID,
		CronExpression: expression,
		Location:       location,
		Payload:        models.CloneDocument(payload),
		spec:           spec,
	}

	schedule.Advance(now)

	return schedule, nil
}

// Key identifies the schedule across reloads.
func (s *Schedule) Key() string {
	return s.WorkflowID + "/" + s.NodeID
}

// IsDue reports whether the schedule should fire at now.
func (s *Schedule) IsDue(now time.Time) bool {
	return !s.NextDueAt.After(now)
}

// Advance moves NextDueAt to the first firing strictly after now. Missed
// firings are collapsed into one.
func (s *Schedule) Advance(now time.Time) {
	s.NextDueAt = s.spec.Next(now.In(s.Location)).UTC()
}

// TriggerPayload is the payload handed to the execution fired at dueAt.
func (s *Schedule) TriggerPayload(dueAt, firedAt time.Time) map[string]any {
	payload := models.CloneDocument(s.Payload)
	if payload == nil {
		payload = map[string]any{}
	}

	payload["cron_expression"] = s.CronExpression
	payload["due_at"] = dueAt.UTC().Format(time.RFC3339)
	payload["fired_at"] = firedAt.UTC().Format(time.RFC3339)

	return payload
}
