package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CurrentTime reports the current time in a requested time zone.
type CurrentTime struct {
	now func() time.Time
}

// NewCurrentTime creates the current_time tool; nil now uses time.Now.
func NewCurrentTime(now func() time.Time) *CurrentTime {
	if now == nil {
		now = time.Now
	}
	return &CurrentTime{now: now}
}

func (t *CurrentTime) Name() string { return "current_time" }

func (t *CurrentTime) Description() string {
	return "Returns the current date and time, optionally in an IANA time zone."
}

func (t *CurrentTime) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"timezone": {"type": "string", "maxLength": 64},
			"format": {"type": "string", "enum": ["rfc3339", "human"]}
		},
		"additionalProperties": false
	}`)
}

func (t *CurrentTime) Execute(_ context.Context, params json.RawMessage) (*Result, error) {
	var in struct {
		Timezone string `json:"timezone"`
		Format   string `json:"format"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}
	loc := time.UTC
	if tz := strings.TrimSpace(in.Timezone); tz != "" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			return &Result{Content: "unknown time zone: " + tz, IsError: true}, nil
		}
	}
	now := t.now().In(loc)
	if in.Format == "human" {
		return &Result{Content: now.Format("Monday, January 2, 2006 at 3:04 PM MST")}, nil
	}
	return &Result{Content: now.Format(time.RFC3339)}, nil
}

// DateDiff counts the days between two calendar dates.
type DateDiff struct{}

// NewDateDiff creates the date_diff tool.
func NewDateDiff() *DateDiff { return &DateDiff{} }

func (DateDiff) Name() string { return "date_diff" }

func (DateDiff) Description() string {
	return "Returns the number of days from one YYYY-MM-DD date to another."
}

func (DateDiff) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"from": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
			"to": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"}
		},
		"required": ["from", "to"],
		"additionalProperties": false
	}`)
}

func (DateDiff) Execute(_ context.Context, params json.RawMessage) (*Result, error) {
	var in struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}
	from, err := time.Parse(time.DateOnly, in.From)
	if err != nil {
		return &Result{Content: "invalid from date: " + in.From, IsError: true}, nil
	}
	to, err := time.Parse(time.DateOnly, in.To)
	if err != nil {
		return &Result{Content: "invalid to date: " + in.To, IsError: true}, nil
	}
	days := int(to.Sub(from).Hours() / 24)
	return &Result{Content: fmt.Sprintf("%d", days)}, nil
}
