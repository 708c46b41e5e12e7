// Package ingest turns JSON command lines into engine calls.
//
// One command per JSON object; objects may span several lines:
//
//	{"op":"count","metric":"requests"}
//	{"op":"amount","metric":"bytes_out","value":512}
//	{"op":"status","metric":"workers","value":8}
//	{"op":"begin","metric":"upload","ref":"u1"}
//	{"op":"end","metric":"upload","ref":"u1"}
//	{"op":"cancel","metric":"db_query"}
//
// end and cancel without ref or id correlate by metric; with one they
// correlate by id. A begin's ref names the id the engine returned so later
// commands can use it; id takes an id verbatim.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tinytelemetry/spool/internal/model"
)

// Op names a command.
type Op string

const (
	OpCount  Op = "count"
	OpAmount Op = "amount"
	OpStatus Op = "status"
	OpBegin  Op = "begin"
	OpEnd    Op = "end"
	OpCancel Op = "cancel"
)

// Command is one decoded input line.
type Command struct {
	Op          Op     `json:"op"`
	Metric      string `json:"metric"`
	Description string `json:"description,omitempty"`
	Value       int64  `json:"value,omitempty"`
	Ref         string `json:"ref,omitempty"`
	ID          string `json:"id,omitempty"`
}

// ErrInvalidCommand wraps every decode and validation failure.
var ErrInvalidCommand = errors.New("invalid command")

// ParseCommand decodes and validates one JSON command.
func ParseCommand(data string) (Command, error) {
	var c Command
	dec := json.NewDecoder(strings.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	c.Op = Op(strings.ToLower(string(c.Op)))

	switch c.Op {
	case OpCount, OpAmount, OpStatus, OpBegin, OpEnd, OpCancel:
	case "":
		return Command{}, fmt.Errorf("%w: missing op", ErrInvalidCommand)
	default:
		return Command{}, fmt.Errorf("%w: unknown op %q", ErrInvalidCommand, c.Op)
	}
	if strings.TrimSpace(c.Metric) == "" {
		return Command{}, fmt.Errorf("%w: missing metric", ErrInvalidCommand)
	}
	if c.ID != "" {
		if _, err := uuid.Parse(c.ID); err != nil {
			return Command{}, fmt.Errorf("%w: bad id %q", ErrInvalidCommand, c.ID)
		}
		if c.Op == OpBegin {
			return Command{}, fmt.Errorf("%w: begin cannot carry an id", ErrInvalidCommand)
		}
	}
	return c, nil
}

// MetricValue returns the metric the command refers to.
func (c Command) MetricValue() model.Metric {
	return model.Metric{Name: c.Metric, Description: c.Description}
}

// correlated reports whether an end/cancel names a specific interval.
func (c Command) correlated() bool {
	return c.Ref != "" || c.ID != ""
}
