package model

import "time"

// QueryOpts holds optional filters applied to totals queries.
type QueryOpts struct {
	Kind   string // empty = all kinds
	Metric string // empty = all metrics
}

// MetricTotal is the aggregate of everything flushed for one metric.
// Value holds the event count for counts, the summed amount for amounts,
// the latest value for statuses and the summed duration for intervals.
type MetricTotal struct {
	Kind     string
	Metric   string
	Events   int64
	Value    int64
	LastSeen time.Time
}
