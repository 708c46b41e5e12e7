package model

import "time"

// Shared defaults used by both the sidecar and dashboard binaries.
const (
	DefaultFlushLimit     = 1000
	DefaultFlushInterval  = time.Second
	DefaultUpdateInterval = 2 * time.Second
)
