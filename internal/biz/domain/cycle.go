package domain

import (
	"fmt"
	"time"
)

// CycleLog is the audit record of one monitor cycle
type CycleLog struct {
	ID                   int64
	RelationshipsChecked int
	ActivitiesFound      int
	NewNegative          int
	AlertsSent           int
	Errors               []string
	DurationMs           int64
	RanAt                time.Time
}

// Warn records a non-fatal per-item failure in the cycle result
func (c *CycleLog) Warn(format string, args ...interface{}) {
	c.Errors = append(c.Errors, fmt.Sprintf(format, args...))
}
