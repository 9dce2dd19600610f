package domain

import (
	"sync"

	"github.com/google/uuid"
)

// SweepItem is the outcome of one lead inside a trigger sweep.
type SweepItem struct {
	LeadID  uuid.UUID `json:"leadId"`
	Action  string    `json:"action"`
	Level   int       `json:"level,omitempty"`
	Success bool      `json:"success"`
	Skipped bool      `json:"skipped,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// SweepReport aggregates a trigger sweep. Errors counts failed items.
type SweepReport struct {
	Processed int         `json:"processed"`
	Errors    int         `json:"errors"`
	Results   []SweepItem `json:"results"`
}

// SweepCollector gathers items from concurrent workers.
type SweepCollector struct {
	mu    sync.Mutex
	items []SweepItem
}

// Add records one item.
func (c *SweepCollector) Add(item SweepItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, item)
}

// Fail records a failed item.
func (c *SweepCollector) Fail(leadID uuid.UUID, action string, level int, err error) {
	c.Add(SweepItem{LeadID: leadID, Action: action, Level: level, Error: err.Error()})
}

// Report builds the aggregate. Skipped items count as processed.
func (c *SweepCollector) Report() SweepReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	report := SweepReport{Results: make([]SweepItem, len(c.items))}
	copy(report.Results, c.items)
	for _, item := range c.items {
		report.Processed++
		if !item.Success && !item.Skipped {
			report.Errors++
		}
	}
	return report
}
