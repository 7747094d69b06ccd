package model

import "time"

// RunSummary describes the outcome of one parse run
type RunSummary struct {
	RunID       string               `json:"run_id"`
	StartedAt   time.Time            `json:"started_at"`
	Duration    time.Duration        `json:"duration"`
	Documents   int                  `json:"documents"`             // Documents found in the input directory
	Queued      int                  `json:"queued"`                // Documents submitted for parsing
	Inserted    int                  `json:"inserted"`              // New records
	Updated     int                  `json:"updated"`               // Records overwritten by a targeted reparse
	Skipped     int                  `json:"skipped"`               // Already present and not targeted
	ByStatus    map[ParseStatus]int  `json:"by_status"`             // Parse status of processed documents
	Unparseable []string             `json:"unparseable,omitempty"` // Case numbers that produced no usable text
	Unparsed    map[string][]string  `json:"unparsed,omitempty"`    // Case number -> fields left unresolved
	Pruned      []string             `json:"pruned,omitempty"`      // Records removed because their document vanished
	Missing     []string             `json:"missing,omitempty"`     // Targeted case numbers with no document
	Candidates  CandidateSyncSummary `json:"candidates"`            // Curation queue changes
	Cancelled   bool                 `json:"cancelled,omitempty"`   // Run interrupted before the queue drained
}

// NewRunSummary returns an empty summary
func NewRunSummary(runID string, startedAt time.Time) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		StartedAt: startedAt,
		ByStatus:  make(map[ParseStatus]int),
		Unparsed:  make(map[string][]string),
	}
}

// CandidateSyncSummary reports how curation entries changed after a run
type CandidateSyncSummary struct {
	Added   []string `json:"added,omitempty"`   // New unclassified entries
	Removed []string `json:"removed,omitempty"` // Unclassified entries that no longer match
	Pending int      `json:"pending"`           // Entries still unclassified
}
