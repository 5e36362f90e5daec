package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Outcome records how a single document fared during a run. Workers
// produce one Outcome each; the pipeline reduces them into RunStats
// after all workers finish, so no counter is shared across goroutines.
type Outcome struct {
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
	Reason   string `json:"reason,omitempty"`
}

// Failed reports whether the document was rejected.
func (o Outcome) Failed() bool {
	return o.Reason != ""
}

// DocumentFailure names a rejected document and why it was rejected.
type DocumentFailure struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// RunStats collects statistics for a full ingestion run.
type RunStats struct {
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at,omitempty"`
	Duration    time.Duration     `json:"duration_ms,omitempty"`
	Processed   int               `json:"processed"`
	Succeeded   int               `json:"succeeded"`
	Failed      int               `json:"failed"`
	ChunksAdded int               `json:"chunks_added"`
	Failures    []DocumentFailure `json:"failures,omitempty"`
}

// NewRunStats starts tracking an ingestion run.
func NewRunStats() *RunStats {
	return &RunStats{StartedAt: time.Now()}
}

// Reduce folds per-document outcomes into the run totals.
func (s *RunStats) Reduce(outcomes []Outcome) {
	for _, o := range outcomes {
		s.Processed++
		if o.Failed() {
			s.Failed++
			s.Failures = append(s.Failures, DocumentFailure{Filename: o.Filename, Reason: o.Reason})
			continue
		}
		s.Succeeded++
		s.ChunksAdded += o.Chunks
	}
}

// Finish marks the run as complete.
func (s *RunStats) Finish() {
	s.FinishedAt = time.Now()
	s.Duration = s.FinishedAt.Sub(s.StartedAt)
}

// PrintSummary writes a human-readable summary.
func (s *RunStats) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║       DOCQUERY INGESTION REPORT      ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:     %-22s║\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "║ Documents:    %-22d║\n", s.Processed)
	fmt.Fprintf(w, "║ Succeeded:    %-22d║\n", s.Succeeded)
	fmt.Fprintf(w, "║ Failed:       %-22d║\n", s.Failed)
	fmt.Fprintf(w, "║ Chunks Added: %-22d║\n", s.ChunksAdded)
	if len(s.Failures) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ FAILURES\n")
		for _, f := range s.Failures {
			fmt.Fprintf(w, "║   • %s: %s\n", f.Filename, f.Reason)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the stats as formatted JSON.
func (s *RunStats) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
