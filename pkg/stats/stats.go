package stats

import (
	"sync/atomic"
	"time"
)

// CrawlStats aggregates counters across a crawl run. Safe for concurrent
// use by dispatched tasks.
type CrawlStats struct {
	listed    atomic.Int64
	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	comments  atomic.Int64

	startTime time.Time
}

// New starts a stats record at the current time.
func New() *CrawlStats {
	return &CrawlStats{startTime: time.Now()}
}

func (s *CrawlStats) AddListed(n int)    { s.listed.Add(int64(n)) }
func (s *CrawlStats) AddProcessed(n int) { s.processed.Add(int64(n)) }
func (s *CrawlStats) AddSkipped(n int)   { s.skipped.Add(int64(n)) }
func (s *CrawlStats) AddFailed(n int)    { s.failed.Add(int64(n)) }
func (s *CrawlStats) AddComments(n int)  { s.comments.Add(int64(n)) }

// Snapshot is a point-in-time copy, shaped for the run metadata artifact.
type Snapshot struct {
	Listed    int64         `json:"listed"`
	Processed int64         `json:"processed"`
	Skipped   int64         `json:"skipped"`
	Failed    int64         `json:"failed"`
	Comments  int64         `json:"comments"`
	StartTime time.Time     `json:"start_time"`
	Elapsed   time.Duration `json:"-"`
	ElapsedS  float64       `json:"elapsed_seconds"`
}

// Snapshot captures the current counter values.
func (s *CrawlStats) Snapshot() Snapshot {
	elapsed := time.Since(s.startTime)
	return Snapshot{
		Listed:    s.listed.Load(),
		Processed: s.processed.Load(),
		Skipped:   s.skipped.Load(),
		Failed:    s.failed.Load(),
		Comments:  s.comments.Load(),
		StartTime: s.startTime,
		Elapsed:   elapsed,
		ElapsedS:  elapsed.Seconds(),
	}
}
