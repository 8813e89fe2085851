// Package metrics reports counters and timings to statsd.
package metrics

import (
	"sync"
	"time"
)

const (
	AuditFailure            = "cabinetsync.audit.failure"
	IntegrityFailure        = "cabinetsync.integrity.failure"
	BlobCompensationFailure = "cabinetsync.blob.compensation_failure"
	ShareCount              = "cabinetsync.share.count"
	OperationDurationMillis = "cabinetsync.operation.duration"
)

type Reporter interface {
	Count(name string, value int64, tags map[string]string, rate float64) error
	Gauge(name string, value float64, tags map[string]string, rate float64) error
	TimeInMilliseconds(name string, value float64, tags map[string]string, rate float64) error
	Close() error
}

type Noop struct{}

func (Noop) Count(string, int64, map[string]string, float64) error                { return nil }
func (Noop) Gauge(string, float64, map[string]string, float64) error              { return nil }
func (Noop) TimeInMilliseconds(string, float64, map[string]string, float64) error { return nil }
func (Noop) Close() error                                                         { return nil }

// Timer measures a block of code.
//
//	t := metrics.Time(r, metrics.OperationDurationMillis, map[string]string{"op": "share"})
//	defer t.Done()
type Timer struct {
	r     Reporter
	name  string
	tags  map[string]string
	start time.Time
}

func Time(r Reporter, name string, tags map[string]string) *Timer {
	return &Timer{r: r, name: name, tags: tags, start: time.Now()}
}

func (t *Timer) Done() {
	_ = t.r.TimeInMilliseconds(t.name, float64(time.Since(t.start))/float64(time.Millisecond), t.tags, 1.0)
}

// Sample is one recorded count.
type Sample struct {
	Name  string
	Value int64
	Tags  map[string]string
}

// Recorder keeps counts in memory. It is meant for tests.
type Recorder struct {
	Noop

	mu     sync.Mutex
	counts []Sample
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Count(name string, value int64, tags map[string]string, _ float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = append(r.counts, Sample{Name: name, Value: value, Tags: tags})
	return nil
}

// Total sums all counts recorded under name.
func (r *Recorder) Total(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.counts {
		if s.Name == name {
			n += s.Value
		}
	}
	return n
}

func (r *Recorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sample(nil), r.counts...)
}
