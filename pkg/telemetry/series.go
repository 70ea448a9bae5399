package telemetry

import (
	"sort"
	"sync"
	"time"

	"github.com/celltrace/celltrace-go/pkg/candb"
	"github.com/celltrace/celltrace-go/pkg/frame"
)

// Sample is one timestamped reading of a signal.
type Sample struct {
	Time  time.Time
	Value float64
}

// Series keeps a bounded history of signal values for trend displays.
// When a signal's buffer is full the oldest sample is dropped.
// The zero value is not usable; create with NewSeries.
type Series struct {
	mu       sync.RWMutex
	capacity int
	track    map[string]bool
	trackAll bool
	data     map[string]*ring
}

var _ Handler = (*Series)(nil)

// NewSeries creates a Series keeping up to capacity samples per signal.
// With no signal names given, every decoded signal is tracked; otherwise
// only the named signals are.
func NewSeries(capacity int, signals ...string) *Series {
	if capacity <= 0 {
		capacity = 600
	}
	s := &Series{
		capacity: capacity,
		trackAll: len(signals) == 0,
		track:    make(map[string]bool, len(signals)),
		data:     make(map[string]*ring),
	}
	for _, name := range signals {
		s.track[name] = true
	}
	return s
}

// HandleDecoded records all tracked signals from a decoded frame.
func (s *Series) HandleDecoded(f frame.Frame, m *candb.Message, values map[string]frame.Value) {
	at := f.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	for name, v := range values {
		if !s.trackAll && !s.track[name] {
			continue
		}
		s.Record(name, at, v.Physical)
	}
}

// Record appends one sample for a signal.
func (s *Series) Record(signal string, at time.Time, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data[signal]
	if !ok {
		r = newRing(s.capacity)
		s.data[signal] = r
	}
	r.push(Sample{Time: at, Value: value})
}

// Latest returns the most recent sample of a signal.
func (s *Series) Latest(signal string) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data[signal]
	if !ok || r.count == 0 {
		return Sample{}, false
	}
	return r.last(), true
}

// Samples returns the recorded history of a signal, oldest first.
func (s *Series) Samples(signal string) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data[signal]
	if !ok {
		return nil
	}
	return r.ordered()
}

// Downsample returns the history of a signal reduced to at most max
// samples, oldest first. Samples are picked evenly across the history
// so trends survive the reduction.
func (s *Series) Downsample(signal string, max int) []Sample {
	all := s.Samples(signal)
	if max <= 0 || len(all) <= max {
		return all
	}
	out := make([]Sample, max)
	step := float64(len(all)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		out[i] = all[int(float64(i)*step+0.5)]
	}
	return out
}

// Signals returns the names of all signals with recorded samples,
// sorted.
func (s *Series) Signals() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ring is a fixed-capacity circular sample buffer.
type ring struct {
	buf   []Sample
	head  int
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Sample, capacity)}
}

func (r *ring) push(s Sample) {
	r.buf[(r.head+r.count)%len(r.buf)] = s
	if r.count < len(r.buf) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.buf)
	}
}

func (r *ring) last() Sample {
	return r.buf[(r.head+r.count-1)%len(r.buf)]
}

func (r *ring) ordered() []Sample {
	out := make([]Sample, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
