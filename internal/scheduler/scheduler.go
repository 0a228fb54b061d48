// Package scheduler implements the schedule-trigger boundary: given a
// schedule specification and a callback, it invokes the callback at each
// occurrence. Occurrences are fire-and-forget: each one runs in its own
// goroutine, so an occurrence that outlives the schedule interval never
// blocks the next one.
package scheduler

import (
	"strconv"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps a cron runner. Schedule specs accept the standard
// five-field cron syntax as well as "@every <duration>" intervals.
type Scheduler struct {
	cron *cron.Cron

	mu sync.Mutex
	wg sync.WaitGroup
}

// New creates and starts a Scheduler.
func New() *Scheduler {
	c := cron.New()
	c.Start()
	return &Scheduler{cron: c}
}

// Handle identifies one installed schedule.
type Handle struct {
	id   cron.EntryID
	s    *Scheduler
	once sync.Once
}

// ID returns an opaque identifier for the schedule.
func (h *Handle) ID() string {
	return strconv.Itoa(int(h.id))
}

// Stop removes the schedule. In-flight occurrences are allowed to
// finish. It is idempotent.
func (h *Handle) Stop() {
	h.once.Do(func() {
		h.s.cron.Remove(h.id)
	})
}

// Schedule installs fn to run at each occurrence of spec. It returns an
// error if the spec does not parse.
func (s *Scheduler) Schedule(spec string, fn func()) (*Handle, error) {
	id, err := s.cron.AddFunc(spec, func() {
		s.wg.Add(1)
		defer s.wg.Done()
		fn()
	})
	if err != nil {
		return nil, err
	}
	return &Handle{id: id, s: s}, nil
}

// Close stops the cron runner and waits for occurrences already in
// flight to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.wg.Wait()
}
