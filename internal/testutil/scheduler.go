package testutil

import (
	"sync"
	"time"
)

// FakeScheduler is a manually advanced scheduler for tests. Callbacks run
// synchronously inside Advance, outside the scheduler lock.
type FakeScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	tasks []*fakeTask
}

type fakeTask struct {
	at       time.Duration
	interval time.Duration
	seq      int
	fn       func()
	done     bool
}

// NewFakeScheduler returns a scheduler positioned at time zero.
func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{}
}

func (f *FakeScheduler) Every(interval time.Duration, fn func()) func() {
	return f.add(interval, interval, fn)
}

func (f *FakeScheduler) After(delay time.Duration, fn func()) func() {
	return f.add(delay, 0, fn)
}

func (f *FakeScheduler) add(delay, interval time.Duration, fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	task := &fakeTask{at: f.now + delay, interval: interval, seq: f.seq, fn: fn}
	f.tasks = append(f.tasks, task)
	return func() {
		f.mu.Lock()
		task.done = true
		f.mu.Unlock()
	}
}

// Advance moves time forward by d, firing due callbacks in time order.
func (f *FakeScheduler) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now + d
	f.mu.Unlock()

	for {
		f.mu.Lock()
		task := f.nextLocked(target)
		if task == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = task.at
		if task.interval > 0 {
			task.at += task.interval
		} else {
			task.done = true
		}
		fn := task.fn
		f.mu.Unlock()
		fn()
	}
}

// Elapsed returns the fake time since creation.
func (f *FakeScheduler) Elapsed() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Pending returns the number of live tasks.
func (f *FakeScheduler) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tasks {
		if !t.done {
			n++
		}
	}
	return n
}

func (f *FakeScheduler) nextLocked(target time.Duration) *fakeTask {
	var next *fakeTask
	live := f.tasks[:0]
	for _, t := range f.tasks {
		if t.done {
			continue
		}
		live = append(live, t)
		if t.at > target {
			continue
		}
		if next == nil || t.at < next.at || (t.at == next.at && t.seq < next.seq) {
			next = t
		}
	}
	f.tasks = live
	return next
}

// Now returns the Unix epoch shifted by the fake elapsed time.
func (f *FakeScheduler) Now() time.Time {
	return time.Unix(0, 0).Add(f.Elapsed())
}
