package scheduler

import (
	"math"
	"time"

	"github.com/maskcam/maskcam/pkg/nn"
)

// runDisplayClock advances the displayed frame index on a fixed
// interval, independent of task completion. A tick with no combined
// frame for the new index leaves the previous overlay in place; we
// would rather show a slightly stale overlay than flicker to nothing.
func (s *Scheduler) runDisplayClock() {
	defer s.stopWG.Done()
	ticker := time.NewTicker(s.opts.DisplayInterval)
	defer ticker.Stop()

	lastStats := time.Now()
	nStats := 0

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}

		index := s.currentIndex.Load() + 1
		if s.opts.TotalFrames > 0 {
			index = index % s.opts.TotalFrames
		}
		s.currentIndex.Store(index)

		var update *nn.CombinedFrame
		s.lock.Lock()
		if combined, ok := s.combined[index]; ok {
			s.displayed = combined
			update = combined
		}
		s.lock.Unlock()
		if update != nil {
			s.notifyWatchers(update)
		}

		// Progressively less frequent stats, same scheme as a long-lived
		// camera monitor: 10s, 15s, 22s, ... capped at an hour.
		interval := 10 * math.Pow(1.5, float64(nStats))
		interval = max(interval, 5)
		interval = min(interval, 3600)
		if time.Now().Sub(lastStats) > time.Duration(interval)*time.Second {
			nStats++
			s.logStats()
			lastStats = time.Now()
		}
	}
}

func (s *Scheduler) logStats() {
	snap := s.State()
	for _, task := range snap.Tasks {
		percent := float64(100)
		if task.Submitted > 0 {
			percent = 100 * float64(task.Completed) / float64(task.Submitted)
		}
		s.Log.Infof("%v: %.0f%% of offered frames processed (%v dropped, %v failed), %.1f ms per inference",
			task.Task, percent, task.Dropped, task.Failures, task.AvgPredictMS)
	}
	s.Log.Infof("Buffers: %v combined frames, newest %v, display at %v",
		snap.CombinedFrames, snap.NewestCombined, snap.CurrentIndex)
}

// RecentLatencies returns up to the last 64 inference durations for a
// task, oldest first. Used by the stats API.
func (s *Scheduler) RecentLatencies(t nn.Task) []time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()
	ring := &s.tasks[t].latencies
	out := make([]time.Duration, 0, ring.Len())
	for i := 0; i < ring.Len(); i++ {
		out = append(out, ring.Peek(i))
	}
	return out
}
