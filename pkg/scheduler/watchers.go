package scheduler

import (
	"github.com/maskcam/maskcam/pkg/gen"
	"github.com/maskcam/maskcam/pkg/nn"
)

// SYNC-WATCHER-CHANNEL-SIZE
const WatcherChannelSize = 100

// AddWatcher registers for display updates: the channel receives every
// combined frame the moment it becomes the displayed overlay.
func (s *Scheduler) AddWatcher() chan *nn.CombinedFrame {
	s.watchersLock.Lock()
	defer s.watchersLock.Unlock()
	ch := make(chan *nn.CombinedFrame, WatcherChannelSize)
	s.watchers = append(s.watchers, ch)
	return ch
}

// RemoveWatcher unregisters a channel returned by AddWatcher.
func (s *Scheduler) RemoveWatcher(ch chan *nn.CombinedFrame) {
	s.watchersLock.Lock()
	defer s.watchersLock.Unlock()
	for i, w := range s.watchers {
		if w == ch {
			s.watchers = gen.DeleteFromSliceUnordered(s.watchers, i)
			return
		}
	}
	s.Log.Warnf("Scheduler.RemoveWatcher failed to find channel")
}

func (s *Scheduler) notifyWatchers(combined *nn.CombinedFrame) {
	s.watchersLock.RLock()
	for _, ch := range s.watchers {
		// SYNC-WATCHER-CHANNEL-SIZE
		if len(ch) >= cap(ch)*9/10 {
			// A stalled watcher must not stall the display pipeline, so we drop frames for it.
			s.Log.Warnf("Overlay watcher is falling behind. I am going to drop frames.")
		} else {
			ch <- combined
		}
	}
	s.watchersLock.RUnlock()
}
