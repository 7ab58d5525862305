// Package scheduler decouples a fixed-rate frame display from the
// variable latency of the inference tasks that annotate those frames.
//
// Incoming frames are offered to each task's queue, decimated by a
// per-task stride and bounded by a drop-oldest policy. Task results are
// buffered per frame index and fanned in to a CombinedFrame once every
// task has reported for that index. The display advances on its own
// fixed-interval clock and shows a combined frame only when one exists
// for the current index, otherwise it retains the previous overlay.
package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmharper/ringbuffer"
	"github.com/cyclopcam/logs"
	"github.com/maskcam/maskcam/pkg/nn"
)

type Options struct {
	Strides             [nn.NumTasks]int64   // Accept only frames with index % stride == 0 (0 or 1 = every frame)
	ConfidenceThreshold [nn.NumTasks]float32 // Per-task threshold passed to Predict
	QueueCapacity       int                  // Pending frames per task. When exceeded, pending frames are dropped in favor of the newest.
	MaxBufferedFrames   int64                // Buffered results older than newest-MaxBufferedFrames are evicted
	DisplayInterval     time.Duration        // Display clock tick
	TotalFrames         int64                // Display index wraps modulo this (0 = free running, no wrap)
}

func DefaultOptions() Options {
	opts := Options{
		QueueCapacity:     1,
		MaxBufferedFrames: 6,
		DisplayInterval:   33 * time.Millisecond,
	}
	for t := nn.Task(0); t < nn.NumTasks; t++ {
		opts.Strides[t] = 1
		opts.ConfidenceThreshold[t] = nn.DefaultConfidenceThreshold
	}
	return opts
}

// Per-task queue + processing state. All fields are guarded by
// Scheduler.lock; inference itself runs outside the lock.
type taskState struct {
	task       nn.Task
	predictor  nn.Predictor
	stride     int64
	threshold  float32
	queue      []nn.FrameData // Pending frames, oldest first, bounded by QueueCapacity
	processing bool           // A task never has more than one in-flight inference
	wake       chan struct{}  // Nudges the task worker, capacity 1

	// Stats
	submitted       int64 // Frames offered to this task (post-stride)
	dropped         int64 // Frames discarded by the drop-oldest policy
	completed       int64
	failures        int64
	lastErrAt       time.Time
	avgNSPerPredict atomic.Int64
	latencies       ringbuffer.RingP[time.Duration]
}

type Scheduler struct {
	Log  logs.Log
	opts Options

	lock     sync.Mutex // Guards tasks' queues, result maps, combined map, displayed
	tasks    [nn.NumTasks]*taskState
	results  [nn.NumTasks]map[int64]*nn.TaskResult
	combined map[int64]*nn.CombinedFrame

	newestCombined int64
	currentIndex   atomic.Int64 // Index the display clock is currently on
	displayed      *nn.CombinedFrame

	watchersLock sync.RWMutex
	watchers     []chan *nn.CombinedFrame

	mustStop atomic.Bool
	stopWG   sync.WaitGroup
	stopCh   chan struct{}
	started  bool
}

// New creates a scheduler with one predictor per task. The caller owns
// the scheduler's lifetime; there is no shared global instance, so
// tests can run several side by side.
func New(logger logs.Log, segmentation, pose nn.Predictor, opts Options) *Scheduler {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 1
	}
	if opts.MaxBufferedFrames <= 0 {
		opts.MaxBufferedFrames = 6
	}
	if opts.DisplayInterval <= 0 {
		opts.DisplayInterval = 33 * time.Millisecond
	}
	s := &Scheduler{
		Log:      logger,
		opts:     opts,
		combined: map[int64]*nn.CombinedFrame{},
		stopCh:   make(chan struct{}),
	}
	s.currentIndex.Store(-1)
	predictors := [nn.NumTasks]nn.Predictor{segmentation, pose}
	for t := nn.Task(0); t < nn.NumTasks; t++ {
		stride := opts.Strides[t]
		if stride <= 0 {
			stride = 1
		}
		threshold := opts.ConfidenceThreshold[t]
		if threshold <= 0 {
			threshold = nn.DefaultConfidenceThreshold
		}
		s.tasks[t] = &taskState{
			task:      t,
			predictor: predictors[t],
			stride:    stride,
			threshold: threshold,
			wake:      make(chan struct{}, 1),
			latencies: ringbuffer.NewRingP[time.Duration](64),
		}
		s.results[t] = map[int64]*nn.TaskResult{}
	}
	return s
}

// Start spawns one worker goroutine per task plus the display clock.
func (s *Scheduler) Start() {
	if s.started {
		return
	}
	s.started = true
	for t := nn.Task(0); t < nn.NumTasks; t++ {
		s.stopWG.Add(1)
		go s.runTask(s.tasks[t])
	}
	s.stopWG.Add(1)
	go s.runDisplayClock()
}

// Stop shuts down the workers and clock. In-flight inference calls are
// allowed to complete; their results are stored and then immediately
// eligible for eviction.
func (s *Scheduler) Stop() {
	if !s.started || s.mustStop.Load() {
		return
	}
	s.mustStop.Store(true)
	close(s.stopCh)
	s.stopWG.Wait()
	s.Log.Infof("Scheduler stopped")
}

// Submit offers a frame to every task queue. Never blocks: a full queue
// is cleared in favor of the newest frame (keep-freshest policy). Each
// accepting task gets its own copy of the frame bytes.
func (s *Scheduler) Submit(frame nn.FrameData) {
	s.lock.Lock()
	accepted := []*taskState{}
	for _, task := range s.tasks {
		if frame.Index%task.stride != 0 {
			continue
		}
		task.submitted++
		if len(task.queue) >= s.opts.QueueCapacity {
			task.dropped += int64(len(task.queue))
			task.queue = task.queue[:0]
		}
		task.queue = append(task.queue, frame.Clone())
		accepted = append(accepted, task)
	}
	s.lock.Unlock()
	for _, task := range accepted {
		select {
		case task.wake <- struct{}{}:
		default:
		}
	}
}

// CurrentIndex is the display clock's position.
func (s *Scheduler) CurrentIndex() int64 {
	return s.currentIndex.Load()
}

// Displayed returns the combined frame the display currently shows.
// May be stale relative to CurrentIndex: a missing combined frame
// retains the previous overlay rather than blanking.
func (s *Scheduler) Displayed() *nn.CombinedFrame {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.displayed
}

type TaskSnapshot struct {
	Task          string  `json:"task"`
	Submitted     int64   `json:"submitted"`
	Dropped       int64   `json:"dropped"`
	Completed     int64   `json:"completed"`
	Failures      int64   `json:"failures"`
	Queued        int     `json:"queued"`
	Processing    bool    `json:"processing"`
	AvgPredictMS  float64 `json:"avgPredictMS"`
	BufferedItems int     `json:"bufferedItems"`
}

type Snapshot struct {
	Tasks          []TaskSnapshot `json:"tasks"`
	CombinedFrames int            `json:"combinedFrames"`
	NewestCombined int64          `json:"newestCombined"`
	CurrentIndex   int64          `json:"currentIndex"`
}

// State reports per-task and buffer statistics.
func (s *Scheduler) State() Snapshot {
	s.lock.Lock()
	defer s.lock.Unlock()
	snap := Snapshot{
		CombinedFrames: len(s.combined),
		NewestCombined: s.newestCombined,
		CurrentIndex:   s.currentIndex.Load(),
	}
	for t := nn.Task(0); t < nn.NumTasks; t++ {
		task := s.tasks[t]
		snap.Tasks = append(snap.Tasks, TaskSnapshot{
			Task:          t.String(),
			Submitted:     task.submitted,
			Dropped:       task.dropped,
			Completed:     task.completed,
			Failures:      task.failures,
			Queued:        len(task.queue),
			Processing:    task.processing,
			AvgPredictMS:  float64(task.avgNSPerPredict.Load()) / 1e6,
			BufferedItems: len(s.results[t]),
		})
	}
	return snap
}

// queuedIndices is test support: the indices currently pending for a task.
func (s *Scheduler) queuedIndices(t nn.Task) []int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	indices := []int64{}
	for _, f := range s.tasks[t].queue {
		indices = append(indices, f.Index)
	}
	return indices
}
