package scheduler

import (
	"context"
	"time"

	"github.com/maskcam/maskcam/pkg/nn"
	"github.com/maskcam/maskcam/pkg/perfstats"
)

// runTask is the worker loop for one inference task. There is exactly
// one goroutine per task, which is what enforces the "never more than
// one in-flight inference per task" rule without extra bookkeeping.
func (s *Scheduler) runTask(task *taskState) {
	defer s.stopWG.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case <-task.wake:
		}
		// Drain the queue: on completion, if another frame is pending,
		// process it immediately (it is the freshest survivor of the
		// drop-oldest policy).
		for !s.mustStop.Load() {
			s.lock.Lock()
			if len(task.queue) == 0 {
				task.processing = false
				s.lock.Unlock()
				break
			}
			frame := task.queue[0]
			task.queue = task.queue[1:]
			task.processing = true
			s.lock.Unlock()

			s.processFrame(task, frame)
		}
	}
}

// processFrame runs one inference call and stores its result. Inference
// failure yields an empty-detections result for the frame index; the
// pipeline never stops for a bad frame.
func (s *Scheduler) processFrame(task *taskState, frame nn.FrameData) {
	start := time.Now()
	detections, err := task.predictor.Predict(context.Background(), frame.Bytes, task.threshold)
	elapsed := time.Now().Sub(start)
	perfstats.UpdateMovingAverage(&task.avgNSPerPredict, elapsed.Nanoseconds())
	if err != nil {
		detections = nil
		logErr := false
		s.lock.Lock()
		task.failures++
		if time.Now().Sub(task.lastErrAt) > 15*time.Second {
			task.lastErrAt = time.Now()
			logErr = true
		}
		s.lock.Unlock()
		if logErr {
			s.Log.Errorf("%v inference failed on frame %v: %v", task.task, frame.Index, err)
		}
	}
	result := &nn.TaskResult{
		Task:       task.task,
		Detections: detections,
		FrameIndex: frame.Index,
		PTS:        frame.PTS,
	}
	s.storeResult(task, result, elapsed)
}

// storeResult buffers a task result, fans in a CombinedFrame when every
// task has reported for that index, evicts stale buffers, and triggers
// an immediate display update if the combined frame is the one the
// display is waiting on.
func (s *Scheduler) storeResult(task *taskState, result *nn.TaskResult, elapsed time.Duration) {
	var update *nn.CombinedFrame

	s.lock.Lock()
	task.completed++
	task.latencies.Add(elapsed)
	s.results[task.task][result.FrameIndex] = result

	complete := true
	for t := nn.Task(0); t < nn.NumTasks; t++ {
		if _, ok := s.results[t][result.FrameIndex]; !ok {
			complete = false
			break
		}
	}
	if complete {
		combined := &nn.CombinedFrame{
			Segmentation: s.results[nn.TaskSegmentation][result.FrameIndex].Detections,
			Pose:         s.results[nn.TaskPose][result.FrameIndex].Detections,
			FrameIndex:   result.FrameIndex,
			PTS:          result.PTS,
		}
		s.combined[combined.FrameIndex] = combined
		if combined.FrameIndex > s.newestCombined {
			s.newestCombined = combined.FrameIndex
		}
		s.evictBelow(combined.FrameIndex - s.opts.MaxBufferedFrames)
		if combined.FrameIndex == s.currentIndex.Load() {
			s.displayed = combined
			update = combined
		}
	}
	s.lock.Unlock()

	if update != nil {
		s.notifyWatchers(update)
	}
}

// evictBelow removes all per-task and combined entries with an index
// below the floor. Called with s.lock held.
func (s *Scheduler) evictBelow(floor int64) {
	for t := nn.Task(0); t < nn.NumTasks; t++ {
		for index := range s.results[t] {
			if index < floor {
				delete(s.results[t], index)
			}
		}
	}
	for index := range s.combined {
		if index < floor {
			delete(s.combined, index)
		}
	}
}
