package pipeline

import (
	"sync"

	"github.com/trip2/videodetect/rimage"
)

// FrameQueue is a bounded FIFO between one producer and one consumer. When a push finds the queue
// longer than its max depth, the oldest frames are dropped first, so the queue holds at most
// maxDepth+1 frames.
type FrameQueue struct {
	mu       sync.Mutex
	frames   []*rimage.Frame
	maxDepth int
	dropped  uint64
	highMark int
}

// NewFrameQueue returns an empty queue. maxDepth must be at least 1.
func NewFrameQueue(maxDepth int) *FrameQueue {
	return &FrameQueue{frames: make([]*rimage.Frame, 0, maxDepth+1), maxDepth: maxDepth}
}

// Push appends frame, first dropping the oldest frames while the queue is over its max depth. It
// returns the dropped frames, oldest first.
func (q *FrameQueue) Push(frame *rimage.Frame) []*rimage.Frame {
	q.mu.Lock()
	defer q.mu.Unlock()

	var dropped []*rimage.Frame
	for len(q.frames) > q.maxDepth {
		dropped = append(dropped, q.frames[0])
		q.frames[0] = nil
		q.frames = q.frames[1:]
	}
	q.dropped += uint64(len(dropped))
	q.frames = append(q.frames, frame)
	if len(q.frames) > q.highMark {
		q.highMark = len(q.frames)
	}
	return dropped
}

// Pop removes and returns the oldest frame. It returns false when the queue is empty.
func (q *FrameQueue) Pop() (*rimage.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return nil, false
	}
	frame := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return frame, true
}

// Len returns the number of queued frames.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Dropped returns how many frames have been dropped in total.
func (q *FrameQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// HighWaterMark returns the largest length the queue has reached.
func (q *FrameQueue) HighWaterMark() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.highMark
}
