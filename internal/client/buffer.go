package client

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/afroash/ledger-monitor/internal/models"
)

// Frame is one message received from the snapshot stream.
type Frame struct {
	Type       models.MessageType
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// Snapshot decodes a snapshot frame.
func (f Frame) Snapshot() (SnapshotView, error) {
	var v SnapshotView
	if f.Type != models.MessageTypeSnapshot {
		return v, fmt.Errorf("frame type %s is not a snapshot", f.Type)
	}
	err := json.Unmarshal(f.Payload, &v)
	return v, err
}

// FrameBuffer is a thread-safe bounded history of received frames
type FrameBuffer struct {
	frames     []Frame
	capacity   int
	dropOldest bool
	mutex      sync.RWMutex
	stats      BufferStats
}

// BufferStats tracks buffer usage statistics
type BufferStats struct {
	TotalPushed   int64
	TotalDropped  int64
	HighWaterMark int
	LastPushTime  time.Time
	LastDropTime  time.Time
}

// NewFrameBuffer creates a buffer holding at most capacity frames
func NewFrameBuffer(capacity int, dropOldest bool) *FrameBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameBuffer{
		frames:     make([]Frame, 0, capacity),
		capacity:   capacity,
		dropOldest: dropOldest,
	}
}

// Push adds a frame. It returns false when the buffer is full and keeps
// its oldest frames.
func (fb *FrameBuffer) Push(f Frame) bool {
	fb.mutex.Lock()
	defer fb.mutex.Unlock()

	if len(fb.frames) >= fb.capacity {
		fb.stats.TotalDropped++
		fb.stats.LastDropTime = time.Now()
		if !fb.dropOldest {
			return false
		}
		fb.frames = append(fb.frames[:0], fb.frames[1:]...)
	}
	fb.frames = append(fb.frames, f)
	fb.stats.TotalPushed++
	fb.stats.LastPushTime = time.Now()

	if len(fb.frames) > fb.stats.HighWaterMark {
		fb.stats.HighWaterMark = len(fb.frames)
	}
	return true
}

// PopBatch removes and returns up to n frames, oldest first
func (fb *FrameBuffer) PopBatch(n int) []Frame {
	fb.mutex.Lock()
	defer fb.mutex.Unlock()

	count := min(n, len(fb.frames))
	if count <= 0 {
		return nil
	}
	result := make([]Frame, count)
	copy(result, fb.frames[:count])
	fb.frames = append(fb.frames[:0], fb.frames[count:]...)
	return result
}

// Peek returns up to n frames without removing them
func (fb *FrameBuffer) Peek(n int) []Frame {
	fb.mutex.RLock()
	defer fb.mutex.RUnlock()

	count := min(n, len(fb.frames))
	if count <= 0 {
		return nil
	}
	result := make([]Frame, count)
	copy(result, fb.frames[:count])
	return result
}

// Latest returns the newest frame of the given type
func (fb *FrameBuffer) Latest(t models.MessageType) (Frame, bool) {
	fb.mutex.RLock()
	defer fb.mutex.RUnlock()

	for i := len(fb.frames) - 1; i >= 0; i-- {
		if fb.frames[i].Type == t {
			return fb.frames[i], true
		}
	}
	return Frame{}, false
}

// Size returns the current number of frames
func (fb *FrameBuffer) Size() int {
	fb.mutex.RLock()
	defer fb.mutex.RUnlock()
	return len(fb.frames)
}

// IsFull returns true if buffer is at capacity
func (fb *FrameBuffer) IsFull() bool {
	fb.mutex.RLock()
	defer fb.mutex.RUnlock()
	return len(fb.frames) >= fb.capacity
}

// Capacity returns the maximum capacity of the buffer
func (fb *FrameBuffer) Capacity() int {
	return fb.capacity
}

// Stats returns a copy of current buffer statistics
func (fb *FrameBuffer) Stats() BufferStats {
	fb.mutex.RLock()
	defer fb.mutex.RUnlock()
	return fb.stats
}

// String returns something like "Buffer[12/64, dropped: 5, mode: drop-oldest]"
func (fb *FrameBuffer) String() string {
	fb.mutex.RLock()
	defer fb.mutex.RUnlock()

	mode := "drop-newest"
	if fb.dropOldest {
		mode = "drop-oldest"
	}
	return fmt.Sprintf("Buffer[%d/%d, dropped: %d, mode: %s]",
		len(fb.frames),
		fb.capacity,
		fb.stats.TotalDropped,
		mode,
	)
}
