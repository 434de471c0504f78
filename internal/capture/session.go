package capture

import (
	"errors"
	"sync"
	"time"
)

// ErrSessionStopped is returned when a frame is pushed into a session
// that has already been stopped.
var ErrSessionStopped = errors.New("capture session stopped")

// Frame is one still image pushed from the client's camera.
type Frame struct {
	Data        []byte
	ContentType string
	CapturedAt  time.Time
}

// Session owns the server-side half of one camera acquisition. Frames
// are pushed in by the transport layer and consumed by the decode loop.
// Stop is idempotent and closes the frame channel; frames arriving
// after Stop are rejected, never delivered.
type Session struct {
	id     string
	frames chan Frame

	mu      sync.Mutex
	stopped bool
}

func newSession(id string, buffer int) *Session {
	return &Session{
		id:     id,
		frames: make(chan Frame, buffer),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Frames returns the channel the decode loop consumes. The channel is
// closed when the session is stopped.
func (s *Session) Frames() <-chan Frame {
	return s.frames
}

// Push delivers a frame to the session. When the buffer is full the
// oldest pending frame is dropped; a stale frame is worthless once a
// newer one exists.
func (s *Session) Push(frame Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSessionStopped
	}

	for {
		select {
		case s.frames <- frame:
			return nil
		default:
			select {
			case <-s.frames:
			default:
			}
		}
	}
}

// Stop releases the session. Safe to call multiple times and on a
// session that never received a frame.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.frames)
}

// Active reports whether the session still accepts frames.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped
}
