package source

import (
	"sync"

	"voicecmd/internal/domain"
)

// queueSize bounds every transcript source's event channel. When the
// orchestrator falls behind, the oldest pending event is dropped so the
// freshest speech is preserved.
const queueSize = 16

type eventQueue struct {
	mu     sync.Mutex
	ch     chan domain.TranscriptEvent
	closed bool
}

func newEventQueue() *eventQueue {
	return &eventQueue{ch: make(chan domain.TranscriptEvent, queueSize)}
}

// publish enqueues an event, dropping the oldest pending one when the queue
// is full. It reports false once the queue is closed: late producers (a
// websocket frame racing Stop, a poll loop finishing its last file) must not
// admit events after shutdown begins.
func (q *eventQueue) publish(event domain.TranscriptEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	for {
		select {
		case q.ch <- event:
			return true
		default:
			select {
			case <-q.ch:
			default:
			}
		}
	}
}

func (q *eventQueue) events() <-chan domain.TranscriptEvent {
	return q.ch
}

func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
