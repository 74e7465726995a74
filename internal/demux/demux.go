package demux

import (
	"sync"
	"time"

	"loom/internal/domain/chat"
	"loom/internal/logging"
	"loom/internal/utils/id"
)

// Demux accumulates subagent messages per thread, keyed by the tool-call id
// that spawned the subagent. Arenas are created lazily on first reference to
// a thread and retained for the life of the process, so switching back to an
// earlier thread finds its accumulation intact. Nothing is ever removed;
// entries are only appended or deduplicated by id.
type Demux struct {
	mu     sync.RWMutex
	arenas map[chat.ThreadID]map[string][]chat.Message
	seen   map[chat.ThreadID]map[string]struct{}
	logger logging.Logger
	now    func() time.Time
}

// New constructs an empty demultiplexer.
func New(logger logging.Logger) *Demux {
	return &Demux{
		arenas: make(map[chat.ThreadID]map[string][]chat.Message),
		seen:   make(map[chat.ThreadID]map[string]struct{}),
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
}

// Ingest classifies one stream event and, when it is subagent-scoped and
// carries messages, appends them to the thread's log for the originating
// tool-call id. Root-agent events (empty namespace) and events without a
// recognizable message payload are ignored. Never returns an error: the
// worst failure mode here is a stale display, not a crash.
func (d *Demux) Ingest(thread chat.ThreadID, event chat.StreamEvent) {
	key, ok := event.SubagentKey()
	if !ok {
		return
	}
	b, ok := extractBatch(event)
	if !ok {
		return
	}
	thread = thread.OrUnbound()

	d.mu.Lock()
	defer d.mu.Unlock()

	log := d.arenaLocked(thread)
	seen := d.seenLocked(thread)
	appended := 0
	for i, msg := range b.messages {
		if msg.ID == "" {
			msg.ID = id.SynthesizeMessageID(key, b.source, i, d.now())
		}
		seen[msg.ID] = struct{}{}
		if containsID(log[key], msg.ID) {
			continue // first arrival wins
		}
		log[key] = append(log[key], msg)
		appended++
	}
	if appended > 0 {
		d.logger.Debug("thread %s: +%d message(s) for subagent %s (total %d)",
			thread, appended, key, len(log[key]))
	}
}

// MessagesFor returns a copy of the accumulated log for one tool-call id,
// in arrival order. No ordering relation holds across different ids.
func (d *Demux) MessagesFor(thread chat.ThreadID, toolCallID string) []chat.Message {
	d.mu.RLock()
	defer d.mu.RUnlock()
	log, ok := d.arenas[thread.OrUnbound()]
	if !ok {
		return nil
	}
	msgs := log[toolCallID]
	if len(msgs) == 0 {
		return nil
	}
	out := make([]chat.Message, len(msgs))
	copy(out, msgs)
	return out
}

// SubagentIDs lists the tool-call ids that have accumulated messages for a
// thread.
func (d *Demux) SubagentIDs(thread chat.ThreadID) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	log, ok := d.arenas[thread.OrUnbound()]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(log))
	for key := range log {
		ids = append(ids, key)
	}
	return ids
}

// HasSeen reports whether a message id has been ingested for the thread.
// Root-level display uses this to exclude subagent-origin messages.
func (d *Demux) HasSeen(thread chat.ThreadID, messageID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	seen, ok := d.seen[thread.OrUnbound()]
	if !ok {
		return false
	}
	_, found := seen[messageID]
	return found
}

func (d *Demux) arenaLocked(thread chat.ThreadID) map[string][]chat.Message {
	log, ok := d.arenas[thread]
	if !ok {
		log = make(map[string][]chat.Message)
		d.arenas[thread] = log
	}
	return log
}

func (d *Demux) seenLocked(thread chat.ThreadID) map[string]struct{} {
	seen, ok := d.seen[thread]
	if !ok {
		seen = make(map[string]struct{})
		d.seen[thread] = seen
	}
	return seen
}

func containsID(msgs []chat.Message, msgID string) bool {
	for _, m := range msgs {
		if m.ID == msgID {
			return true
		}
	}
	return false
}
