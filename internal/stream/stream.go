package stream

import (
	"errors"
	"fmt"
	"sync"
)

// ErrSeqMismatch is returned when a token's sequence number is not the next
// expected index for its (participant, round) stream.
var ErrSeqMismatch = errors.New("sequence mismatch")

type key struct {
	participantID string
	round         int
}

// entry is one (participant, round) stream. Each entry carries its own lock
// so appends for different keys never serialize on each other.
type entry struct {
	mu     sync.Mutex
	tokens []string
}

// Buffer holds the ordered token streams for all participants and rounds.
// Accepted sequence numbers are contiguous starting at 0; anything else is
// rejected without mutating the stream.
type Buffer struct {
	mu      sync.RWMutex // guards the entries map, not the streams
	entries map[key]*entry
}

func New() *Buffer {
	return &Buffer{entries: make(map[key]*entry)}
}

func (b *Buffer) entryFor(k key) *entry {
	b.mu.RLock()
	e, ok := b.entries[k]
	b.mu.RUnlock()
	if ok {
		return e
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[k]; ok {
		return e
	}
	e = &entry{}
	b.entries[k] = e
	return e
}

// Append accepts content only when seq equals the current stream length.
// It returns the total token count after the append. The seq check and the
// append are a single step under the entry lock.
func (b *Buffer) Append(participantID string, round, seq int, content string) (int, error) {
	e := b.entryFor(key{participantID: participantID, round: round})

	e.mu.Lock()
	defer e.mu.Unlock()

	if seq != len(e.tokens) {
		return len(e.tokens), fmt.Errorf("%w: expected %d, got %d", ErrSeqMismatch, len(e.tokens), seq)
	}
	e.tokens = append(e.tokens, content)
	return len(e.tokens), nil
}

// Tokens returns a copy of one participant's stream for a round.
func (b *Buffer) Tokens(participantID string, round int) []string {
	b.mu.RLock()
	e, ok := b.entries[key{participantID: participantID, round: round}]
	b.mu.RUnlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.tokens))
	copy(out, e.tokens)
	return out
}

// SnapshotRound returns every participant's stream for a round. Each stream
// is copied under its entry lock, so no partial fragment is ever visible.
func (b *Buffer) SnapshotRound(round int) map[string][]string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string][]string)
	for k, e := range b.entries {
		if k.round != round {
			continue
		}
		e.mu.Lock()
		tokens := make([]string, len(e.tokens))
		copy(tokens, e.tokens)
		e.mu.Unlock()
		out[k.participantID] = tokens
	}
	return out
}

// Reset drops all buffered streams. Called when a session ends.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[key]*entry)
}
