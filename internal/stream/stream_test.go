package stream

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendInOrder(t *testing.T) {
	b := New()

	for i, content := range []string{"a", "b", "c"} {
		total, err := b.Append("p1", 1, i, content)
		require.NoError(t, err)
		assert.Equal(t, i+1, total)
	}

	assert.Equal(t, []string{"a", "b", "c"}, b.Tokens("p1", 1))
}

func TestAppendGapRejected(t *testing.T) {
	b := New()

	_, err := b.Append("p1", 1, 5, "x")
	require.ErrorIs(t, err, ErrSeqMismatch)
	assert.Empty(t, b.Tokens("p1", 1))
}

func TestAppendReplayRejected(t *testing.T) {
	b := New()

	_, err := b.Append("p1", 1, 0, "a")
	require.NoError(t, err)

	_, err = b.Append("p1", 1, 0, "a")
	require.ErrorIs(t, err, ErrSeqMismatch)
	assert.Equal(t, []string{"a"}, b.Tokens("p1", 1))
}

func TestStreamsAreIndependent(t *testing.T) {
	b := New()

	_, err := b.Append("p1", 1, 0, "a")
	require.NoError(t, err)
	_, err = b.Append("p2", 1, 0, "x")
	require.NoError(t, err)
	_, err = b.Append("p1", 2, 0, "other round")
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, b.Tokens("p1", 1))
	assert.Equal(t, []string{"x"}, b.Tokens("p2", 1))
	assert.Equal(t, []string{"other round"}, b.Tokens("p1", 2))
}

func TestSnapshotRound(t *testing.T) {
	b := New()

	_, _ = b.Append("p1", 1, 0, "a")
	_, _ = b.Append("p1", 1, 1, "b")
	_, _ = b.Append("p2", 1, 0, "x")
	_, _ = b.Append("p1", 2, 0, "ignored")

	snap := b.SnapshotRound(1)
	assert.Equal(t, map[string][]string{
		"p1": {"a", "b"},
		"p2": {"x"},
	}, snap)
}

func TestConcurrentAppendsDifferentKeys(t *testing.T) {
	b := New()
	const participants = 8
	const tokens = 200

	var wg sync.WaitGroup
	for p := 0; p < participants; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			id := fmt.Sprintf("p%d", p)
			for seq := 0; seq < tokens; seq++ {
				_, err := b.Append(id, 1, seq, fmt.Sprintf("t%d", seq))
				assert.NoError(t, err)
			}
		}(p)
	}
	wg.Wait()

	snap := b.SnapshotRound(1)
	require.Len(t, snap, participants)
	for _, stream := range snap {
		assert.Len(t, stream, tokens)
	}
}

func TestReset(t *testing.T) {
	b := New()
	_, _ = b.Append("p1", 1, 0, "a")

	b.Reset()

	assert.Empty(t, b.Tokens("p1", 1))
	total, err := b.Append("p1", 1, 0, "fresh")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}
