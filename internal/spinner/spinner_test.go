package spinner

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinnerDrawsAndClears(t *testing.T) {
	var out syncBuffer
	s := Start(&out, "computing m1")

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "computing m1")
	}, time.Second, 10*time.Millisecond)

	s.Update("still computing m1 (processing)")
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "(processing)")
	}, time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()

	got := out.String()
	assert.True(t, strings.HasSuffix(got, "\r"), "line should be cleared")
	// The clearing pass covers the widest line drawn.
	last := got[strings.LastIndex(got[:len(got)-1], "\r")+1 : len(got)-1]
	assert.Equal(t, strings.Repeat(" ", len("⠋ still computing m1 (processing)")-2), last)
}

func TestSpinnerStopBeforeFirstFrame(t *testing.T) {
	var out syncBuffer
	s := Start(&out, "quick")
	s.Stop()

	assert.NotContains(t, out.String(), "quick")
}

func TestEnabled(t *testing.T) {
	assert.False(t, Enabled(&bytes.Buffer{}))
}
