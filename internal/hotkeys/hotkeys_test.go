package hotkeys

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_RecordAndTop(t *testing.T) {
	tr := New(10, 0)
	defer tr.Close()

	for i := 0; i < 100; i++ {
		tr.Record("hot")
	}
	for i := 0; i < 50; i++ {
		tr.Record("warm")
	}
	tr.Record("cold")

	top := tr.Top(3)
	require.Len(t, top, 3)
	assert.Equal(t, Entry{Key: "hot", Count: 100}, top[0])
	assert.Equal(t, Entry{Key: "warm", Count: 50}, top[1])
	assert.Equal(t, Entry{Key: "cold", Count: 1}, top[2])
}

func TestTracker_RecordMultipleKeys(t *testing.T) {
	tr := New(10, 0)
	defer tr.Close()

	tr.Record("a", "b", "a")
	tr.Record()

	top := tr.Top(0)
	require.Len(t, top, 2)
	assert.Equal(t, Entry{Key: "a", Count: 2}, top[0])
}

func TestTracker_TopN_Limit(t *testing.T) {
	tr := New(2, 0)
	defer tr.Close()

	tr.Record("a")
	tr.Record("b")
	tr.Record("c")

	assert.Len(t, tr.Top(2), 2)
	assert.Len(t, tr.Top(0), 2)
}

func TestTracker_Reset(t *testing.T) {
	tr := New(10, 0)
	defer tr.Close()

	tr.Record("x")
	tr.Reset()
	assert.Equal(t, 0, tr.Size())
}

func TestTracker_Decay(t *testing.T) {
	tr := New(10, 0)
	defer tr.Close()

	for i := 0; i < 100; i++ {
		tr.Record("key")
	}
	tr.Record("once")
	tr.decay()

	top := tr.Top(10)
	require.Len(t, top, 1)
	assert.Equal(t, Entry{Key: "key", Count: 50}, top[0])
}

func TestTracker_DecayLoop(t *testing.T) {
	tr := New(10, 20*time.Millisecond)
	defer tr.Close()

	tr.Record("key")
	assert.Eventually(t, func() bool { return tr.Size() == 0 }, time.Second, 10*time.Millisecond)
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	tr := New(10, 0)
	defer tr.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Record("concurrent")
			}
		}()
	}
	wg.Wait()

	top := tr.Top(1)
	require.Len(t, top, 1)
	assert.Equal(t, int64(1000), top[0].Count)
}
