package messages

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"
)

func TestAddPreservesOrder(t *testing.T) {
	l := NewLog(zap.NewNop(), 0)
	l.Add("one", Info)
	l.Add("two", Warning)
	l.Add("three", ClientExit)

	all := l.All()
	require.Len(t, all, 3)
	assert.Equal(t, "one", all[0].Text)
	assert.Equal(t, "three", all[2].Text)
	assert.Equal(t, uint64(1), all[0].Seq)
	assert.Equal(t, uint64(3), all[2].Seq)
	assert.Equal(t, "client_exit", all[2].Level)
}

func TestSince(t *testing.T) {
	l := NewLog(nil, 0)
	for i := 0; i < 5; i++ {
		l.Add(fmt.Sprintf("m%d", i), Info)
	}
	got := l.Since(3)
	require.Len(t, got, 2)
	assert.Equal(t, "m3", got[0].Text)
	assert.Empty(t, l.Since(5))
}

func TestCapacityDropsOldest(t *testing.T) {
	l := NewLog(nil, 2)
	l.Add("a", Info)
	l.Add("b", Info)
	l.Add("c", Info)
	all := l.All()
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].Text)
	assert.Equal(t, uint64(3), all[1].Seq)
}

func TestCapacityKeepsSequenceAndMirror(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLog(zap.New(core), 2)
	l.Add("a", Info)
	l.Add("b", Info)
	l.Add("c", Info)

	got := l.Since(0)
	require.Len(t, got, 2)
	assert.Equal(t, []uint64{2, 3}, []uint64{got[0].Seq, got[1].Seq})
	assert.Len(t, logs.FilterMessage("a").All(), 1, "dropped entries stay in the process log")
}

func TestCount(t *testing.T) {
	l := NewLog(nil, 0)
	l.Add("x", Warning)
	l.Add("y", Warning)
	l.Add("z", Error)
	assert.Equal(t, 2, l.Count(Warning))
	assert.Equal(t, 1, l.Count(Error))
	assert.Equal(t, 0, l.Count(ClientDisconnect))
}

func TestMirrorsToZapBySeverity(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLog(zap.New(core), 0)
	l.Add("boom", Error)
	l.Add("slow", Warning)
	l.Add("bye", ClientDisconnect)

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[2].Level)
	assert.Equal(t, "client_disconnect", entries[2].ContextMap()["severity"])
}

func TestConcurrentAdd(t *testing.T) {
	l := NewLog(nil, 0)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Add("msg", Info)
			}
		}()
	}
	wg.Wait()
	all := l.All()
	require.Len(t, all, 500)
	for i, e := range all {
		assert.Equal(t, uint64(i+1), e.Seq)
	}
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "default", Default.String())
	assert.Equal(t, "info", Info.String())
	assert.Equal(t, "default", Severity(99).String())
}

// Property-based tests

func TestPropertyRetainsMostRecent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 20).Draw(t, "capacity")
		n := rapid.IntRange(0, 60).Draw(t, "n")
		l := NewLog(nil, capacity)
		for i := 0; i < n; i++ {
			l.Add("m", Info)
		}
		want := n
		if want > capacity {
			want = capacity
		}
		all := l.All()
		if len(all) != want {
			t.Fatalf("retained %d, want %d", len(all), want)
		}
		if want > 0 && all[len(all)-1].Seq != uint64(n) {
			t.Fatalf("last seq %d, want %d", all[len(all)-1].Seq, n)
		}
	})
}
