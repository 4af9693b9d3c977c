package jitter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecorderPerfectPeriod(t *testing.T) {
	r := New("t0", 10, 16)
	for _, at := range []uint64{5, 15, 25, 35} {
		r.Mark(at)
	}

	s := r.Stats()
	require.Equal(t, 3, s.Count)
	require.Zero(t, s.Mean)
	require.Zero(t, s.StdDev)
	require.Zero(t, s.Jitter)
}

func TestRecorderJitter(t *testing.T) {
	r := New("t0", 10, 16)
	// 间隔 12, 8, 10 => 偏差 +2, -2, 0
	for _, at := range []uint64{0, 12, 20, 30} {
		r.Mark(at)
	}

	s := r.Stats()
	require.Equal(t, 3, s.Count)
	require.InDelta(t, 0, s.Mean, 1e-9)
	require.InDelta(t, 2, s.StdDev, 1e-9)
	require.Equal(t, -2.0, s.Min)
	require.Equal(t, 2.0, s.Max)
	require.Equal(t, 2.0, s.Jitter)
	require.Contains(t, s.String(), "jitter 2")
}

func TestRecorderCapacity(t *testing.T) {
	r := New("t0", 1, 2)
	for at := uint64(0); at < 5; at++ {
		r.Mark(at)
	}

	s := r.Stats()
	require.Equal(t, 2, s.Count)
	require.Equal(t, uint64(2), s.Dropped)

	r.Reset()
	require.Zero(t, r.Stats().Count)
	r.Mark(100)
	require.Zero(t, r.Stats().Count, "first mark after reset only sets the reference")
}

func TestRecorderEmpty(t *testing.T) {
	s := New("idle", 10, 4).Stats()
	require.Zero(t, s.Count)
	require.Zero(t, s.Jitter)
}
