package tpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecentLeaderSlots_Estimate(t *testing.T) {
	window := []uint64{100, 101, 105, 102, 103, 104, 106, 107, 108, 109, 110, 111}
	r := NewRecentLeaderSlots(window[0])
	for _, s := range window[1:] {
		r.RecordSlot(s)
	}

	est, err := r.EstimatedCurrentSlot()
	require.NoError(t, err)

	// sorted median is 105, max recorded is 111
	assert.LessOrEqual(t, est, uint64(111+MaxSlotSkipDistance))
	assert.GreaterOrEqual(t, est, uint64(105))
	assert.Equal(t, uint64(111), est)
}

func TestRecentLeaderSlots_RejectsOutlier(t *testing.T) {
	r := NewRecentLeaderSlots(100)
	for s := uint64(101); s <= 110; s++ {
		r.RecordSlot(s)
	}
	r.RecordSlot(1_000_000)

	est, err := r.EstimatedCurrentSlot()
	require.NoError(t, err)
	assert.Equal(t, uint64(110), est)
}

func TestRecentLeaderSlots_AcceptsReasonableSkip(t *testing.T) {
	r := NewRecentLeaderSlots(100)
	r.RecordSlot(101)
	r.RecordSlot(140)

	// median 101, expected 102, max reasonable 150
	est, err := r.EstimatedCurrentSlot()
	require.NoError(t, err)
	assert.Equal(t, uint64(140), est)
}

func TestRecentLeaderSlots_DropsOldest(t *testing.T) {
	r := NewRecentLeaderSlots(1)
	for s := uint64(1000); s < 1000+MaxRecentSlots; s++ {
		r.RecordSlot(s)
	}

	assert.Equal(t, MaxRecentSlots, r.Len())
	est, err := r.EstimatedCurrentSlot()
	require.NoError(t, err)
	assert.Equal(t, uint64(1000+MaxRecentSlots-1), est)
}

func TestRecentLeaderSlots_SingleAndEmpty(t *testing.T) {
	est, err := NewRecentLeaderSlots(42).EstimatedCurrentSlot()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), est)

	_, err = (&RecentLeaderSlots{}).EstimatedCurrentSlot()
	assert.ErrorIs(t, err, ErrNoRecentSlots)
}
