package tpu

import (
	"errors"
	"sort"
	"sync"
)

const (
	// MaxSlotSkipDistance bounds how far ahead of the median a reported slot may be.
	MaxSlotSkipDistance = 48
	// MaxRecentSlots is the capacity of the recent-slot window.
	MaxRecentSlots = 12
)

var ErrNoRecentSlots = errors.New("no recent slots recorded")

// RecentLeaderSlots is a bounded window of recently observed slots used to
// estimate the current slot while rejecting outliers far in the future.
type RecentLeaderSlots struct {
	mu    sync.Mutex
	slots []uint64
}

func NewRecentLeaderSlots(currentSlot uint64) *RecentLeaderSlots {
	return &RecentLeaderSlots{slots: []uint64{currentSlot}}
}

// RecordSlot appends a slot, dropping the oldest entry when the window is full.
func (r *RecentLeaderSlots) RecordSlot(slot uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots = append(r.slots, slot)
	if len(r.slots) > MaxRecentSlots {
		r.slots = r.slots[len(r.slots)-MaxRecentSlots:]
	}
}

// Len returns the number of slots in the window.
func (r *RecentLeaderSlots) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// EstimatedCurrentSlot returns the largest recorded slot that is no further
// than MaxSlotSkipDistance past the slot expected from the median.
func (r *RecentLeaderSlots) EstimatedCurrentSlot() (uint64, error) {
	r.mu.Lock()
	sorted := append([]uint64(nil), r.slots...)
	r.mu.Unlock()

	if len(sorted) == 0 {
		return 0, ErrNoRecentSlots
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	maxIndex := len(sorted) - 1
	medianIndex := maxIndex / 2
	expected := sorted[medianIndex] + uint64(maxIndex-medianIndex)
	maxReasonable := expected + MaxSlotSkipDistance

	for i := maxIndex; i >= 0; i-- {
		if sorted[i] <= maxReasonable {
			return sorted[i], nil
		}
	}
	// unreachable: the median itself is always <= maxReasonable
	return sorted[medianIndex], nil
}
