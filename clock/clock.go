// Package clock provides time-to-slot conversion.
//
// The slot clock bridges wall-clock time to the discrete slot-based time
// model of the beacon chain. Update verification bounds signature slots by
// it, and the follow loop ticks on it.
package clock

import (
	"time"

	"github.com/geanlabs/lantern/types"
)

// SlotClock converts wall-clock time to slots and periods.
// All time values are in seconds (Unix timestamps).
type SlotClock struct {
	GenesisTime uint64           // Unix timestamp when slot 0 began
	timeFunc    func() time.Time // Injectable for testing
}

// New creates a SlotClock with the given genesis time.
func New(genesisTime uint64) *SlotClock {
	return &SlotClock{
		GenesisTime: genesisTime,
		timeFunc:    time.Now,
	}
}

// NewWithTimeFunc creates a SlotClock with a custom time source (for testing).
func NewWithTimeFunc(genesisTime uint64, timeFunc func() time.Time) *SlotClock {
	return &SlotClock{
		GenesisTime: genesisTime,
		timeFunc:    timeFunc,
	}
}

// secondsSinceGenesis returns seconds elapsed since genesis (0 if before genesis).
func (c *SlotClock) secondsSinceGenesis() uint64 {
	now := uint64(c.timeFunc().Unix())
	if now < c.GenesisTime {
		return 0
	}
	return now - c.GenesisTime
}

// CurrentSlot returns the current slot number (0 if before genesis).
func (c *SlotClock) CurrentSlot() types.Slot {
	return types.Slot(c.secondsSinceGenesis() / types.SecondsPerSlot)
}

// CurrentPeriod returns the current sync-committee period.
func (c *SlotClock) CurrentPeriod() types.SyncCommitteePeriod {
	return c.CurrentSlot().SyncPeriod()
}

// SlotStartTime returns the Unix timestamp when a given slot starts.
func (c *SlotClock) SlotStartTime(slot types.Slot) uint64 {
	return c.GenesisTime + uint64(slot)*types.SecondsPerSlot
}

// UntilNextSlot returns the duration until the next slot boundary.
func (c *SlotClock) UntilNextSlot() time.Duration {
	now := c.timeFunc()
	if uint64(now.Unix()) < c.GenesisTime {
		return time.Duration(int64(c.GenesisTime)-now.Unix()) * time.Second
	}
	next := c.SlotStartTime(c.CurrentSlot() + 1)
	return time.Unix(int64(next), 0).Sub(now)
}

// IsBeforeGenesis returns true if current time is before genesis.
func (c *SlotClock) IsBeforeGenesis() bool {
	return uint64(c.timeFunc().Unix()) < c.GenesisTime
}
