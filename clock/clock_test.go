package clock

import (
	"testing"
	"time"

	"github.com/geanlabs/lantern/types"
)

const genesis = 1606824023 // mainnet genesis, an arbitrary anchor for tests

// fixedClock pins the clock to genesis + offset seconds.
func fixedClock(offset int64) *SlotClock {
	at := time.Unix(int64(genesis)+offset, 0)
	return NewWithTimeFunc(genesis, func() time.Time { return at })
}

func TestCurrentSlot(t *testing.T) {
	tests := []struct {
		name   string
		offset int64
		want   types.Slot
	}{
		{"at genesis", 0, 0},
		{"mid first slot", 11, 0},
		{"second slot", 12, 1},
		{"just before boundary", 23, 1},
		{"before genesis", -100, 0},
		{"one period", 12 * 8192, 8192},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fixedClock(tt.offset).CurrentSlot(); got != tt.want {
				t.Errorf("CurrentSlot() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCurrentPeriod(t *testing.T) {
	tests := []struct {
		name   string
		offset int64
		want   types.SyncCommitteePeriod
	}{
		{"genesis", 0, 0},
		{"last slot of period 0", 12 * 8191, 0},
		{"first slot of period 1", 12 * 8192, 1},
		{"period 3", 12 * 8192 * 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fixedClock(tt.offset).CurrentPeriod(); got != tt.want {
				t.Errorf("CurrentPeriod() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSlotStartTime(t *testing.T) {
	c := New(genesis)
	if got := c.SlotStartTime(0); got != genesis {
		t.Errorf("SlotStartTime(0) = %d, want %d", got, genesis)
	}
	if got := c.SlotStartTime(100); got != genesis+1200 {
		t.Errorf("SlotStartTime(100) = %d, want %d", got, genesis+1200)
	}
}

func TestUntilNextSlot(t *testing.T) {
	tests := []struct {
		name   string
		offset int64
		want   time.Duration
	}{
		{"slot start", 24, 12 * time.Second},
		{"mid slot", 29, 7 * time.Second},
		{"last second", 35, 1 * time.Second},
		{"before genesis counts down to slot 0", -5, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fixedClock(tt.offset).UntilNextSlot(); got != tt.want {
				t.Errorf("UntilNextSlot() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsBeforeGenesis(t *testing.T) {
	if !fixedClock(-1).IsBeforeGenesis() {
		t.Error("IsBeforeGenesis() = false one second before genesis")
	}
	if fixedClock(0).IsBeforeGenesis() {
		t.Error("IsBeforeGenesis() = true at genesis")
	}
}
