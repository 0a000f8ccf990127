package consensus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/geanlabs/lantern/fork"
	"github.com/geanlabs/lantern/merkle"
	"github.com/geanlabs/lantern/types"
)

// Phase is the manager lifecycle position. Transitions only move forward.
type Phase uint8

const (
	PhaseUninitialized Phase = iota
	PhaseBootstrapped
	PhaseSynced
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseBootstrapped:
		return "bootstrapped"
	case PhaseSynced:
		return "synced"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Config carries the manager's capabilities and network identity.
type Config struct {
	Schedule              *fork.Schedule
	GenesisValidatorsRoot types.Root
	Verifier              SignatureVerifier
	CurrentSlot           func() types.Slot
	Logger                *slog.Logger
}

// Manager holds the verified chain view and drives it through bootstrap and
// update application. All methods are safe for concurrent use; every apply
// is atomic: a failed check leaves the state untouched.
type Manager struct {
	schedule              *fork.Schedule
	genesisValidatorsRoot types.Root
	verifier              SignatureVerifier
	currentSlot           func() types.Slot
	log                   *slog.Logger

	mu       sync.Mutex
	phase    Phase
	poisoned bool
	state    State
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Schedule == nil {
		return nil, errors.New("manager requires a fork schedule")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("manager requires a signature verifier")
	}
	if cfg.CurrentSlot == nil {
		return nil, errors.New("manager requires a slot source")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		schedule:              cfg.Schedule,
		genesisValidatorsRoot: cfg.GenesisValidatorsRoot,
		verifier:              cfg.Verifier,
		currentSlot:           cfg.CurrentSlot,
		log:                   log,
	}, nil
}

// Bootstrap verifies a trusted-checkpoint bootstrap and seeds the state.
// Failure is terminal for this manager: a forged bootstrap means the trust
// anchor itself is suspect, so recovery is a fresh manager with a fresh
// checkpoint.
func (m *Manager) Bootstrap(checkpoint types.Root, b *types.Bootstrap) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.poisoned {
		return ErrManagerPoisoned
	}
	if m.phase != PhaseUninitialized {
		return ErrAlreadyBootstrapped
	}

	committeeRoot := merkle.SyncCommitteeRoot(&b.CurrentSyncCommittee)
	if !merkle.VerifyBranch(committeeRoot, b.CurrentSyncCommitteeBranch[:], CurrentSyncCommitteeGIndex, b.Header.StateRoot) {
		m.poisoned = true
		return fmt.Errorf("%w: current sync committee not in bootstrap state", ErrInvalidMerkleProof)
	}

	headerRoot := merkle.HeaderRoot(&b.Header)
	if headerRoot != checkpoint {
		m.poisoned = true
		return fmt.Errorf("%w: bootstrap header root %s does not match checkpoint %s",
			ErrMalformedInput, headerRoot.Short(), checkpoint.Short())
	}

	m.state = State{
		FinalizedHeader:      b.Header,
		OptimisticHeader:     b.Header,
		CurrentSyncCommittee: b.CurrentSyncCommittee,
	}
	m.phase = PhaseBootstrapped
	m.log.Info("bootstrapped from checkpoint",
		"slot", b.Header.Slot,
		"checkpoint", checkpoint.Short(),
		"period", m.state.FinalizedPeriod())
	return nil
}

// Restore seeds the manager from a previously verified state snapshot.
func (m *Manager) Restore(state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.poisoned {
		return ErrManagerPoisoned
	}
	if m.phase != PhaseUninitialized {
		return ErrAlreadyBootstrapped
	}
	m.state = state.Copy()
	m.phase = PhaseSynced
	m.log.Info("restored verified state",
		"finalized_slot", state.FinalizedHeader.Slot,
		"optimistic_slot", state.OptimisticHeader.Slot)
	return nil
}

// ApplyUpdate verifies and applies a full update.
func (m *Manager) ApplyUpdate(u *types.Update) (Outcome, error) {
	g := u.Generic()
	return m.applyGeneric(&g)
}

// ApplyFinalityUpdate verifies and applies a finality update.
func (m *Manager) ApplyFinalityUpdate(u *types.FinalityUpdate) (Outcome, error) {
	g := u.Generic()
	return m.applyGeneric(&g)
}

// ApplyOptimisticUpdate verifies and applies an optimistic update.
func (m *Manager) ApplyOptimisticUpdate(u *types.OptimisticUpdate) (Outcome, error) {
	g := u.Generic()
	return m.applyGeneric(&g)
}

func (m *Manager) applyGeneric(upd *types.GenericUpdate) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.poisoned {
		return Outcome{}, ErrManagerPoisoned
	}
	if m.phase == PhaseUninitialized {
		return Outcome{}, ErrNotBootstrapped
	}

	if err := verifyGenericUpdate(&m.state, upd, m.currentSlot(), m.schedule, m.genesisValidatorsRoot, m.verifier); err != nil {
		return Outcome{}, err
	}

	next, outcome := applyGenericUpdate(&m.state, upd)
	m.state = next
	if outcome.Changed() {
		m.phase = PhaseSynced
	}
	m.log.Info("applied update",
		"attested_slot", upd.AttestedHeader.Slot,
		"finalized_slot", m.state.FinalizedHeader.Slot,
		"optimistic_slot", m.state.OptimisticHeader.Slot,
		"finalized_updated", outcome.FinalizedUpdated,
		"committee_queued", outcome.CommitteeQueued,
		"committee_rotated", outcome.CommitteeRotated)
	return outcome, nil
}

// Phase returns the lifecycle position.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// FinalizedHeader returns the finalized watermark.
func (m *Manager) FinalizedHeader() types.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.FinalizedHeader
}

// Head returns the freshest verified header, finalized or optimistic.
func (m *Manager) Head() types.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.OptimisticHeader.Slot >= m.state.FinalizedHeader.Slot {
		return m.state.OptimisticHeader
	}
	return m.state.FinalizedHeader
}

// CurrentCommittee returns the committee serving the finalized period.
func (m *Manager) CurrentCommittee() types.SyncCommittee {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CurrentSyncCommittee
}

// NextCommittee returns the pending committee, or nil before the handover
// proof has been seen.
func (m *Manager) NextCommittee() *types.SyncCommittee {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.NextSyncCommittee == nil {
		return nil
	}
	committee := *m.state.NextSyncCommittee
	return &committee
}

// FinalizedPeriod returns the sync-committee period of the finalized
// watermark.
func (m *Manager) FinalizedPeriod() types.SyncCommitteePeriod {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.FinalizedPeriod()
}

// State returns a detached snapshot for persistence.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Copy()
}

// Checkpoint returns the finalized header root, suitable as the next
// trusted checkpoint.
func (m *Manager) Checkpoint() types.Root {
	m.mu.Lock()
	defer m.mu.Unlock()
	header := m.state.FinalizedHeader
	return merkle.HeaderRoot(&header)
}
