package consensus

import "errors"

// Sentinel errors for bootstrap and update verification.
// Callers may use errors.Is to check for specific failure types.
var (
	ErrMalformedInput         = errors.New("malformed input")              // structurally invalid or internally inconsistent
	ErrStaleUpdate            = errors.New("stale update")                 // cannot move the state forward
	ErrInsufficientSignatures = errors.New("insufficient signatures")      // participation below the supermajority quorum
	ErrInvalidMerkleProof     = errors.New("invalid merkle proof")         // branch does not bind the leaf to its root
	ErrInvalidSignature       = errors.New("invalid aggregate signature")  // committee signature check failed
	ErrNotBootstrapped        = errors.New("not bootstrapped")             // update applied before a checkpoint was loaded
	ErrAlreadyBootstrapped    = errors.New("already bootstrapped")         // second bootstrap on a live manager
	ErrManagerPoisoned        = errors.New("manager poisoned by failed bootstrap") // recovery requires a fresh manager and checkpoint
)
