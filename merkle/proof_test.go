package merkle

import (
	"testing"

	"github.com/geanlabs/lantern/types"
)

// fourLeafTree builds the full tree over four leaves and returns the root
// plus the branch proving leaves[2] at generalized index 6.
func fourLeafTree(t *testing.T) (root types.Root, leaf types.Root, branch []types.Root) {
	t.Helper()
	leaves := []types.Root{chunkOf(10), chunkOf(11), chunkOf(12), chunkOf(13)}
	left := HashNodes(leaves[0], leaves[1])
	right := HashNodes(leaves[2], leaves[3])
	root = HashNodes(left, right)

	// Gindex 6 is the third leaf: sibling first, then the left subtree.
	return root, leaves[2], []types.Root{leaves[3], left}
}

func TestBranchDepth(t *testing.T) {
	tests := []struct {
		gindex uint64
		depth  int
	}{
		{1, 0},
		{2, 1},
		{3, 1},
		{6, 2},
		{54, 5},  // current sync committee
		{55, 5},  // next sync committee
		{105, 6}, // finalized checkpoint root
		{1 << 20, 20},
	}
	for _, tt := range tests {
		if got := BranchDepth(tt.gindex); got != tt.depth {
			t.Errorf("BranchDepth(%d) = %d, want %d", tt.gindex, got, tt.depth)
		}
	}
}

func TestVerifyBranch_Valid(t *testing.T) {
	root, leaf, branch := fourLeafTree(t)
	if !VerifyBranch(leaf, branch, 6, root) {
		t.Fatal("genuine branch rejected")
	}
}

func TestVerifyBranch_AnyFlippedByteRejected(t *testing.T) {
	root, leaf, branch := fourLeafTree(t)

	for i := range branch {
		for j := 0; j < BytesPerChunk; j++ {
			branch[i][j] ^= 0x01
			if VerifyBranch(leaf, branch, 6, root) {
				t.Fatalf("branch accepted with byte %d of node %d flipped", j, i)
			}
			branch[i][j] ^= 0x01
		}
	}

	for j := 0; j < BytesPerChunk; j++ {
		leaf[j] ^= 0x01
		if VerifyBranch(leaf, branch, 6, root) {
			t.Fatalf("branch accepted with leaf byte %d flipped", j)
		}
		leaf[j] ^= 0x01
	}

	for j := 0; j < BytesPerChunk; j++ {
		root[j] ^= 0x01
		if VerifyBranch(leaf, branch, 6, root) {
			t.Fatalf("branch accepted with root byte %d flipped", j)
		}
		root[j] ^= 0x01
	}

	// Still valid after all the restores.
	if !VerifyBranch(leaf, branch, 6, root) {
		t.Fatal("restored branch no longer verifies")
	}
}

func TestVerifyBranch_WrongDepthRejected(t *testing.T) {
	root, leaf, branch := fourLeafTree(t)

	if VerifyBranch(leaf, branch[:1], 6, root) {
		t.Error("short branch accepted")
	}
	long := append(append([]types.Root{}, branch...), types.Root{})
	if VerifyBranch(leaf, long, 6, root) {
		t.Error("long branch accepted")
	}
}

func TestVerifyBranch_BadGindexRejected(t *testing.T) {
	root, leaf, branch := fourLeafTree(t)

	if VerifyBranch(leaf, branch, 0, root) {
		t.Error("gindex 0 accepted")
	}
	// Gindex 7 proves the fourth leaf; the branch for the third must fail.
	if VerifyBranch(leaf, branch, 7, root) {
		t.Error("branch accepted under the wrong gindex")
	}
}

func TestVerifyBranch_RootGindex(t *testing.T) {
	leaf := chunkOf(42)
	// Gindex 1 is the root itself: an empty branch and leaf == root.
	if !VerifyBranch(leaf, nil, 1, leaf) {
		t.Error("identity proof rejected")
	}
	if VerifyBranch(leaf, nil, 1, chunkOf(43)) {
		t.Error("identity proof accepted against a different root")
	}
}

func TestVerifyBranch_DeepTree(t *testing.T) {
	// A leaf proven under gindex 54 needs the 5-deep walk the state
	// proofs use. Build the path explicitly from random-ish siblings.
	leaf := chunkOf(1)
	branch := []types.Root{chunkOf(2), chunkOf(3), chunkOf(4), chunkOf(5), chunkOf(6)}

	node := leaf
	gindex := uint64(54)
	for i, sibling := range branch {
		if gindex>>uint(i)&1 == 1 {
			node = HashNodes(sibling, node)
		} else {
			node = HashNodes(node, sibling)
		}
	}

	if !VerifyBranch(leaf, branch, 54, node) {
		t.Fatal("constructed 5-deep branch rejected")
	}
	if VerifyBranch(leaf, branch, 55, node) {
		t.Fatal("branch accepted under sibling gindex 55")
	}
}
