package merkle

import (
	"github.com/geanlabs/lantern/types"
)

// BranchDepth returns the number of sibling nodes a branch at the given
// generalized index must carry.
func BranchDepth(gindex uint64) int {
	depth := 0
	for g := gindex; g > 1; g >>= 1 {
		depth++
	}
	return depth
}

// VerifyBranch recomputes the root from a leaf and its Merkle branch at a
// generalized index. A branch whose length does not match the index's depth
// is rejected without hashing.
func VerifyBranch(leaf types.Root, branch []types.Root, gindex uint64, root types.Root) bool {
	if gindex < 1 || len(branch) != BranchDepth(gindex) {
		return false
	}
	node := leaf
	for i, sibling := range branch {
		if gindex>>uint(i)&1 == 1 {
			node = HashNodes(sibling, node)
		} else {
			node = HashNodes(node, sibling)
		}
	}
	return node == root
}
