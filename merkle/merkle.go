// Package merkle implements SSZ merkleization: chunking, padded binary-tree
// hashing, length mix-ins, and Merkle branch verification by generalized
// index. It is pure and stateless; fork awareness and signature checking
// live elsewhere.
package merkle

import (
	"crypto/sha256"
	"encoding/binary"
	"math/bits"

	"github.com/OffchainLabs/go-bitfield"

	"github.com/geanlabs/lantern/types"
)

const BytesPerChunk = 32

var ZeroHash = types.Root{}

// zeroHashes[d] is the root of an empty subtree of depth d.
var zeroHashes [65]types.Root

func init() {
	for d := 0; d < 64; d++ {
		zeroHashes[d+1] = HashNodes(zeroHashes[d], zeroHashes[d])
	}
}

func Hash(data []byte) types.Root {
	return types.Root(sha256.Sum256(data))
}

func HashNodes(a, b types.Root) types.Root {
	h := sha256.New()
	h.Write(a[:])
	h.Write(b[:])
	var result types.Root
	copy(result[:], h.Sum(nil))
	return result
}

func HashTreeRootUint64(value uint64) types.Root {
	var buf [32]byte
	binary.LittleEndian.PutUint64(buf[:8], value)
	return types.Root(buf)
}

// ZeroHashAt returns the root of an empty subtree of the given depth.
func ZeroHashAt(depth int) types.Root {
	return zeroHashes[depth]
}

// Merkleize hashes chunks pairwise up to the tree width implied by limit,
// padding absent subtrees with precomputed zero roots. limit 0 means "pad to
// the next power of two of the chunk count". Callers enforce list limits
// before merkleizing; a chunk count above a nonzero limit widens the tree to
// fit rather than truncating.
func Merkleize(chunks []types.Root, limit uint64) types.Root {
	n := uint64(len(chunks))
	if n == 0 && limit == 0 {
		return ZeroHash
	}
	width := limit
	if width < n {
		width = n
	}
	depth := treeDepth(width)
	if n == 0 {
		return zeroHashes[depth]
	}

	level := make([]types.Root, len(chunks))
	copy(level, chunks)

	for d := 0; d < depth; d++ {
		if len(level)%2 == 1 {
			level = append(level, zeroHashes[d])
		}
		next := make([]types.Root, len(level)/2)
		for i := range next {
			next[i] = HashNodes(level[i*2], level[i*2+1])
		}
		level = next
	}

	return level[0]
}

func MixInLength(root types.Root, length uint64) types.Root {
	var lenChunk types.Root
	binary.LittleEndian.PutUint64(lenChunk[:8], length)
	return HashNodes(root, lenChunk)
}

// ChunkifyBytes splits data into 32-byte chunks, right-padding the last one
// with zeros. Empty data yields no chunks.
func ChunkifyBytes(data []byte) []types.Root {
	chunks := make([]types.Root, (len(data)+BytesPerChunk-1)/BytesPerChunk)
	for i := range chunks {
		copy(chunks[i][:], data[i*BytesPerChunk:])
	}
	return chunks
}

// PackUint64s packs values four per chunk, little-endian.
func PackUint64s(values []uint64) []types.Root {
	chunks := make([]types.Root, (len(values)+3)/4)
	for i, v := range values {
		binary.LittleEndian.PutUint64(chunks[i/4][(i%4)*8:], v)
	}
	return chunks
}

// ByteVectorRoot merkleizes a fixed-length byte vector.
func ByteVectorRoot(data []byte) types.Root {
	return Merkleize(ChunkifyBytes(data), 0)
}

// ByteListRoot merkleizes a variable-length byte list and mixes in its
// length in bytes.
func ByteListRoot(data []byte, limitBytes uint64) types.Root {
	root := Merkleize(ChunkifyBytes(data), chunkLimit(limitBytes))
	return MixInLength(root, uint64(len(data)))
}

// BitvectorRoot merkleizes a fixed-length bitvector. No length mix-in.
func BitvectorRoot(bits []byte, length uint64) types.Root {
	return Merkleize(ChunkifyBytes(bits), (length+255)/256)
}

// BitlistRoot merkleizes a bitlist without its sentinel bit and mixes in the
// bit length.
func BitlistRoot(bits bitfield.Bitlist, bitLimit uint64) types.Root {
	root := Merkleize(ChunkifyBytes(bits.Bytes()), (bitLimit+255)/256)
	return MixInLength(root, bits.Len())
}

// Uint64ListRoot merkleizes a list of uint64s and mixes in its length.
func Uint64ListRoot(values []uint64, limit uint64) types.Root {
	root := Merkleize(PackUint64s(values), (limit+3)/4)
	return MixInLength(root, uint64(len(values)))
}

func chunkLimit(limitBytes uint64) uint64 {
	return (limitBytes + BytesPerChunk - 1) / BytesPerChunk
}

// treeDepth returns the smallest depth whose width covers n chunks.
func treeDepth(n uint64) int {
	if n <= 1 {
		return 0
	}
	return bits.Len64(n - 1)
}
