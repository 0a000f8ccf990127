// Package p2p implements the gossip overlay lantern nodes share. Verified
// updates travel between nodes as compact binary, scoped by fork digest so
// peers on different forks never join the same mesh.
package p2p

import (
	"fmt"
)

// TopicEncoding names the payload encoding carried on every topic.
const TopicEncoding = "ssz_snappy"

// Topic format: /lantern/<fork_digest>/<type>/ssz_snappy
const topicPrefix = "/lantern"

// FinalityUpdateTopic carries compact finality updates.
func FinalityUpdateTopic(digest [4]byte) string {
	return topicName(digest, "finality_update")
}

// OptimisticUpdateTopic carries compact optimistic updates.
func OptimisticUpdateTopic(digest [4]byte) string {
	return topicName(digest, "optimistic_update")
}

// BatchTopic carries framed relay batches.
func BatchTopic(digest [4]byte) string {
	return topicName(digest, "updates_batch")
}

func topicName(digest [4]byte, kind string) string {
	return fmt.Sprintf("%s/%x/%s/%s", topicPrefix, digest, kind, TopicEncoding)
}
