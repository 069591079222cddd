// Package model defines the typed knowledge-graph entities persisted by the
// substrate: nodes, edges, and embeddings, plus the strongly-typed
// identifiers that keep the three id spaces from being mixed up.
//
// A tagged Node union over domain variants, a directed Edge, and a
// dimensionality-tagged Embedding. Identifier distinctness is
// compile-enforced via distinct string newtypes, one per id space.
package model

import (
	"crypto/rand"
	"encoding/hex"
)

// NodeID uniquely identifies a Node for the lifetime of the entity it
// names. Generated as 64 bits of randomness rendered as hex.
type NodeID string

// EdgeID uniquely identifies an Edge.
type EdgeID string

// EmbeddingID uniquely identifies an Embedding.
type EmbeddingID string

// NewNodeID mints a fresh, statistically unique NodeID.
func NewNodeID() NodeID { return NodeID("node_" + randomHex()) }

// NewEdgeID mints a fresh EdgeID.
func NewEdgeID() EdgeID { return EdgeID("edge_" + randomHex()) }

// NewEmbeddingID mints a fresh EmbeddingID.
func NewEmbeddingID() EmbeddingID { return EmbeddingID("emb_" + randomHex()) }

// randomHex returns 16 hex characters (64 bits) of crypto/rand output.
func randomHex() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand.Read on a supported platform does not fail in
		// practice; panicking here would surface a misconfigured
		// environment loudly rather than silently mint colliding ids.
		panic("model: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf[:])
}
