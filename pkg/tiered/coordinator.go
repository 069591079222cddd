// Package tiered implements the tiered storage coordinator: the
// layer that decides which temperature tier a node lives in and moves
// it between tiers as it cools off or warms up.
//
// Every domain (conversations, knowledge, embeddings, tool-results,
// experience, summaries, meta) shares the single Badger env the rest
// of the substrate already uses; "which tier" is folded into the
// node's key, tracked by a small location index so a
// lookup by id never has to probe every tier.
package tiered

import (
	"github.com/tabagent/nornicsubstrate/pkg/codec"
	"github.com/tabagent/nornicsubstrate/pkg/dberr"
	"github.com/tabagent/nornicsubstrate/pkg/kv"
	"github.com/tabagent/nornicsubstrate/pkg/model"
)

// Tier names a temperature tier a record can live in. Cold tiers are
// further partitioned by Quarter.
type Tier string

const (
	TierActive Tier = "active"
	TierRecent Tier = "recent"
	TierStable Tier = "stable" // knowledge domain only
	TierCold   Tier = "cold"   // conversations/embeddings domain, quarter-partitioned
)

// Domain names a top-level record category with its own tier layout.
type Domain string

const (
	DomainConversations Domain = "conversations"
	DomainKnowledge     Domain = "knowledge"
	DomainEmbeddings    Domain = "embeddings"
	DomainToolResults   Domain = "tool-results"
	DomainExperience    Domain = "experience"
	DomainSummaries     Domain = "summaries"
	DomainMeta          Domain = "meta"
)

// domainFor maps a node kind to the domain that owns it.
func domainFor(kind model.NodeKind) Domain {
	switch kind {
	case model.KindChat, model.KindMessage, model.KindAttachment:
		return DomainConversations
	case model.KindEntity:
		return DomainKnowledge
	case model.KindWebSearch, model.KindScrapedPage, model.KindAudioTranscript:
		return DomainToolResults
	case model.KindActionOutcome:
		return DomainExperience
	case model.KindSummary:
		return DomainSummaries
	default:
		return DomainMeta
	}
}

// Coordinator is the concrete tiered-storage coordinator over a
// single shared *kv.Env.
type Coordinator struct {
	env *kv.Env
}

// New wraps env as a Coordinator.
func New(env *kv.Env) *Coordinator {
	return &Coordinator{env: env}
}

// locationKey is the DBITierMeta entry recording which tier/quarter a
// node currently lives in, so GetNode never has to probe every tier.
func locationKey(id model.NodeID) []byte {
	return kv.Join([]byte("loc"), []byte(id))
}

func nodeKey(domain Domain, tier Tier, partition string, id model.NodeID) []byte {
	return kv.Join([]byte(domain), []byte(tier), []byte(partition), []byte(id))
}

// location is the recorded tier+partition for a node.
type location struct {
	domain    Domain
	tier      Tier
	partition string
}

func encodeLocation(l location) []byte {
	return kv.Join([]byte(l.domain), []byte(l.tier), []byte(l.partition))
}

func decodeLocation(buf []byte) (location, bool) {
	parts := splitJoined(buf, 3)
	if parts == nil {
		return location{}, false
	}
	return location{domain: Domain(parts[0]), tier: Tier(parts[1]), partition: string(parts[2])}, true
}

// splitJoined splits a kv.Join-encoded buffer (0x00-terminated
// components) into exactly n parts, or returns nil if the buffer
// doesn't have that many terminators.
func splitJoined(buf []byte, n int) [][]byte {
	parts := make([][]byte, 0, n)
	start := 0
	for i := 0; i < len(buf) && len(parts) < n; i++ {
		if buf[i] == 0x00 {
			parts = append(parts, buf[start:i])
			start = i + 1
		}
	}
	if len(parts) != n {
		return nil
	}
	return parts
}

// InsertNode writes n into its domain's active tier and records its
// location, inside txn.
func (c *Coordinator) InsertNode(txn *kv.Txn, n *model.Node) error {
	if err := n.Validate(); err != nil {
		return err
	}
	domain := domainFor(n.Kind)
	loc := location{domain: domain, tier: TierActive}

	buf, err := codec.EncodeNode(n)
	if err != nil {
		return err
	}
	if err := txn.Put(kv.DBINode, nodeKey(domain, loc.tier, loc.partition, n.ID), buf); err != nil {
		return err
	}
	return txn.Put(kv.DBITierMeta, locationKey(n.ID), encodeLocation(loc))
}

// GetNode resolves id's current tier via the location index, then
// reads its record from that tier.
func (c *Coordinator) GetNode(txn *kv.Txn, id model.NodeID) (*model.Node, error) {
	locBuf, err := txn.Get(kv.DBITierMeta, locationKey(id))
	if err != nil {
		return nil, err
	}
	loc, ok := decodeLocation(locBuf)
	if !ok {
		return nil, dberr.ErrCorrupted
	}
	buf, err := txn.Get(kv.DBINode, nodeKey(loc.domain, loc.tier, loc.partition, id))
	if err != nil {
		return nil, err
	}
	return codec.DecodeNode(buf)
}

// GetNodeWithHint resolves id the same way GetNode does but first
// tries the cold partition implied by timestampHintMs, skipping the
// location-index lookup on a hit.
func (c *Coordinator) GetNodeWithHint(txn *kv.Txn, id model.NodeID, domain Domain, timestampHintMs int64) (*model.Node, error) {
	quarter := Quarter(timestampHintMs)
	if buf, err := txn.Get(kv.DBINode, nodeKey(domain, TierCold, quarter, id)); err == nil {
		return codec.DecodeNode(buf)
	}
	return c.GetNode(txn, id)
}

// DeleteNode removes id's record from its current tier and drops its
// location-index entry.
func (c *Coordinator) DeleteNode(txn *kv.Txn, id model.NodeID) error {
	locBuf, err := txn.Get(kv.DBITierMeta, locationKey(id))
	if err != nil {
		return err
	}
	loc, ok := decodeLocation(locBuf)
	if !ok {
		return dberr.ErrCorrupted
	}
	if err := txn.Delete(kv.DBINode, nodeKey(loc.domain, loc.tier, loc.partition, id)); err != nil {
		return err
	}
	return txn.Delete(kv.DBITierMeta, locationKey(id))
}

// Promote moves id from its current tier to dest (and, for TierCold,
// into the partition named by quarter), updating both the node record
// and the location index.
func (c *Coordinator) Promote(txn *kv.Txn, id model.NodeID, dest Tier, quarter string) error {
	locBuf, err := txn.Get(kv.DBITierMeta, locationKey(id))
	if err != nil {
		return err
	}
	loc, ok := decodeLocation(locBuf)
	if !ok {
		return dberr.ErrCorrupted
	}

	oldKey := nodeKey(loc.domain, loc.tier, loc.partition, id)
	buf, err := txn.Get(kv.DBINode, oldKey)
	if err != nil {
		return err
	}

	newPartition := ""
	if dest == TierCold {
		newPartition = quarter
	}
	newLoc := location{domain: loc.domain, tier: dest, partition: newPartition}
	newKey := nodeKey(newLoc.domain, newLoc.tier, newLoc.partition, id)

	if err := txn.Put(kv.DBINode, newKey, buf); err != nil {
		return err
	}
	if err := txn.Delete(kv.DBINode, oldKey); err != nil {
		return err
	}
	return txn.Put(kv.DBITierMeta, locationKey(id), encodeLocation(newLoc))
}

// InsertEmbedding writes an embedding into the embeddings domain's
// active tier.
func (c *Coordinator) InsertEmbedding(txn *kv.Txn, e *model.Embedding) error {
	if err := e.Validate(); err != nil {
		return err
	}
	buf, err := codec.EncodeEmbedding(e)
	if err != nil {
		return err
	}
	key := nodeKey(DomainEmbeddings, TierActive, "", model.NodeID(e.ID))
	if err := txn.Put(kv.DBINode, key, buf); err != nil {
		return err
	}
	return txn.Put(kv.DBITierMeta, locationKey(model.NodeID(e.ID)), encodeLocation(location{domain: DomainEmbeddings, tier: TierActive}))
}

// GetEmbedding resolves an embedding the same way GetNode resolves a node.
func (c *Coordinator) GetEmbedding(txn *kv.Txn, id model.EmbeddingID) (*model.Embedding, error) {
	locBuf, err := txn.Get(kv.DBITierMeta, locationKey(model.NodeID(id)))
	if err != nil {
		return nil, err
	}
	loc, ok := decodeLocation(locBuf)
	if !ok {
		return nil, dberr.ErrCorrupted
	}
	buf, err := txn.Get(kv.DBINode, nodeKey(loc.domain, loc.tier, loc.partition, model.NodeID(id)))
	if err != nil {
		return nil, err
	}
	return codec.DecodeEmbedding(buf)
}

// Direct-access accessors: these return the domain/tier location a
// caller should scan directly via PrefixScan
// on kv.DBINode, rather than a *kv.Env — every tier already shares
// the one env, so "direct access" here means "the key prefix for this
// tier", not a distinct store handle.
//
// tierPrefix builds the scan prefix from the leading key components
// only. nodeKey must not be used here: it appends a separator after
// the empty partition and id components too, producing bytes no
// stored key carries at that offset, so the result would prefix-match
// nothing.
func tierPrefix(domain Domain, tier Tier) []byte {
	return kv.Join([]byte(domain), []byte(tier))
}

func domainPrefix(domain Domain) []byte {
	return kv.Join([]byte(domain))
}

func (c *Coordinator) ConversationsActivePrefix() []byte {
	return tierPrefix(DomainConversations, TierActive)
}

func (c *Coordinator) KnowledgeActivePrefix() []byte {
	return tierPrefix(DomainKnowledge, TierActive)
}

func (c *Coordinator) KnowledgeStablePrefix() []byte {
	return tierPrefix(DomainKnowledge, TierStable)
}

func (c *Coordinator) EmbeddingsActivePrefix() []byte {
	return tierPrefix(DomainEmbeddings, TierActive)
}

// EmbeddingsDomainPrefix spans every embeddings tier — active, recent,
// and each cold quarter — for whole-domain scans like the vector-index
// rebuild on startup.
func (c *Coordinator) EmbeddingsDomainPrefix() []byte {
	return domainPrefix(DomainEmbeddings)
}

func (c *Coordinator) ToolResultsPrefix() []byte {
	return tierPrefix(DomainToolResults, TierActive)
}

func (c *Coordinator) ExperiencePrefix() []byte {
	return tierPrefix(DomainExperience, TierActive)
}

func (c *Coordinator) MetaPrefix() []byte {
	return tierPrefix(DomainMeta, TierActive)
}
