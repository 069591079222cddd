package model

import (
	"fmt"
	"strconv"

	"github.com/tabagent/nornicsubstrate/pkg/dberr"
)

// NodeKind tags which of Node's typed payloads is populated. Node is a
// tagged union over domain variants: one struct, one populated
// pointer field, never an interface hierarchy.
type NodeKind string

const (
	KindChat            NodeKind = "Chat"
	KindMessage         NodeKind = "Message"
	KindSummary         NodeKind = "Summary"
	KindEntity          NodeKind = "Entity"
	KindAttachment      NodeKind = "Attachment"
	KindWebSearch       NodeKind = "WebSearch"
	KindScrapedPage     NodeKind = "ScrapedPage"
	KindAudioTranscript NodeKind = "AudioTranscript"
	KindActionOutcome   NodeKind = "ActionOutcome"
)

// Node is the tagged union over every domain variant the substrate
// persists. Shared shape is ID + Metadata; each variant adds its own
// typed payload struct, populated only when Kind matches.
type Node struct {
	ID       NodeID
	Kind     NodeKind
	Metadata string // JSON-as-string

	Chat            *ChatData
	Message         *MessageData
	Summary         *SummaryData
	Entity          *EntityData
	Attachment      *AttachmentData
	WebSearch       *WebSearchData
	ScrapedPage     *ScrapedPageData
	AudioTranscript *AudioTranscriptData
	ActionOutcome   *ActionOutcomeData
}

// ChatData holds the fields specific to a Chat node.
type ChatData struct {
	Title string
	Topic string
}

// MessageData holds the fields specific to a Message node.
type MessageData struct {
	ChatID        NodeID
	Sender        string
	TimestampMs   int64
	TextContent   string
	AttachmentIDs []NodeID
	EmbeddingID   *EmbeddingID
}

// SummaryData holds the fields specific to a Summary node.
type SummaryData struct {
	Content     string
	EmbeddingID *EmbeddingID
}

// EntityData holds the fields specific to an Entity node.
type EntityData struct {
	Label       string
	EntityType  string
	EmbeddingID *EmbeddingID
}

// AttachmentData holds the fields specific to an Attachment node.
// Attachments carry no embedding: they are binary payloads, not text.
type AttachmentData struct {
	MessageID NodeID
	Filename  string
	MimeType  string
	SizeBytes int64
}

// WebSearchData holds the fields specific to a WebSearch node.
type WebSearchData struct {
	Query       string
	EmbeddingID *EmbeddingID
}

// ScrapedPageData holds the fields specific to a ScrapedPage node.
type ScrapedPageData struct {
	URL         string
	Title       string
	TextContent string
	EmbeddingID *EmbeddingID
}

// AudioTranscriptData holds the fields specific to an AudioTranscript node.
type AudioTranscriptData struct {
	SourceID   *NodeID
	Transcript string
	EmbeddingID *EmbeddingID
}

// ActionOutcomeData holds the fields specific to an ActionOutcome node.
// Experience-domain nodes are never semantically indexed — only
// text-bearing variants feed the semantic indexer.
type ActionOutcomeData struct {
	ActionType string
	Confidence float32
	ErrorCount uint32
	Feedback   string // JSON-as-string
}

// Validate checks that the id is non-empty and that exactly one typed
// payload matching Kind is populated. It does not check referential
// integrity, and neither does the tiered coordinator on insert: ids
// held in payload fields (a Message's ChatID, an embedding_id) are
// stored without checking that they exist.
func (n *Node) Validate() error {
	if n.ID == "" {
		return dberr.NewValidation("id", "must not be empty")
	}
	payloads := map[NodeKind]bool{
		KindChat:            n.Chat != nil,
		KindMessage:         n.Message != nil,
		KindSummary:         n.Summary != nil,
		KindEntity:          n.Entity != nil,
		KindAttachment:      n.Attachment != nil,
		KindWebSearch:       n.WebSearch != nil,
		KindScrapedPage:     n.ScrapedPage != nil,
		KindAudioTranscript: n.AudioTranscript != nil,
		KindActionOutcome:   n.ActionOutcome != nil,
	}
	populated := 0
	for _, ok := range payloads {
		if ok {
			populated++
		}
	}
	if populated != 1 {
		return dberr.NewValidation("kind", fmt.Sprintf("expected exactly one payload, found %d", populated))
	}
	if !payloads[n.Kind] {
		return dberr.NewValidation("kind", fmt.Sprintf("kind %q does not match populated payload", n.Kind))
	}
	return nil
}

// TextContent returns the representative text the Weaver's semantic
// indexer and entity linker work from, and whether this variant has
// any.
func (n *Node) TextContent() (string, bool) {
	switch n.Kind {
	case KindMessage:
		return n.Message.TextContent, true
	case KindSummary:
		return n.Summary.Content, true
	case KindEntity:
		return n.Entity.Label, true
	case KindChat:
		return n.Chat.Title + " - " + n.Chat.Topic, true
	case KindScrapedPage:
		title := n.ScrapedPage.Title
		return title + " " + n.ScrapedPage.TextContent, true
	case KindWebSearch:
		return n.WebSearch.Query, true
	case KindAudioTranscript:
		return n.AudioTranscript.Transcript, true
	default:
		return "", false
	}
}

// EmbeddingID returns the node's back-reference to an Embedding record,
// if this variant supports one and one has been assigned.
func (n *Node) EmbeddingID() (EmbeddingID, bool) {
	var ptr *EmbeddingID
	switch n.Kind {
	case KindMessage:
		ptr = n.Message.EmbeddingID
	case KindSummary:
		ptr = n.Summary.EmbeddingID
	case KindEntity:
		ptr = n.Entity.EmbeddingID
	case KindWebSearch:
		ptr = n.WebSearch.EmbeddingID
	case KindScrapedPage:
		ptr = n.ScrapedPage.EmbeddingID
	case KindAudioTranscript:
		ptr = n.AudioTranscript.EmbeddingID
	}
	if ptr == nil {
		return "", false
	}
	return *ptr, true
}

// SetEmbeddingID assigns an Embedding back-reference in place. It is a
// no-op for variants that carry no embedding field.
func (n *Node) SetEmbeddingID(id EmbeddingID) {
	switch n.Kind {
	case KindMessage:
		n.Message.EmbeddingID = &id
	case KindSummary:
		n.Summary.EmbeddingID = &id
	case KindEntity:
		n.Entity.EmbeddingID = &id
	case KindWebSearch:
		n.WebSearch.EmbeddingID = &id
	case KindScrapedPage:
		n.ScrapedPage.EmbeddingID = &id
	case KindAudioTranscript:
		n.AudioTranscript.EmbeddingID = &id
	}
}

// IndexedProperties returns the structural property (name -> value)
// pairs this node contributes to the property index: node_type,
// chat_id, sender, entity_label, entity_type, timestamp, embedding_id,
// when present.
func (n *Node) IndexedProperties() map[string]string {
	props := map[string]string{"node_type": string(n.Kind)}
	switch n.Kind {
	case KindMessage:
		props["chat_id"] = string(n.Message.ChatID)
		props["sender"] = n.Message.Sender
		props["timestamp"] = strconv.FormatInt(n.Message.TimestampMs, 10)
	case KindEntity:
		props["entity_label"] = n.Entity.Label
		props["entity_type"] = n.Entity.EntityType
	}
	if embID, ok := n.EmbeddingID(); ok {
		props["embedding_id"] = string(embID)
	}
	return props
}
