package codec

import (
	"strings"

	"github.com/tabagent/nornicsubstrate/pkg/dberr"
	"github.com/tabagent/nornicsubstrate/pkg/model"
)

// Node kind tags. Stable once written: changing a value here would
// break every record already on disk.
const (
	kindChat byte = iota + 1
	kindMessage
	kindSummary
	kindEntity
	kindAttachment
	kindWebSearch
	kindScrapedPage
	kindAudioTranscript
	kindActionOutcome
)

var nodeKindToByte = map[model.NodeKind]byte{
	model.KindChat:            kindChat,
	model.KindMessage:         kindMessage,
	model.KindSummary:         kindSummary,
	model.KindEntity:          kindEntity,
	model.KindAttachment:      kindAttachment,
	model.KindWebSearch:       kindWebSearch,
	model.KindScrapedPage:     kindScrapedPage,
	model.KindAudioTranscript: kindAudioTranscript,
	model.KindActionOutcome:   kindActionOutcome,
}

var byteToNodeKind = func() map[byte]model.NodeKind {
	m := make(map[byte]model.NodeKind, len(nodeKindToByte))
	for k, v := range nodeKindToByte {
		m[v] = k
	}
	return m
}()

// packOptEmbedding packs an *model.EmbeddingID (possibly nil) as
// a field: empty string means absent.
func packOptEmbedding(id *model.EmbeddingID) string {
	if id == nil {
		return ""
	}
	return string(*id)
}

func unpackOptEmbedding(s string) *model.EmbeddingID {
	if s == "" {
		return nil
	}
	id := model.EmbeddingID(s)
	return &id
}

// EncodeNode renders a Node into its on-disk buffer. Field order per
// variant is fixed: [0] ID, [1] Metadata, then variant-specific
// fields in struct-declaration order.
func EncodeNode(n *model.Node) ([]byte, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	kind, ok := nodeKindToByte[n.Kind]
	if !ok {
		return nil, dberr.NewValidation("kind", "unknown node kind")
	}
	enc := NewEncoder(kind).PutString(string(n.ID)).PutString(n.Metadata)

	switch n.Kind {
	case model.KindChat:
		enc.PutString(n.Chat.Title).PutString(n.Chat.Topic)
	case model.KindMessage:
		m := n.Message
		enc.PutString(string(m.ChatID)).
			PutString(m.Sender).
			PutInt64(m.TimestampMs).
			PutString(m.TextContent).
			PutString(packAttachmentIDs(m.AttachmentIDs)).
			PutString(packOptEmbedding(m.EmbeddingID))
	case model.KindSummary:
		enc.PutString(n.Summary.Content).PutString(packOptEmbedding(n.Summary.EmbeddingID))
	case model.KindEntity:
		enc.PutString(n.Entity.Label).
			PutString(n.Entity.EntityType).
			PutString(packOptEmbedding(n.Entity.EmbeddingID))
	case model.KindAttachment:
		a := n.Attachment
		enc.PutString(string(a.MessageID)).
			PutString(a.Filename).
			PutString(a.MimeType).
			PutInt64(a.SizeBytes)
	case model.KindWebSearch:
		enc.PutString(n.WebSearch.Query).PutString(packOptEmbedding(n.WebSearch.EmbeddingID))
	case model.KindScrapedPage:
		s := n.ScrapedPage
		enc.PutString(s.URL).
			PutString(s.Title).
			PutString(s.TextContent).
			PutString(packOptEmbedding(s.EmbeddingID))
	case model.KindAudioTranscript:
		a := n.AudioTranscript
		src := ""
		if a.SourceID != nil {
			src = string(*a.SourceID)
		}
		enc.PutString(src).
			PutString(a.Transcript).
			PutString(packOptEmbedding(a.EmbeddingID))
	case model.KindActionOutcome:
		ao := n.ActionOutcome
		enc.PutString(ao.ActionType).
			PutUint64(uint64(float32bits(ao.Confidence))).
			PutUint64(uint64(ao.ErrorCount)).
			PutString(ao.Feedback)
	}
	return enc.Bytes(), nil
}

// DecodeNode fully materializes a Node from its on-disk buffer. Use
// NewNodeRef for the zero-copy field-accessor path instead when the
// caller only needs one or two fields.
func DecodeNode(buf []byte) (*model.Node, error) {
	rec, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	kind, ok := byteToNodeKind[rec.kind]
	if !ok {
		return nil, dberr.ErrCorrupted
	}
	id, err := rec.String(0)
	if err != nil {
		return nil, err
	}
	meta, err := rec.String(1)
	if err != nil {
		return nil, err
	}
	n := &model.Node{ID: model.NodeID(id), Kind: kind, Metadata: meta}

	switch kind {
	case model.KindChat:
		title, _ := rec.String(2)
		topic, _ := rec.String(3)
		n.Chat = &model.ChatData{Title: title, Topic: topic}
	case model.KindMessage:
		chatID, _ := rec.String(2)
		sender, _ := rec.String(3)
		ts, _ := rec.Int64(4)
		text, _ := rec.String(5)
		attach, _ := rec.String(6)
		emb, _ := rec.String(7)
		n.Message = &model.MessageData{
			ChatID:        model.NodeID(chatID),
			Sender:        sender,
			TimestampMs:   ts,
			TextContent:   text,
			AttachmentIDs: unpackAttachmentIDs(attach),
			EmbeddingID:   unpackOptEmbedding(emb),
		}
	case model.KindSummary:
		content, _ := rec.String(2)
		emb, _ := rec.String(3)
		n.Summary = &model.SummaryData{Content: content, EmbeddingID: unpackOptEmbedding(emb)}
	case model.KindEntity:
		label, _ := rec.String(2)
		etype, _ := rec.String(3)
		emb, _ := rec.String(4)
		n.Entity = &model.EntityData{Label: label, EntityType: etype, EmbeddingID: unpackOptEmbedding(emb)}
	case model.KindAttachment:
		msgID, _ := rec.String(2)
		filename, _ := rec.String(3)
		mime, _ := rec.String(4)
		size, _ := rec.Int64(5)
		n.Attachment = &model.AttachmentData{MessageID: model.NodeID(msgID), Filename: filename, MimeType: mime, SizeBytes: size}
	case model.KindWebSearch:
		query, _ := rec.String(2)
		emb, _ := rec.String(3)
		n.WebSearch = &model.WebSearchData{Query: query, EmbeddingID: unpackOptEmbedding(emb)}
	case model.KindScrapedPage:
		url, _ := rec.String(2)
		title, _ := rec.String(3)
		text, _ := rec.String(4)
		emb, _ := rec.String(5)
		n.ScrapedPage = &model.ScrapedPageData{URL: url, Title: title, TextContent: text, EmbeddingID: unpackOptEmbedding(emb)}
	case model.KindAudioTranscript:
		src, _ := rec.String(2)
		transcript, _ := rec.String(3)
		emb, _ := rec.String(4)
		var srcID *model.NodeID
		if src != "" {
			id := model.NodeID(src)
			srcID = &id
		}
		n.AudioTranscript = &model.AudioTranscriptData{SourceID: srcID, Transcript: transcript, EmbeddingID: unpackOptEmbedding(emb)}
	case model.KindActionOutcome:
		actionType, _ := rec.String(2)
		confBits, _ := rec.Uint64(3)
		errCount, _ := rec.Uint64(4)
		feedback, _ := rec.String(5)
		n.ActionOutcome = &model.ActionOutcomeData{
			ActionType: actionType,
			Confidence: float32frombits(uint32(confBits)),
			ErrorCount: uint32(errCount),
			Feedback:   feedback,
		}
	}
	return n, nil
}

// NodeRef is a zero-copy, field-level view over an encoded Node
// buffer. Field accessors read directly off the underlying byte
// slice; Deserialize is the escape hatch to a fully owned Node.
type NodeRef struct {
	rec *Record
}

// NewNodeRef decodes buf's header/field-table without materializing
// any variant-specific field.
func NewNodeRef(buf []byte) (*NodeRef, error) {
	rec, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	if _, ok := byteToNodeKind[rec.kind]; !ok {
		return nil, dberr.ErrCorrupted
	}
	return &NodeRef{rec: rec}, nil
}

// Kind returns the node's variant tag without touching any other field.
func (r *NodeRef) Kind() model.NodeKind { return byteToNodeKind[r.rec.kind] }

// ID returns the node's id, copied out of the underlying buffer.
func (r *NodeRef) ID() (model.NodeID, error) {
	s, err := r.rec.String(0)
	return model.NodeID(s), err
}

// TextContent returns the variant's representative text field, if it
// has one, without decoding any of its other fields.
func (r *NodeRef) TextContent() (string, bool) {
	idx := map[model.NodeKind]int{
		model.KindMessage:         5,
		model.KindSummary:         2,
		model.KindEntity:          2,
		model.KindWebSearch:       2,
		model.KindScrapedPage:     4,
		model.KindAudioTranscript: 3,
	}
	i, ok := idx[r.Kind()]
	if !ok {
		return "", false
	}
	s, err := r.rec.String(i)
	if err != nil {
		return "", false
	}
	return s, true
}

// Deserialize fully materializes the referenced node into an owned
// model.Node, copying every field out of the backing buffer.
func (r *NodeRef) Deserialize() (*model.Node, error) {
	return DecodeNode(r.rec.buf)
}

const attachmentIDSep = "\x1f"

func packAttachmentIDs(ids []model.NodeID) string {
	s := ""
	for i, id := range ids {
		if i > 0 {
			s += attachmentIDSep
		}
		s += string(id)
	}
	return s
}

func unpackAttachmentIDs(s string) []model.NodeID {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, attachmentIDSep)
	ids := make([]model.NodeID, len(parts))
	for i, p := range parts {
		ids[i] = model.NodeID(p)
	}
	return ids
}
