package codec

import (
	"github.com/tabagent/nornicsubstrate/pkg/dberr"
	"github.com/tabagent/nornicsubstrate/pkg/model"
)

const kindEdge byte = 0x50

// EncodeEdge renders an Edge into its on-disk buffer. Field order:
// [0] ID, [1] FromID, [2] ToID, [3] EdgeType, [4] Metadata.
func EncodeEdge(e *model.Edge) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return NewEncoder(kindEdge).
		PutString(string(e.ID)).
		PutString(string(e.FromID)).
		PutString(string(e.ToID)).
		PutString(e.EdgeType).
		PutString(e.Metadata).
		Bytes(), nil
}

// DecodeEdge fully materializes an Edge from its on-disk buffer.
func DecodeEdge(buf []byte) (*model.Edge, error) {
	rec, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	if rec.kind != kindEdge {
		return nil, dberr.ErrCorrupted
	}
	id, _ := rec.String(0)
	from, _ := rec.String(1)
	to, _ := rec.String(2)
	etype, _ := rec.String(3)
	meta, _ := rec.String(4)
	return &model.Edge{
		ID:       model.EdgeID(id),
		FromID:   model.NodeID(from),
		ToID:     model.NodeID(to),
		EdgeType: etype,
		Metadata: meta,
	}, nil
}

// EdgeRef is a zero-copy view over an encoded Edge buffer.
type EdgeRef struct {
	rec *Record
}

// NewEdgeRef decodes buf's field table without copying field contents.
func NewEdgeRef(buf []byte) (*EdgeRef, error) {
	rec, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	if rec.kind != kindEdge {
		return nil, dberr.ErrCorrupted
	}
	return &EdgeRef{rec: rec}, nil
}

// EdgeType returns the edge's type field without touching any other.
func (r *EdgeRef) EdgeType() (string, error) { return r.rec.String(3) }

// FromID returns the edge's source node id.
func (r *EdgeRef) FromID() (model.NodeID, error) {
	s, err := r.rec.String(1)
	return model.NodeID(s), err
}

// ToID returns the edge's destination node id.
func (r *EdgeRef) ToID() (model.NodeID, error) {
	s, err := r.rec.String(2)
	return model.NodeID(s), err
}

// Deserialize fully materializes the referenced edge.
func (r *EdgeRef) Deserialize() (*model.Edge, error) {
	return DecodeEdge(r.rec.buf)
}
