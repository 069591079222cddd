// Package propindex maintains the structural property index:
// "prop:{property}:{value}" -> Set[NodeID], letting the query planner
// answer structural filter predicates without a full node scan. Keys
// use the prefix+component+0x00+nodeID shape shared with the
// adjacency index.
package propindex

import (
	"github.com/tabagent/nornicsubstrate/pkg/kv"
	"github.com/tabagent/nornicsubstrate/pkg/model"
)

// PropertyIndex is the structural index over a shared *kv.Env.
type PropertyIndex struct {
	env *kv.Env
}

// New wraps env as a PropertyIndex.
func New(env *kv.Env) *PropertyIndex {
	return &PropertyIndex{env: env}
}

func propKey(property, value string, nodeID model.NodeID) []byte {
	return kv.Join([]byte(property), []byte(value), []byte(nodeID))
}

func propPrefix(property, value string) []byte {
	return kv.Join([]byte(property), []byte(value))
}

// IndexNode adds every property/value pair n.IndexedProperties
// reports to the index, inside txn.
func (p *PropertyIndex) IndexNode(txn *kv.Txn, n *model.Node) error {
	for prop, val := range n.IndexedProperties() {
		if err := txn.Put(kv.DBIProperty, propKey(prop, val, n.ID), nil); err != nil {
			return err
		}
	}
	return nil
}

// UnindexNode removes every entry n.IndexedProperties would have
// added — called before re-indexing an updated node, or on delete.
func (p *PropertyIndex) UnindexNode(txn *kv.Txn, n *model.Node) error {
	for prop, val := range n.IndexedProperties() {
		if err := txn.Delete(kv.DBIProperty, propKey(prop, val, n.ID)); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns every NodeID indexed under property == value.
func (p *PropertyIndex) Lookup(txn *kv.Txn, property, value string) ([]model.NodeID, error) {
	prefix := propPrefix(property, value)
	var ids []model.NodeID
	err := txn.PrefixScan(kv.DBIProperty, prefix, func(key, _ []byte) error {
		// key is property+0x00+value+0x00+nodeID+0x00; strip the
		// matched prefix and Join's trailing separator.
		if len(key) < len(prefix)+1 {
			return nil
		}
		id := key[len(prefix) : len(key)-1]
		ids = append(ids, model.NodeID(id))
		return nil
	})
	return ids, err
}

// Count returns len(Lookup(...)) without materializing the id slice,
// used by the query planner to cost-order a structural filter against
// other predicates by cardinality before evaluating either.
func (p *PropertyIndex) Count(txn *kv.Txn, property, value string) (int, error) {
	return txn.CountPrefix(kv.DBIProperty, propPrefix(property, value))
}
