package propindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tabagent/nornicsubstrate/pkg/kv"
	"github.com/tabagent/nornicsubstrate/pkg/model"
)

func TestIndexAndLookupMessageProperties(t *testing.T) {
	env, err := kv.Open(kv.Options{Path: t.TempDir(), InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })

	idx := New(env)
	chatID := model.NewNodeID()
	n1 := &model.Node{ID: model.NewNodeID(), Kind: model.KindMessage, Message: &model.MessageData{ChatID: chatID, Sender: "alice", TextContent: "hi"}}
	n2 := &model.Node{ID: model.NewNodeID(), Kind: model.KindMessage, Message: &model.MessageData{ChatID: chatID, Sender: "bob", TextContent: "hey"}}
	other := &model.Node{ID: model.NewNodeID(), Kind: model.KindMessage, Message: &model.MessageData{ChatID: model.NewNodeID(), Sender: "alice", TextContent: "elsewhere"}}

	require.NoError(t, env.Update(func(txn *kv.Txn) error {
		for _, n := range []*model.Node{n1, n2, other} {
			if err := idx.IndexNode(txn, n); err != nil {
				return err
			}
		}
		return nil
	}))

	var byChat []model.NodeID
	var bySender []model.NodeID
	require.NoError(t, env.View(func(txn *kv.Txn) error {
		var err error
		byChat, err = idx.Lookup(txn, "chat_id", string(chatID))
		if err != nil {
			return err
		}
		bySender, err = idx.Lookup(txn, "sender", "alice")
		return err
	}))

	require.ElementsMatch(t, []model.NodeID{n1.ID, n2.ID}, byChat)
	require.ElementsMatch(t, []model.NodeID{n1.ID, other.ID}, bySender)
}

func TestUnindexNodeRemovesEntries(t *testing.T) {
	env, err := kv.Open(kv.Options{Path: t.TempDir(), InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })

	idx := New(env)
	n := &model.Node{ID: model.NewNodeID(), Kind: model.KindEntity, Entity: &model.EntityData{Label: "Acme", EntityType: "Org"}}

	require.NoError(t, env.Update(func(txn *kv.Txn) error { return idx.IndexNode(txn, n) }))
	require.NoError(t, env.Update(func(txn *kv.Txn) error { return idx.UnindexNode(txn, n) }))

	var count int
	require.NoError(t, env.View(func(txn *kv.Txn) error {
		var err error
		count, err = idx.Count(txn, "entity_label", "Acme")
		return err
	}))
	require.Zero(t, count)
}
