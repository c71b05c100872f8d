package badger

import (
	"github.com/autom8ter/quarry/kv"
	"github.com/dgraph-io/badger/v3"
)

type badgerIterator struct {
	opts kv.IterOpts
	iter *badger.Iterator
}

func (b *badgerIterator) Seek(key []byte) {
	b.iter.Seek(key)
}

func (b *badgerIterator) Close() {
	b.iter.Close()
}

func (b *badgerIterator) Valid() bool {
	if b.opts.Prefix != nil {
		return b.iter.ValidForPrefix(b.opts.Prefix)
	}
	return b.iter.Valid()
}

func (b *badgerIterator) Item() kv.Item {
	return badgerItem{item: b.iter.Item()}
}

func (b *badgerIterator) Next() {
	b.iter.Next()
}

// badgerItem adapts a badger item to the kv.Item read surface
type badgerItem struct {
	item *badger.Item
}

func (i badgerItem) Key() []byte {
	return i.item.Key()
}

func (i badgerItem) Value() ([]byte, error) {
	return i.item.ValueCopy(nil)
}
