package badgerdb

import "github.com/dgraph-io/badger/v3"

type iterator struct {
	iter   *badger.Iterator
	prefix []byte
}

func (it *iterator) Rewind() {
	it.iter.Rewind()
}

func (it *iterator) Seek(key []byte) {
	it.iter.Seek(key)
}

func (it *iterator) Valid() bool {
	return it.iter.ValidForPrefix(it.prefix)
}

func (it *iterator) Next() {
	it.iter.Next()
}

func (it *iterator) Key() []byte {
	return it.iter.Item().KeyCopy(nil)
}

func (it *iterator) Value() ([]byte, error) {
	return it.iter.Item().ValueCopy(nil)
}

func (it *iterator) Close() {
	it.iter.Close()
}
