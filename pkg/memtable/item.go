package memtable

// Item is one live entry: encoded key, encoded value, the commit sequence
// number that wrote it and the store's metadata word.
type Item struct {
	Key   []byte
	Value []byte
	SeqN  uint64
	Meta  uint64
}
