package memtable

// Sorted returns a snapshot of all items in key order.
func (mt *Memtable) Sorted() []Item {
	result := make([]Item, 0, mt.underlying.Len())
	mt.underlying.Range(func(key []byte, value Item) bool {
		result = append(result, value)
		return true
	})

	return result
}
