package store

// MD is the metadata word stored next to every WAL record and memtable item:
// the low byte is the operation, the next byte the value encoding.
type MD uint64

func newMD(op operation, valType valType) MD {
	return MD(uint64(valType)<<8 | uint64(op))
}

func (md MD) operation() operation {
	return operation(uint64(md) & 0xff)
}

func (md MD) valType() valType {
	return valType((md >> 8) & 0xff)
}
