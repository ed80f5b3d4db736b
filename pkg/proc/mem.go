package proc

// MemoryReadWriter reads and writes single machine words of the target's
// memory. The value and the error are separate results so that a word with
// all bits set is never mistaken for a failure.
type MemoryReadWriter interface {
	PeekWord(addr uint64) (uint64, error)
	PokeWord(addr uint64, word uint64) error
}

// MemoryReader reads arbitrary byte ranges of the target's memory.
type MemoryReader interface {
	ReadMemory(addr uint64, size int) ([]byte, error)
}
