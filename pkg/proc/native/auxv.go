package native

import (
	"bytes"
	"encoding/binary"
)

const (
	_AT_NULL  = 0
	_AT_ENTRY = 9
)

// EntryPointFromAuxv searches a 64-bit elf auxiliary vector for the entry
// point address. Zero is returned if the vector has no AT_ENTRY entry.
// For a description of the auxiliary vector (auxv) format see:
// System V Application Binary Interface, AMD64 Architecture Processor
// Supplement, section 3.4.3.
func EntryPointFromAuxv(auxv []byte) uint64 {
	rd := bytes.NewReader(auxv)

	for {
		var tag, val uint64
		if err := binary.Read(rd, binary.LittleEndian, &tag); err != nil {
			return 0
		}
		if err := binary.Read(rd, binary.LittleEndian, &val); err != nil {
			return 0
		}

		switch tag {
		case _AT_NULL:
			return 0
		case _AT_ENTRY:
			return val
		}
	}
}

func wordFromBytes(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}
