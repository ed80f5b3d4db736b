package native

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func auxvBytes(pairs ...uint64) []byte {
	b := make([]byte, 8*len(pairs))
	for i, v := range pairs {
		binary.LittleEndian.PutUint64(b[8*i:], v)
	}
	return b
}

func TestEntryPointFromAuxv(t *testing.T) {
	// AT_PAGESZ, AT_PHDR, AT_ENTRY, AT_NULL
	auxv := auxvBytes(6, 4096, 3, 0x555555554040, _AT_ENTRY, 0x555555555040, _AT_NULL, 0)
	assert.Equal(t, uint64(0x555555555040), EntryPointFromAuxv(auxv))

	assert.Zero(t, EntryPointFromAuxv(auxvBytes(6, 4096, _AT_NULL, 0, _AT_ENTRY, 1)))
	assert.Zero(t, EntryPointFromAuxv(nil))
	// truncated value
	assert.Zero(t, EntryPointFromAuxv(auxvBytes(_AT_ENTRY)[:8]))
}

func TestAppendWord(t *testing.T) {
	buf := appendWord(nil, 0x1122334455667788)
	assert.Equal(t, []byte{0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}, buf)
	assert.Equal(t, uint64(0x1122334455667788), wordFromBytes(buf))
}
