package relchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeSignature(t *testing.T) {
	assert.Equal(t, uint32(0x2), makeSignature(1, false))
	assert.Equal(t, uint32(0x3), makeSignature(1, true))
	// The top random bit is shifted out.
	assert.Equal(t, makeSignature(0x80000001, true), makeSignature(1, true))
}

func TestSameRole(t *testing.T) {
	assert.True(t, sameRole(makeSignature(1, true), makeSignature(2, true)))
	assert.False(t, sameRole(makeSignature(1, true), makeSignature(1, false)))
}

func TestOpensSession(t *testing.T) {
	assert.True(t, opensSession(header{sequenceID: 0, ackHead: 5}))
	assert.True(t, opensSession(header{sequenceID: noSequence, ackHead: 0}))
	assert.False(t, opensSession(header{sequenceID: noSequence, ackHead: 1}))
	assert.False(t, opensSession(header{sequenceID: 1, ackHead: 0}))
}

func TestUUIDSignatureSourceVaries(t *testing.T) {
	seen := make(map[uint32]bool)
	for i := 0; i < 16; i++ {
		seen[uuidSignatureSource()] = true
	}
	assert.Greater(t, len(seen), 1)
}
