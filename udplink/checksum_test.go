package udplink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksumRoundTrip(t *testing.T) {
	datagram := appendChecksum(nil, []byte("payload"))
	assert.Len(t, datagram, len("payload")+checksumSize)

	packet, ok := verifyChecksum(datagram)
	assert.True(t, ok)
	assert.Equal(t, "payload", string(packet))
}

func TestChecksumDetectsCorruption(t *testing.T) {
	datagram := appendChecksum(nil, []byte("payload"))
	datagram[2] ^= 0x10
	_, ok := verifyChecksum(datagram)
	assert.False(t, ok)

	_, ok = verifyChecksum([]byte{1})
	assert.False(t, ok)
}

func TestAppendChecksumReusesBuffer(t *testing.T) {
	scratch := make([]byte, 0, 64)
	first := appendChecksum(scratch, []byte("first"))
	second := appendChecksum(first, []byte("2nd"))
	assert.Len(t, second, 3+checksumSize)
	assert.Same(t, &first[0], &second[0])
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Tick = 0
	cfg.PacketsPerSecond = 100
	cfg.Burst = 0
	assert.Error(t, cfg.Validate())
}
