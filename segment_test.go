package relchan

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type SegmentTestSuite struct {
	suite.Suite
}

func TestSegment(t *testing.T) {
	suite.Run(t, &SegmentTestSuite{})
}

func (suite *SegmentTestSuite) TestHeaderLayout() {
	packet := craftPacket(0x04030201, 0x0a, 0x0b, []int{0, 9, 255}, []byte("TEST"))
	suite.Equal([]byte{1, 2, 3, 4}, packet[0:4])
	suite.Equal([]byte{0x0a, 0, 0, 0}, packet[4:8])
	suite.Equal([]byte{0x0b, 0, 0, 0}, packet[8:12])
	suite.Equal(byte(0x01), packet[12])
	suite.Equal(byte(0x02), packet[13])
	suite.Equal(byte(0x80), packet[HeaderSize-1])
	suite.Equal("TEST", string(packet[HeaderSize:]))
}

func (suite *SegmentTestSuite) TestParseHeader() {
	packet := craftPacket(0xdeadbeef, 42, 40, []int{3}, []byte("x"))
	h, err := parseHeader(packet)
	suite.NoError(err)
	suite.Equal(uint32(0xdeadbeef), h.signature)
	suite.Equal(int32(42), h.sequenceID)
	suite.Equal(int32(40), h.ackHead)
	suite.True(h.hasPayload())
	suite.Equal(1, h.acks.Count())
	suite.True(h.acks.Get(3))
}

func (suite *SegmentTestSuite) TestParseNoSequence() {
	packet := craftPacket(2, noSequence, 0, nil, nil)
	suite.Equal([]byte{0xff, 0xff, 0xff, 0xff}, packet[4:8])
	h, err := parseHeader(packet)
	suite.NoError(err)
	suite.False(h.hasPayload())
}

func (suite *SegmentTestSuite) TestParseShortPacket() {
	_, err := parseHeader(make([]byte, HeaderSize-1))
	suite.ErrorIs(err, ErrProtocolViolation)
}

func (suite *SegmentTestSuite) TestCreateMetaSegment() {
	buffer := make([]byte, metaPacketSize)
	n := createMetaSegment(buffer, 6, false, 0)
	suite.Equal(HeaderSize, n)

	n = createMetaSegment(buffer, 6, true, 3)
	suite.Equal(metaPacketSize, n)
	suite.Equal(commandClose, buffer[metaCommandOffset])
	suite.Equal(byte(3), buffer[metaCommandOffset+1])

	h, err := parseHeader(buffer)
	suite.NoError(err)
	suite.Equal(uint32(6), h.signature)
	suite.Equal(noSequence, h.sequenceID)
}

func (suite *SegmentTestSuite) TestCloseLoopsSaturate() {
	buffer := make([]byte, metaPacketSize)
	createMetaSegment(buffer, 6, true, 1000)
	suite.Equal(byte(255), buffer[metaCommandOffset+1])
}
