package relchan

import (
	"bytes"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/suite"
)

type relchanTestSuite struct {
	suite.Suite
	clock *ManualClock
}

func (suite *relchanTestSuite) SetupTest() {
	suite.clock = NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}

func (suite *relchanTestSuite) handleTestError(err error) {
	suite.NoError(err, "Error occurred")
}

// trackingAllocator hands out numbered heap buffers and remembers which
// ones are still out.
type trackingAllocator struct {
	next           uint64
	live           map[uint64]int
	doubleReleases int
	allocations    int
}

func newTrackingAllocator() *trackingAllocator {
	return &trackingAllocator{live: make(map[uint64]int)}
}

func (a *trackingAllocator) Allocate(size int) Buffer {
	a.next++
	a.allocations++
	a.live[a.next] = size
	return Buffer{Handle: a.next, Data: make([]byte, size)}
}

func (a *trackingAllocator) Release(buf Buffer) {
	if _, ok := a.live[buf.Handle]; !ok {
		a.doubleReleases++
		return
	}
	delete(a.live, buf.Handle)
}

func (a *trackingAllocator) outstanding() int {
	return len(a.live)
}

// endpoint is one side of a test connection with everything it received.
type endpoint struct {
	channel  *Channel
	alloc    *trackingAllocator
	received bytes.Buffer
	errs     []error
	logHook  *logtest.Hook
}

func (e *endpoint) receivePacket(packet []byte) error {
	err := e.channel.ReceivePacket(packet)
	if err != nil {
		e.errs = append(e.errs, err)
	}
	return err
}

func (suite *relchanTestSuite) newEndpoint(serverSide bool, tx Transmitter, opts ...Option) *endpoint {
	e := &endpoint{alloc: newTrackingAllocator()}
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	e.logHook = hook

	opts = append([]Option{WithClock(suite.clock), WithLogger(logger)}, opts...)
	channel, err := NewChannel(serverSide, e.alloc, tx, ReceiveFunc(func(message []byte) {
		e.received.Write(message)
	}), opts...)
	suite.Require().NoError(err)
	e.channel = channel
	return e
}

// newLoopbackPair connects a client and a server whose datagrams pass
// through filter, delivered synchronously. A nil filter passes everything.
func (suite *relchanTestSuite) newLoopbackPair(filter func(packet []byte) bool, opts ...Option) (client, server *endpoint) {
	forward := func(to **endpoint) TransmitFunc {
		return func(packet []byte) bool {
			if filter != nil && !filter(packet) {
				return false
			}
			_ = (*to).receivePacket(packet)
			return true
		}
	}
	client = suite.newEndpoint(false, forward(&server), opts...)
	server = suite.newEndpoint(true, forward(&client), opts...)
	return
}

func (suite *relchanTestSuite) tick(step time.Duration, endpoints ...*endpoint) {
	suite.clock.Advance(step)
	for _, e := range endpoints {
		suite.handleTestError(e.channel.Update())
	}
}

// disposeAndCheckLeaks disposes every endpoint and asserts that each
// buffer was handed back exactly once.
func (suite *relchanTestSuite) disposeAndCheckLeaks(endpoints ...*endpoint) {
	for _, e := range endpoints {
		suite.NoError(e.channel.Dispose())
		suite.Zero(e.alloc.outstanding(), "buffers still allocated")
		suite.Zero(e.alloc.doubleReleases, "buffers released twice or never allocated")
	}
}

func randomData(seed int64, size int) []byte {
	data := make([]byte, size)
	rand.New(rand.NewSource(seed)).Read(data)
	return data
}

// craftPacket builds a datagram by hand, bypassing any channel.
func craftPacket(signature uint32, sequenceID, ackHead int32, acks []int, trailer []byte) []byte {
	packet := make([]byte, HeaderSize+len(trailer))
	setSignature(packet, signature)
	setSequenceID(packet, sequenceID)
	setAckHead(packet, ackHead)
	bitmap := ackBitmapOf(packet)
	for _, k := range acks {
		bitmap.Set(k)
	}
	copy(packet[HeaderSize:], trailer)
	return packet
}

func fixedSignature(stamp uint32) Option {
	return WithSignatureSource(func() uint32 { return stamp })
}

// capture records every datagram a channel transmits.
type capture struct {
	packets [][]byte
	refuse  bool
}

func (c *capture) TransmitPacket(packet []byte) bool {
	if c.refuse {
		return false
	}
	c.packets = append(c.packets, append([]byte(nil), packet...))
	return true
}

func (c *capture) headers() []header {
	var headers []header
	for _, p := range c.packets {
		h, _ := parseHeader(p)
		headers = append(headers, h)
	}
	return headers
}
