package linksim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

type LinkTestSuite struct {
	suite.Suite
	clock     *manualClock
	delivered [][]byte
}

func TestLink(t *testing.T) {
	suite.Run(t, new(LinkTestSuite))
}

func (suite *LinkTestSuite) SetupTest() {
	suite.clock = &manualClock{now: time.Unix(0, 0)}
	suite.delivered = nil
}

func (suite *LinkTestSuite) deliver(packet []byte) error {
	suite.delivered = append(suite.delivered, packet)
	return nil
}

func (suite *LinkTestSuite) newLink(cfg Config) *Link {
	link, err := New(cfg, suite.clock)
	suite.Require().NoError(err)
	return link
}

func (suite *LinkTestSuite) TestPerfectLinkKeepsOrder() {
	link := suite.newLink(Config{})
	for i := byte(0); i < 10; i++ {
		suite.True(link.AtoB.TransmitPacket([]byte{i}))
	}
	suite.NoError(link.AtoB.Pump(suite.deliver))

	suite.Len(suite.delivered, 10)
	for i, p := range suite.delivered {
		suite.Equal([]byte{byte(i)}, p)
	}
	suite.Zero(link.AtoB.Len())
	suite.Equal(10, link.AtoB.Stats().Delivered)
}

func (suite *LinkTestSuite) TestTransmitCopies() {
	link := suite.newLink(Config{})
	packet := []byte("abc")
	link.AtoB.TransmitPacket(packet)
	packet[0] = 'x'
	suite.NoError(link.AtoB.Pump(suite.deliver))
	suite.Equal("abc", string(suite.delivered[0]))
}

func (suite *LinkTestSuite) TestLatency() {
	link := suite.newLink(Config{LatencyMin: 10 * time.Millisecond, LatencyMax: 10 * time.Millisecond})
	link.AtoB.TransmitPacket([]byte{1})

	suite.clock.now = suite.clock.now.Add(9 * time.Millisecond)
	suite.NoError(link.AtoB.Pump(suite.deliver))
	suite.Empty(suite.delivered)

	suite.clock.now = suite.clock.now.Add(time.Millisecond)
	suite.NoError(link.AtoB.Pump(suite.deliver))
	suite.Len(suite.delivered, 1)
}

func (suite *LinkTestSuite) TestDropEverything() {
	link := suite.newLink(Config{DropRate: 1})
	for i := 0; i < 5; i++ {
		link.AtoB.TransmitPacket([]byte{1})
	}
	suite.NoError(link.AtoB.Pump(suite.deliver))
	suite.Empty(suite.delivered)
	suite.Equal(5, link.AtoB.Stats().Dropped)
}

func (suite *LinkTestSuite) TestRefuse() {
	link := suite.newLink(Config{RefuseRate: 1})
	suite.False(link.AtoB.TransmitPacket([]byte{1}))
	suite.Zero(link.AtoB.Len())
	suite.Equal(1, link.AtoB.Stats().Refused)
}

func (suite *LinkTestSuite) TestCapacityTailDrops() {
	link := suite.newLink(Config{Capacity: 2})
	for i := 0; i < 4; i++ {
		suite.True(link.AtoB.TransmitPacket([]byte{byte(i)}))
	}
	suite.Equal(2, link.AtoB.Len())
	suite.Equal(2, link.AtoB.Stats().Overflowed)
}

func (suite *LinkTestSuite) TestReorderAndDuplicate() {
	link := suite.newLink(Config{ReorderSpan: 8, DuplicateRate: 0.3, Seed: 3})
	for i := 0; i < 100; i++ {
		link.AtoB.TransmitPacket([]byte{byte(i)})
	}
	suite.NoError(link.AtoB.Pump(suite.deliver))

	seen := make(map[byte]int)
	inOrder := true
	for i, p := range suite.delivered {
		seen[p[0]]++
		if i > 0 && p[0] < suite.delivered[i-1][0] {
			inOrder = false
		}
	}
	suite.Len(seen, 100)
	suite.False(inOrder)
	suite.Greater(len(suite.delivered), 100)
	suite.Equal(len(suite.delivered)-100, link.AtoB.Stats().Duplicated)
}

func (suite *LinkTestSuite) TestSeedReproducible() {
	run := func() [][]byte {
		suite.delivered = nil
		link := suite.newLink(Config{ReorderSpan: 4, DropRate: 0.2, Seed: 11})
		for i := 0; i < 50; i++ {
			link.AtoB.TransmitPacket([]byte{byte(i)})
		}
		suite.NoError(link.AtoB.Pump(suite.deliver))
		return suite.delivered
	}
	suite.Equal(run(), run())
}

func (suite *LinkTestSuite) TestLinkPumpsBothDirections() {
	link := suite.newLink(Config{})
	link.AtoB.TransmitPacket([]byte("to b"))
	link.BtoA.TransmitPacket([]byte("to a"))

	var atB, atA []string
	suite.NoError(link.Pump(
		func(p []byte) error { atB = append(atB, string(p)); return nil },
		func(p []byte) error { atA = append(atA, string(p)); return nil },
	))
	suite.Equal([]string{"to b"}, atB)
	suite.Equal([]string{"to a"}, atA)
}

func (suite *LinkTestSuite) TestInvalidConfig() {
	_, err := New(Config{DropRate: -0.1, DuplicateRate: 1, LatencyMin: time.Second}, suite.clock)
	suite.ErrorIs(err, ErrInvalidConfig)
}
