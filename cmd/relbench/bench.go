package main

import (
	"bytes"
	"fmt"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nicosta1132/relchan"
	"github.com/nicosta1132/relchan/linksim"
)

type scenario struct {
	Name string
	Link linksim.Config
	// Jitter is the largest simulated time step between ticks.
	Jitter time.Duration
}

type result struct {
	Scenario  string
	Completed bool
	Ticks     int
	Elapsed   time.Duration
	Client    relchan.Stats
	Server    relchan.Stats
	Link      linksim.Stats
}

func (r result) Throughput(size int) float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(size) / r.Elapsed.Seconds()
}

// peer is one simulated side of the transfer.
type peer struct {
	channel  *relchan.Channel
	received bytes.Buffer
}

func newPeer(serverSide bool, tx relchan.Transmitter, clock relchan.Clock, logger log.FieldLogger) (*peer, error) {
	p := &peer{}
	channel, err := relchan.NewChannel(serverSide, relchan.HeapAllocator{}, tx,
		relchan.ReceiveFunc(func(message []byte) { p.received.Write(message) }),
		relchan.WithClock(clock),
		relchan.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	p.channel = channel
	return p, nil
}

// runScenario sends size bytes from a client to a server over a simulated
// link and ticks both until everything is delivered and acknowledged, the
// channels disconnect, or maxTicks pass.
func runScenario(sc scenario, size, maxTicks int, logger log.FieldLogger) (result, error) {
	clock := relchan.NewManualClock(time.Unix(0, 0))
	link, err := linksim.New(sc.Link, clock)
	if err != nil {
		return result{}, err
	}

	client, err := newPeer(false, relchan.TransmitFunc(link.AtoB.TransmitPacket), clock, logger)
	if err != nil {
		return result{}, err
	}
	server, err := newPeer(true, relchan.TransmitFunc(link.BtoA.TransmitPacket), clock, logger)
	if err != nil {
		return result{}, err
	}
	defer client.channel.Dispose()
	defer server.channel.Dispose()

	data := make([]byte, size)
	rand.New(rand.NewSource(sc.Link.Seed)).Read(data)
	if err := client.channel.SendMessage(data); err != nil {
		return result{}, err
	}

	jitter := rand.New(rand.NewSource(sc.Link.Seed + 100))
	start := clock.Now()
	r := result{Scenario: sc.Name}
	for ; r.Ticks < maxTicks; r.Ticks++ {
		step := time.Millisecond
		if sc.Jitter > time.Millisecond {
			step += time.Duration(jitter.Int63n(int64(sc.Jitter - time.Millisecond)))
		}
		clock.Advance(step)

		if err := server.channel.Update(); err != nil {
			return r, err
		}
		if err := client.channel.Update(); err != nil {
			return r, err
		}
		// Protocol violations show up as Failed below.
		_ = link.Pump(server.channel.ReceivePacket, client.channel.ReceivePacket)

		if server.received.Len() == size && client.channel.Idle() {
			r.Completed = true
			break
		}
		if client.channel.Disconnected() || server.channel.Disconnected() {
			break
		}
	}

	r.Elapsed = clock.Now().Sub(start)
	r.Client = client.channel.Stats()
	r.Server = server.channel.Stats()
	r.Link = link.AtoB.Stats()
	if r.Completed && !bytes.Equal(data, server.received.Bytes()) {
		return r, fmt.Errorf("%s: delivered stream differs from the sent one", sc.Name)
	}
	return r, nil
}

func defaultScenarios(seed int64) []scenario {
	latency := func(cfg linksim.Config) linksim.Config {
		cfg.LatencyMin = 10 * time.Millisecond
		cfg.LatencyMax = 40 * time.Millisecond
		cfg.Seed = seed
		return cfg
	}
	return []scenario{
		{Name: "perfect", Link: latency(linksim.Config{})},
		{Name: "refuse 50%", Link: latency(linksim.Config{RefuseRate: 0.5})},
		{Name: "drop 1%", Link: latency(linksim.Config{DropRate: 0.01}), Jitter: 20 * time.Millisecond},
		{Name: "drop 5%", Link: latency(linksim.Config{DropRate: 0.05}), Jitter: 20 * time.Millisecond},
		{Name: "drop 10% reorder", Link: latency(linksim.Config{DropRate: 0.1, ReorderSpan: 8}), Jitter: 20 * time.Millisecond},
		{Name: "drop 20% dup 5%", Link: latency(linksim.Config{DropRate: 0.2, DuplicateRate: 0.05, ReorderSpan: 8}), Jitter: 20 * time.Millisecond},
	}
}
