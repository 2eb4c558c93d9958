// Package linksim simulates an unreliable datagram link between two
// endpoints: loss, duplication, reordering, latency, bounded queues and
// transmitters that refuse datagrams.
//
// A Link is driven by its owner. TransmitPacket queues datagrams, Pump
// delivers the ones that are due. Nothing runs in the background and a
// seeded source makes every run reproducible.
package linksim

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/nicosta1132/relchan/container"
)

// Clock tells the link what time it is. relchan.ManualClock satisfies it.
type Clock interface {
	Now() time.Time
}

type Config struct {
	// DropRate is the probability that a due datagram is lost.
	DropRate float64 `toml:"drop-rate"`
	// DuplicateRate is the probability that a delivered datagram stays
	// queued and is delivered again later.
	DuplicateRate float64 `toml:"duplicate-rate"`
	// RefuseRate is the probability that TransmitPacket reports congestion.
	RefuseRate float64 `toml:"refuse-rate"`
	// ReorderSpan picks the next datagram at random among the first
	// ReorderSpan due ones. Values below 2 keep the order.
	ReorderSpan int `toml:"reorder-span"`
	// Capacity bounds the queue, further datagrams are tail-dropped.
	// Zero means unbounded.
	Capacity int `toml:"capacity"`

	LatencyMin time.Duration `toml:"latency-min"`
	LatencyMax time.Duration `toml:"latency-max"`

	Seed int64 `toml:"seed"`
}

func (cfg Config) Validate() error {
	var errs error
	for name, rate := range map[string]float64{
		"drop-rate":   cfg.DropRate,
		"refuse-rate": cfg.RefuseRate,
	} {
		if rate < 0 || rate > 1 {
			errs = multierror.Append(errs, fmt.Errorf("%s %v out of range [0, 1]", name, rate))
		}
	}
	// A duplicate rate of 1 would never let a datagram leave the queue.
	if cfg.DuplicateRate < 0 || cfg.DuplicateRate >= 1 {
		errs = multierror.Append(errs, fmt.Errorf("duplicate-rate %v out of range [0, 1)", cfg.DuplicateRate))
	}
	if cfg.ReorderSpan < 0 {
		errs = multierror.Append(errs, fmt.Errorf("reorder-span %d must not be negative", cfg.ReorderSpan))
	}
	if cfg.Capacity < 0 {
		errs = multierror.Append(errs, fmt.Errorf("capacity %d must not be negative", cfg.Capacity))
	}
	if cfg.LatencyMin < 0 || cfg.LatencyMax < cfg.LatencyMin {
		errs = multierror.Append(errs, fmt.Errorf("latency range %v..%v is invalid", cfg.LatencyMin, cfg.LatencyMax))
	}
	return errs
}

type datagram struct {
	payload   []byte
	deliverAt time.Time
}

// Stats counts what happened to the datagrams of one direction.
type Stats struct {
	Sent       int
	Refused    int
	Overflowed int
	Dropped    int
	Delivered  int
	Duplicated int
}

// Direction carries datagrams from one endpoint to the other.
type Direction struct {
	cfg   Config
	clock Clock
	rng   *rand.Rand
	queue *container.Queue[datagram]
	stats Stats
}

func newDirection(cfg Config, clock Clock, seed int64) *Direction {
	return &Direction{
		cfg:   cfg,
		clock: clock,
		rng:   rand.New(rand.NewSource(seed)),
		queue: container.NewQueue[datagram](),
	}
}

// TransmitPacket copies packet into the link. It returns false when the
// simulated transmitter refuses it.
func (d *Direction) TransmitPacket(packet []byte) bool {
	if d.cfg.RefuseRate > 0 && d.rng.Float64() < d.cfg.RefuseRate {
		d.stats.Refused++
		return false
	}
	d.stats.Sent++
	if d.cfg.Capacity > 0 && d.queue.Len() >= d.cfg.Capacity {
		d.stats.Overflowed++
		return true
	}

	payload := make([]byte, len(packet))
	copy(payload, packet)
	d.queue.Enqueue(datagram{payload: payload, deliverAt: d.clock.Now().Add(d.latency())})
	return true
}

func (d *Direction) latency() time.Duration {
	spread := d.cfg.LatencyMax - d.cfg.LatencyMin
	if spread <= 0 {
		return d.cfg.LatencyMin
	}
	return d.cfg.LatencyMin + time.Duration(d.rng.Int63n(int64(spread)+1))
}

// pending counts the due datagrams among the first span queued ones.
func (d *Direction) pending(now time.Time, span int) int {
	n := 0
	for i := 0; i < span; i++ {
		dg, ok := d.queue.At(i)
		if !ok || dg.deliverAt.After(now) {
			break
		}
		n++
	}
	return n
}

// Step handles at most one due datagram: it is lost, delivered, or
// delivered and kept for a duplicate. It reports whether a datagram was
// due at all.
func (d *Direction) Step(deliver func([]byte) error) (bool, error) {
	span := d.cfg.ReorderSpan
	if span < 1 {
		span = 1
	}
	due := d.pending(d.clock.Now(), span)
	if due == 0 {
		return false, nil
	}

	index := 0
	if due > 1 {
		index = d.rng.Intn(due)
	}

	if d.cfg.DropRate > 0 && d.rng.Float64() < d.cfg.DropRate {
		d.queue.RemoveAt(index)
		d.stats.Dropped++
		return true, nil
	}

	dg, _ := d.queue.At(index)
	if d.cfg.DuplicateRate > 0 && d.rng.Float64() < d.cfg.DuplicateRate {
		d.stats.Duplicated++
	} else {
		d.queue.RemoveAt(index)
	}
	d.stats.Delivered++
	return true, deliver(dg.payload)
}

// Pump delivers until nothing is due.
func (d *Direction) Pump(deliver func([]byte) error) error {
	for {
		more, err := d.Step(deliver)
		if err != nil || !more {
			return err
		}
	}
}

// Len is the number of queued datagrams, due or not.
func (d *Direction) Len() int { return d.queue.Len() }

func (d *Direction) Stats() Stats { return d.stats }

// Link joins endpoint A and endpoint B.
type Link struct {
	AtoB *Direction
	BtoA *Direction
}

var ErrInvalidConfig = errors.New("linksim: invalid config")

// New builds a link whose directions share cfg but draw from separate
// random sources derived from cfg.Seed.
func New(cfg Config, clock Clock) (*Link, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &Link{
		AtoB: newDirection(cfg, clock, cfg.Seed),
		BtoA: newDirection(cfg, clock, cfg.Seed+1),
	}, nil
}

// Pump alternates between both directions, one datagram at a time, until
// neither has anything due. Delivery errors are collected, not fatal.
func (l *Link) Pump(toB, toA func([]byte) error) error {
	var errs error
	for {
		movedB, errB := l.AtoB.Step(toB)
		movedA, errA := l.BtoA.Step(toA)
		if errB != nil {
			errs = multierror.Append(errs, errB)
		}
		if errA != nil {
			errs = multierror.Append(errs, errA)
		}
		if !movedA && !movedB {
			return errs
		}
	}
}
