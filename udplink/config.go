package udplink

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/nicosta1132/relchan"
)

type Config struct {
	// Tick is the interval between channel updates.
	Tick relchan.Duration `toml:"tick"`
	// PacketsPerSecond paces transmission. Zero disables pacing.
	PacketsPerSecond float64 `toml:"packets-per-second"`
	Burst            int     `toml:"burst"`
	// ReadBuffer sizes the kernel receive buffer of the socket.
	ReadBuffer int `toml:"read-buffer"`
	// Checksum appends a CRC-16 to every datagram and drops datagrams
	// whose CRC does not match. Both ends must agree.
	Checksum     bool             `toml:"checksum"`
	CloseTimeout relchan.Duration `toml:"close-timeout"`
}

func DefaultConfig() Config {
	return Config{
		Tick:         relchan.Duration(10 * time.Millisecond),
		Burst:        64,
		ReadBuffer:   4 * 1024 * 1024,
		Checksum:     true,
		CloseTimeout: relchan.Duration(5 * time.Second),
	}
}

func (cfg Config) Validate() error {
	var errs error
	if cfg.Tick <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("tick must be positive"))
	}
	if cfg.PacketsPerSecond < 0 {
		errs = multierror.Append(errs, fmt.Errorf("packets-per-second %v must not be negative", cfg.PacketsPerSecond))
	}
	if cfg.PacketsPerSecond > 0 && cfg.Burst < 1 {
		errs = multierror.Append(errs, fmt.Errorf("burst %d must be at least 1 when pacing", cfg.Burst))
	}
	if cfg.ReadBuffer < 0 {
		errs = multierror.Append(errs, fmt.Errorf("read-buffer %d must not be negative", cfg.ReadBuffer))
	}
	if cfg.CloseTimeout <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("close-timeout must be positive"))
	}
	return errs
}
