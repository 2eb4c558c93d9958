package relchan

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Duration is a time.Duration that reads itself from strings such as
// "250ms" in configuration files.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) millis() int64 {
	return time.Duration(d).Milliseconds()
}

// Config holds the tunables of a Channel. Both peers should agree on
// OuterPacketSize; the other values are local policy.
type Config struct {
	// OuterPacketSize is the largest datagram handed to the transmitter,
	// header included.
	OuterPacketSize int `toml:"outer-packet-size"`

	InitialResendDelay Duration `toml:"initial-resend-delay"`
	MissedResendDelay  Duration `toml:"missed-resend-delay"`
	ResendStandOff     Duration `toml:"resend-standoff"`
	AckResendStandOff  Duration `toml:"ack-resend-standoff"`

	// SendWindowFull and UnackedDataLimit only drive the congestion flag.
	SendWindowFull   int `toml:"send-window-full"`
	UnackedDataLimit int `toml:"unacked-data-limit"`

	MaxStandOff    int `toml:"max-standoff"`
	MaxAckStandOff int `toml:"max-ack-standoff"`

	IdleTimeout       Duration `toml:"idle-timeout"`
	DisconnectTimeout Duration `toml:"disconnect-timeout"`
	DisconnectLoops   int      `toml:"disconnect-loops"`

	// Resendables bounds the candidates for ack-repair retransmissions.
	Resendables int `toml:"resendables"`

	// MaxReceiveAhead is how far past the next undelivered id a packet
	// may be. Anything further fails the channel.
	MaxReceiveAhead int `toml:"max-receive-ahead"`
}

func DefaultConfig() Config {
	return Config{
		OuterPacketSize:    1100,
		InitialResendDelay: Duration(1000 * time.Millisecond),
		MissedResendDelay:  Duration(250 * time.Millisecond),
		ResendStandOff:     Duration(128 * time.Millisecond),
		AckResendStandOff:  Duration(time.Millisecond),
		SendWindowFull:     2048,
		UnackedDataLimit:   1024 * 1024,
		MaxStandOff:        6,
		MaxAckStandOff:     6,
		IdleTimeout:        Duration(20 * time.Second),
		DisconnectTimeout:  Duration(3 * time.Second),
		DisconnectLoops:    10,
		Resendables:        5,
		MaxReceiveAhead:    1 << 16,
	}
}

// Validate reports every invalid field at once.
func (cfg Config) Validate() error {
	var errs error

	if cfg.OuterPacketSize <= HeaderSize {
		errs = multierror.Append(errs,
			fmt.Errorf("outer-packet-size %d must exceed the %d byte header", cfg.OuterPacketSize, HeaderSize))
	}
	if cfg.InitialResendDelay < 0 || cfg.MissedResendDelay < 0 || cfg.ResendStandOff < 0 || cfg.AckResendStandOff < 0 {
		errs = multierror.Append(errs, fmt.Errorf("resend delays must not be negative"))
	}
	if cfg.SendWindowFull <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("send-window-full %d must be positive", cfg.SendWindowFull))
	}
	if cfg.UnackedDataLimit <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("unacked-data-limit %d must be positive", cfg.UnackedDataLimit))
	}
	// The standoff is used as a shift amount.
	if cfg.MaxStandOff < 1 || cfg.MaxStandOff > 30 {
		errs = multierror.Append(errs, fmt.Errorf("max-standoff %d out of range [1, 30]", cfg.MaxStandOff))
	}
	if cfg.MaxAckStandOff < 0 || cfg.MaxAckStandOff > 30 {
		errs = multierror.Append(errs, fmt.Errorf("max-ack-standoff %d out of range [0, 30]", cfg.MaxAckStandOff))
	}
	if cfg.IdleTimeout <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("idle-timeout must be positive"))
	}
	if cfg.DisconnectTimeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("disconnect-timeout must not be negative"))
	}
	if cfg.DisconnectLoops < 1 || cfg.DisconnectLoops > 254 {
		errs = multierror.Append(errs, fmt.Errorf("disconnect-loops %d out of range [1, 254]", cfg.DisconnectLoops))
	}
	if cfg.Resendables < 0 {
		errs = multierror.Append(errs, fmt.Errorf("resendables %d must not be negative", cfg.Resendables))
	}
	if cfg.MaxReceiveAhead < 1 || cfg.MaxReceiveAhead > 1<<30 {
		errs = multierror.Append(errs, fmt.Errorf("max-receive-ahead %d out of range [1, 2^30]", cfg.MaxReceiveAhead))
	}

	return errs
}
