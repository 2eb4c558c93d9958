package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/nicosta1132/relchan"
	"github.com/nicosta1132/relchan/udplink"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Channel relchan.Config
	Link    udplink.Config
	Logging logConf
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

func defaultConfig() tomlConfig {
	return tomlConfig{
		Channel: relchan.DefaultConfig(),
		Link:    udplink.DefaultConfig(),
	}
}

// LoadConfig reads a TOML file on top of the defaults. An empty filename
// yields the defaults.
func LoadConfig(filename string) (conf tomlConfig, err error) {
	conf = defaultConfig()
	if filename != "" {
		if _, err = toml.DecodeFile(filename, &conf); err != nil {
			return
		}
	}

	if chanErr := conf.Channel.Validate(); chanErr != nil {
		err = multierror.Append(err, chanErr)
	}
	if linkErr := conf.Link.Validate(); linkErr != nil {
		err = multierror.Append(err, linkErr)
	}
	return
}

// setupLogging applies the [logging] table to the standard logger. Nothing
// changes unless the whole table is valid.
func setupLogging(conf logConf) error {
	level := log.InfoLevel
	if conf.Level != "" {
		var err error
		if level, err = log.ParseLevel(conf.Level); err != nil {
			return err
		}
	}

	var formatter log.Formatter
	switch conf.Format {
	case "", "text":
		formatter = &log.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"}
	case "json":
		formatter = &log.JSONFormatter{TimestampFormat: time.RFC3339Nano}
	default:
		return fmt.Errorf("unknown log format %q, expected text or json", conf.Format)
	}

	log.SetLevel(level)
	log.SetReportCaller(conf.ReportCaller)
	log.SetFormatter(formatter)
	return nil
}
