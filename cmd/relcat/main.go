// relcat copies stdin to a relchan connection over UDP and the
// connection to stdout.
//
//	relcat [-config relcat.toml] -listen 127.0.0.1:7000
//	relcat [-config relcat.toml] 127.0.0.1:7000
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/nicosta1132/relchan/udplink"
)

func main() {
	configFile := flag.String("config", "", "TOML configuration file")
	listen := flag.String("listen", "", "wait for a peer on this address instead of dialing")
	flag.Parse()

	conf, err := LoadConfig(*configFile)
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Fatal("Failed to parse config")
	}
	if err := setupLogging(conf.Logging); err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Fatal("Failed to set up logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	endpoint, err := connect(ctx, conf, *listen, flag.Arg(0))
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Fatal("Failed to connect")
	}

	received := make(chan error, 1)
	go func() {
		_, err := io.Copy(os.Stdout, endpoint)
		received <- err
	}()
	go func() {
		if _, err := io.Copy(endpoint, os.Stdin); err != nil {
			log.WithError(err).Warn("Sending stdin failed")
		}
		// The peer sees the end of stdin as the end of the stream.
		if err := endpoint.Close(); err != nil {
			log.WithError(err).Warn("Closing connection failed")
		}
	}()

	select {
	case err = <-received:
		if err != nil {
			log.WithError(err).Warn("Connection broke")
		}
	case <-ctx.Done():
		log.Info("Shutting down..")
	}

	if err := endpoint.Close(); err != nil {
		log.WithError(err).Warn("Closing connection failed")
	}
}

func connect(ctx context.Context, conf tomlConfig, listen, address string) (*udplink.Endpoint, error) {
	if listen != "" {
		listener, err := udplink.Listen(listen, conf.Link, conf.Channel)
		if err != nil {
			return nil, err
		}
		log.WithField("address", listener.Addr().String()).Info("Waiting for a peer")
		endpoint, err := listener.Accept(ctx)
		if err != nil {
			_ = listener.Close()
		}
		return endpoint, err
	}

	if address == "" {
		return nil, errors.New("either -listen or a peer address is required")
	}
	return udplink.Dial(ctx, address, conf.Link, conf.Channel)
}
