package relchan

import "errors"

var (
	// ErrDisposed is returned by every operation on a disposed channel.
	ErrDisposed = errors.New("relchan: channel disposed")

	// ErrClosing is returned by SendMessage once the close handshake started.
	ErrClosing = errors.New("relchan: channel is disconnecting")

	// ErrEmptyPacket is returned when ReceivePacket is fed a zero-length datagram.
	ErrEmptyPacket = errors.New("relchan: empty packet")

	// ErrNilCollaborator is returned by NewChannel for a missing allocator,
	// transmitter or receiver.
	ErrNilCollaborator = errors.New("relchan: nil collaborator")

	// ErrProtocolViolation wraps every error that marks the channel failed.
	ErrProtocolViolation = errors.New("relchan: protocol violation")
)
