package relchan

const (
	// WindowAckSize is the number of sequence ids covered by the ack bitmap.
	WindowAckSize      = 256
	windowAckBytesSize = WindowAckSize / 8

	// HeaderSize is the fixed header carried by every datagram.
	HeaderSize = 4 + 4 + 4 + windowAckBytesSize

	// metaPacketSize leaves room for one command byte and its argument.
	metaPacketSize = HeaderSize + 2
)

// Position marks a header field as a half-open byte range.
type Position struct {
	Start int
	End   int
}

var (
	signaturePosition = Position{0, 4}
	sequencePosition  = Position{4, 8}
	ackHeadPosition   = Position{8, 12}
	ackBitmapPosition = Position{12, HeaderSize}
	metaCommandOffset = HeaderSize
)

// noSequence marks a packet without payload: a pure ack or a meta command.
const noSequence int32 = -1

const (
	commandClose byte = 99 // 'c'
)
