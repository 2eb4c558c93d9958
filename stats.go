package relchan

// Stats counts traffic of one channel since its creation.
type Stats struct {
	HeaderBytes       int64 // headers of transmitted data packets
	ContentBytes      int64 // payload bytes on first transmission
	ResendBytes       int64 // payload bytes of scheduled retransmissions
	ForcedResendBytes int64 // payload bytes retransmitted in place of a pure ack
	AckPacketBytes    int64 // pure ack and close packets, header included
	Refused           int64 // datagrams the transmitter refused
	PacketsReceived   int64
	PacketsDropped    int64 // foreign, unsynchronized or stale-session datagrams
	Delivered         int64 // payload bytes handed to the receiver
}

// TransmittedBytes is everything handed to the transmitter successfully.
func (s Stats) TransmittedBytes() int64 {
	return s.HeaderBytes + s.ContentBytes + s.ResendBytes + s.ForcedResendBytes + s.AckPacketBytes
}

// Overhead is the share of transmitted bytes that were not first-time
// payload.
func (s Stats) Overhead() float64 {
	total := s.TransmittedBytes()
	if total == 0 {
		return 0
	}
	return float64(total-s.ContentBytes) / float64(total)
}
