// Package stream carries modulated frames over RTP as uncompressed L16
// audio (RFC 3551), so a frame can be played straight into a receiver's
// audio path instead of through a WAV file.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/pion/rtp"

	"github.com/teslashibe/tonelink/internal/log"
	"github.com/teslashibe/tonelink/pkg/pcm"
)

// Static payload type for L16 mono at 44.1 kHz. Other rates use
// PayloadTypeDynamic. A 10 ms packet at 44.1 kHz is 882 bytes, which stays
// under a 1500 byte Ethernet MTU.
const (
	PayloadTypeL16Mono  uint8 = 11
	PayloadTypeDynamic  uint8 = 96
	StaticClockRate           = 44100
	DefaultPacketLength       = 10 * time.Millisecond
)

var (
	// ErrInvalidParams is returned for a non-positive rate or packet length.
	ErrInvalidParams = errors.New("stream: invalid parameters")

	// ErrClosed is returned when sending on a closed sender.
	ErrClosed = errors.New("stream: sender closed")
)

// Packetizer splits samples into RTP packets with continuous sequence
// numbers and timestamps. It is not safe for concurrent use.
type Packetizer struct {
	ssrc        uint32
	payloadType uint8
	perPacket   int
	sequencer   rtp.Sequencer
	timestamp   uint32
}

// NewPacketizer returns a packetizer for mono samples at sampleRate, cut
// into packets of the given length.
func NewPacketizer(sampleRate int, length time.Duration, ssrc uint32) (*Packetizer, error) {
	if sampleRate <= 0 || length <= 0 {
		return nil, fmt.Errorf("%w: rate %d, packet length %v", ErrInvalidParams, sampleRate, length)
	}
	n := int(int64(sampleRate) * int64(length) / int64(time.Second))
	if n < 1 {
		return nil, fmt.Errorf("%w: packet length %v holds no samples", ErrInvalidParams, length)
	}

	pt := PayloadTypeDynamic
	if sampleRate == StaticClockRate {
		pt = PayloadTypeL16Mono
	}
	return &Packetizer{
		ssrc:        ssrc,
		payloadType: pt,
		perPacket:   n,
		sequencer:   rtp.NewRandomSequencer(),
	}, nil
}

// SamplesPerPacket returns the number of samples in a full packet.
func (p *Packetizer) SamplesPerPacket() int {
	return p.perPacket
}

// PayloadType returns the RTP payload type in use.
func (p *Packetizer) PayloadType() uint8 {
	return p.payloadType
}

// Packetize cuts samples into packets. The first packet carries the marker
// bit to flag the start of a talkspurt.
func (p *Packetizer) Packetize(samples []int16) []*rtp.Packet {
	pkts := make([]*rtp.Packet, 0, (len(samples)+p.perPacket-1)/p.perPacket)
	for off := 0; off < len(samples); off += p.perPacket {
		end := min(off+p.perPacket, len(samples))
		pkts = append(pkts, &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         off == 0,
				PayloadType:    p.payloadType,
				SequenceNumber: p.sequencer.NextSequenceNumber(),
				Timestamp:      p.timestamp,
				SSRC:           p.ssrc,
			},
			Payload: pcm.SamplesToBigEndian(samples[off:end]),
		})
		p.timestamp += uint32(end - off)
	}
	return pkts
}

// Depacketize concatenates the L16 payloads of pkts in the given order.
func Depacketize(pkts []*rtp.Packet) []int16 {
	var out []int16
	for _, pkt := range pkts {
		out = append(out, pcm.BigEndianToSamples(pkt.Payload)...)
	}
	return out
}

// Sender writes packets to a UDP peer, paced at real time by default.
type Sender struct {
	conn   net.Conn
	pkt    *Packetizer
	length time.Duration
	paced  bool
	logger *slog.Logger
	closed bool
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithoutPacing sends packets back to back.
func WithoutPacing() SenderOption {
	return func(s *Sender) {
		s.paced = false
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SenderOption {
	return func(s *Sender) {
		s.logger = l
	}
}

// Dial connects a sender to target (host:port).
func Dial(ctx context.Context, target string, sampleRate int, length time.Duration, ssrc uint32, opts ...SenderOption) (*Sender, error) {
	p, err := NewPacketizer(sampleRate, length, ssrc)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", target)
	if err != nil {
		return nil, fmt.Errorf("stream: dial %s: %w", target, err)
	}

	s := &Sender{conn: conn, pkt: p, length: length, paced: true}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = log.L()
	}
	s.logger = s.logger.With("target", target, "ssrc", ssrc)
	return s, nil
}

// Send packetizes samples and writes every packet. It returns early with
// ctx's error if ctx is canceled.
func (s *Sender) Send(ctx context.Context, samples []int16) error {
	if s.closed {
		return ErrClosed
	}
	pkts := s.pkt.Packetize(samples)

	var tick *time.Ticker
	if s.paced {
		tick = time.NewTicker(s.length)
		defer tick.Stop()
	}

	for i, pkt := range pkts {
		if i > 0 && tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		buf, err := pkt.Marshal()
		if err != nil {
			return fmt.Errorf("stream: marshal packet %d: %w", pkt.SequenceNumber, err)
		}
		if _, err := s.conn.Write(buf); err != nil {
			return fmt.Errorf("stream: write packet %d: %w", pkt.SequenceNumber, err)
		}
	}

	s.logger.Debug("frame sent", "packets", len(pkts), "samples", len(samples))
	return nil
}

// Close releases the socket.
func (s *Sender) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// Receive reads packets from conn until n have arrived or ctx is done.
// Malformed datagrams are skipped. Cancelling ctx unblocks a pending read
// by moving the read deadline of conn into the past.
func Receive(ctx context.Context, conn net.PacketConn, n int) ([]*rtp.Packet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	buf := make([]byte, 65535)
	pkts := make([]*rtp.Packet, 0, n)
	for len(pkts) < n {
		m, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return pkts, ctx.Err()
			}
			return pkts, fmt.Errorf("stream: read: %w", err)
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(append([]byte(nil), buf[:m]...)); err != nil {
			continue
		}
		pkts = append(pkts, pkt)
	}
	return pkts, nil
}
