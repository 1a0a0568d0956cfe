package ingest

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/pools"
	"github.com/imabhichow/duvet/pkg/regions"
)

// MarkFrame is one mark on the wire: sharded executors on other
// machines stream these to a collector that drains them into the
// engine. 20 bytes, all fields u32 big-endian.
type MarkFrame struct {
	File  regions.FileID
	Run   regions.RunID
	Start uint32
	End   uint32
	Label regions.Label
}

// MarkFrameSize is the fixed wire size of a mark frame.
const MarkFrameSize = 20

// ErrBadFrame reports a received message that is not a mark frame.
var ErrBadFrame = errors.New("malformed mark frame")

// EncodeMarkFrame serializes a frame.
func EncodeMarkFrame(f MarkFrame) []byte {
	b := pools.NewBufferBuilder(MarkFrameSize)
	b.WriteUint32BE(uint32(f.File))
	b.WriteUint32BE(uint32(f.Run))
	b.WriteUint32BE(f.Start)
	b.WriteUint32BE(f.End)
	b.WriteUint32BE(uint32(f.Label))
	return b.Bytes()
}

// DecodeMarkFrame parses a frame.
func DecodeMarkFrame(data []byte) (MarkFrame, error) {
	if len(data) != MarkFrameSize {
		return MarkFrame{}, fmt.Errorf("%w: %d bytes", ErrBadFrame, len(data))
	}
	return MarkFrame{
		File:  regions.FileID(binary.BigEndian.Uint32(data)),
		Run:   regions.RunID(binary.BigEndian.Uint32(data[4:])),
		Start: binary.BigEndian.Uint32(data[8:]),
		End:   binary.BigEndian.Uint32(data[12:]),
		Label: regions.Label(binary.BigEndian.Uint32(data[16:])),
	}, nil
}

// Listener receives raw frames from producers. Implementations wrap a
// pull socket; Recv blocks until a message or socket close.
type Listener interface {
	Recv() ([]byte, error)
	Close() error
}

// Sender streams frames to a collector. Implementations wrap a push
// socket.
type Sender interface {
	Send(f MarkFrame) error
	Close() error
}

// Collector drains mark frames from a listener into the engine.
type Collector struct {
	eng *regions.Engine
	in  *Ingestor
}

// NewCollector creates a collector inserting into the ingestor's engine.
func (in *Ingestor) NewCollector() *Collector {
	return &Collector{eng: in.eng, in: in}
}

// Run receives until the listener closes. Malformed frames are counted
// and dropped; insert failures stop the collector.
func (c *Collector) Run(l Listener) error {
	for {
		data, err := l.Recv()
		if err != nil {
			if isClosed(err) {
				return nil
			}
			return err
		}

		frame, err := DecodeMarkFrame(data)
		if err != nil {
			c.in.metrics.IngestBusFramesTotal.WithLabelValues("malformed").Inc()
			c.in.log.Warn("dropping malformed mark frame",
				logging.Int("bytes", len(data)))
			continue
		}

		scope := regions.Scope{File: frame.File, Run: frame.Run}
		span := regions.Span{Start: frame.Start, End: frame.End}
		if err := c.eng.Insert(scope, span, frame.Label); err != nil {
			c.in.metrics.IngestBusFramesTotal.WithLabelValues("error").Inc()
			return err
		}
		c.in.metrics.IngestBusFramesTotal.WithLabelValues("ok").Inc()
	}
}
