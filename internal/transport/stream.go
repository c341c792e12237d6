package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/danmuck/netcore/internal/logging"
	"github.com/danmuck/netcore/internal/observability"
	"github.com/danmuck/netcore/internal/protocol"
	"github.com/danmuck/netcore/internal/protocol/frame"
)

// readStream reads frames from nc until the peer goes away or a frame is
// rejected. The returned error is the close cause; nil means the peer closed
// cleanly or the connection was closed locally.
func readStream(ctx context.Context, c *Conn, nc net.Conn, readTimeout time.Duration, limits frame.Limits, recv Receiver) error {
	reader := bufio.NewReader(nc)
	for {
		if readTimeout > 0 {
			_ = nc.SetReadDeadline(time.Now().Add(readTimeout))
		}
		h, err := frame.ReadHeader(reader)
		if err != nil {
			return streamCause(c, err)
		}
		if err := limits.Check(h); err != nil {
			return rejectFrame(c, err)
		}
		if err := c.pipe.CheckSize(int(h.Length)); err != nil {
			return rejectFrame(c, err)
		}
		raw, err := frame.ReadRest(reader, h)
		if err != nil {
			return streamCause(c, err)
		}
		if err := c.handleFrame(ctx, raw, recv); err != nil {
			if protocol.Fatal(err) {
				return rejectFrame(c, err)
			}
			observability.RecordFrameError(c.transport, protocol.Classify(err).String())
		}
	}
}

func streamCause(c *Conn, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || c.State() != StateActive {
		return nil
	}
	if protocol.Classify(err) == protocol.ClassUnknown {
		return errors.Join(protocol.ErrTransport, err)
	}
	observability.RecordFrameError(c.transport, protocol.Classify(err).String())
	return err
}

func rejectFrame(c *Conn, err error) error {
	observability.RecordFrameError(c.transport, protocol.Classify(err).String())
	l := logging.For("transport")
	l.Warn().Str("conn", c.id).Str("remote", c.remote.String()).Err(err).Msg("transport.readStream rejected frame")
	return err
}
