package ice

import (
	"io"
	"math"
	"net"
	"time"
)

// ChannelConn implements net.Conn over the agent's selected candidate
// pair. The agent's read loop feeds it application-data datagrams; writes
// go straight out the selected pair's base socket.
type ChannelConn struct {
	base  *Base
	in    <-chan []byte
	raddr net.Addr

	rtimer *time.Timer
}

func newChannelConn(base *Base, in <-chan []byte, raddr net.Addr) *ChannelConn {
	return &ChannelConn{
		base:   base,
		in:     in,
		raddr:  raddr,
		rtimer: time.NewTimer(math.MaxInt64),
	}
}

func (c *ChannelConn) Read(b []byte) (int, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return 0, io.EOF
		}
		n := copy(b, data)
		return n, nil

	case <-c.rtimer.C:
		return 0, errReadTimeout
	}
}

func (c *ChannelConn) Write(b []byte) (int, error) {
	return c.base.WriteTo(b, c.raddr)
}

func (c *ChannelConn) Close() error {
	return nil
}

func (c *ChannelConn) LocalAddr() net.Addr {
	return c.base.LocalAddr()
}

func (c *ChannelConn) RemoteAddr() net.Addr {
	return c.raddr
}

func (c *ChannelConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

func (c *ChannelConn) SetReadDeadline(t time.Time) error {
	if !c.rtimer.Stop() {
		select {
		case <-c.rtimer.C:
		default:
		}
	}
	if !t.IsZero() {
		c.rtimer.Reset(time.Until(t))
	}
	return nil
}

func (c *ChannelConn) SetWriteDeadline(t time.Time) error {
	return c.base.SetWriteDeadline(t)
}
