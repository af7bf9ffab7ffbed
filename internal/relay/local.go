package relay

import (
	"errors"

	"challasaath/internal/protocol"
)

// ErrPeerClosed is returned when sending on a dropped local connection.
var ErrPeerClosed = errors.New("peer closed")

// LocalConn is an in-process connection to a hub. It satisfies the
// participant transport without a network in between.
type LocalConn struct {
	hub  *Hub
	peer *Peer
}

// Dial connects an in-process peer.
func (h *Hub) Dial(nickname string) *LocalConn {
	return &LocalConn{hub: h, peer: h.Connect(nickname)}
}

// Peer returns the relay-side peer.
func (c *LocalConn) Peer() *Peer { return c.peer }

func (c *LocalConn) Send(env protocol.Envelope) error {
	select {
	case <-c.peer.done:
		return ErrPeerClosed
	default:
	}
	c.hub.Handle(c.peer, env)
	return nil
}

func (c *LocalConn) Recv() <-chan protocol.Envelope { return c.peer.out }

func (c *LocalConn) Done() <-chan struct{} { return c.peer.done }

func (c *LocalConn) Close() error {
	c.hub.Disconnect(c.peer)
	return nil
}
