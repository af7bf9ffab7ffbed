package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"challasaath/internal/protocol"
)

const writeWait = 10 * time.Second

type wsConn struct {
	ws   *websocket.Conn
	wmu  sync.Mutex
	recv chan protocol.Envelope
	done chan struct{}
	once sync.Once
}

// Websocket returns a Dialer connecting to the relay at url.
func Websocket(url string) Dialer {
	return func(ctx context.Context) (Transport, error) {
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		c := &wsConn{
			ws:   ws,
			recv: make(chan protocol.Envelope, 64),
			done: make(chan struct{}),
		}
		go c.readLoop()
		return c, nil
	}
}

func (c *wsConn) readLoop() {
	defer c.shutdown()
	for {
		var env protocol.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			return
		}
		select {
		case c.recv <- env:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) Send(env protocol.Envelope) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(env); err != nil {
		c.shutdown()
		return err
	}
	return nil
}

func (c *wsConn) Recv() <-chan protocol.Envelope { return c.recv }

func (c *wsConn) Done() <-chan struct{} { return c.done }

func (c *wsConn) Close() error {
	c.wmu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.wmu.Unlock()
	c.shutdown()
	return nil
}

func (c *wsConn) shutdown() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}
