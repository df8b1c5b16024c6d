package signalr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var errConnectionClosed = errors.New("hub connection closed")

// conn is one established hub connection. It is discarded on drop; the Client
// dials a fresh one.
type conn struct {
	ws            *websocket.Conn
	notifyTarget  string
	onMessage     func(json.RawMessage)
	keepAlive     time.Duration
	serverTimeout time.Duration

	// records received in the handshake frame after the handshake response
	leftover [][]byte

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	pending map[string]chan error
	err     error

	done   chan struct{}
	runErr error
}

func newConn(ws *websocket.Conn, c *Client, leftover [][]byte) *conn {
	return &conn{
		ws:            ws,
		notifyTarget:  c.notifyTarget,
		onMessage:     c.dispatchMessage,
		keepAlive:     c.keepAlive,
		serverTimeout: c.serverTimeout,
		leftover:      leftover,
		pending:       make(map[string]chan error),
		done:          make(chan struct{}),
	}
}

// start services the connection in the background so invocations can complete.
func (c *conn) start(ctx context.Context) {
	go func() {
		c.runErr = c.run(ctx)
		close(c.done)
	}()
}

// wait blocks until the connection started by start has ended.
func (c *conn) wait() error {
	<-c.done
	return c.runErr
}

// run services the connection until it drops or ctx is cancelled.
func (c *conn) run(ctx context.Context) error {
	readErr := make(chan error, 1)
	go func() { readErr <- c.readLoop() }()

	ticker := time.NewTicker(c.keepAlive)
	defer ticker.Stop()

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			_ = c.send(closeMessage{Type: typeClose})
			err = ctx.Err()
			break loop
		case err = <-readErr:
			break loop
		case <-ticker.C:
			if sendErr := c.send(pingMessage{Type: typePing}); sendErr != nil {
				err = fmt.Errorf("send keep-alive: %w", sendErr)
				break loop
			}
		}
	}

	_ = c.ws.Close()
	c.fail(err)
	return err
}

func (c *conn) readLoop() error {
	for _, rec := range c.leftover {
		if err := c.handleRecord(rec); err != nil {
			return err
		}
	}
	c.leftover = nil

	for {
		if err := c.ws.SetReadDeadline(time.Now().Add(c.serverTimeout)); err != nil {
			return err
		}
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("read hub frame: %w", err)
		}
		for _, rec := range splitRecords(frame) {
			if err := c.handleRecord(rec); err != nil {
				return err
			}
		}
	}
}

func (c *conn) handleRecord(rec []byte) error {
	msg, err := decodeMessage(rec)
	if err != nil {
		return err
	}

	switch msg.Type {
	case typeInvocation:
		if strings.EqualFold(msg.Target, c.notifyTarget) {
			for _, arg := range msg.Arguments {
				c.onMessage(arg)
			}
		}
	case typeCompletion:
		c.complete(msg.InvocationID, msg.Error)
	case typeClose:
		if msg.Error != "" {
			return fmt.Errorf("hub closed connection: %s", msg.Error)
		}
		return errConnectionClosed
	case typePing:
	}
	return nil
}

// invoke calls a hub method and waits for its completion.
func (c *conn) invoke(ctx context.Context, target string, args ...any) error {
	id := strconv.FormatInt(c.nextID.Add(1), 10)
	done := make(chan error, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.pending[id] = done
	c.mu.Unlock()

	if args == nil {
		args = []any{}
	}
	if err := c.send(invocationMessage{Type: typeInvocation, InvocationID: id, Target: target, Arguments: args}); err != nil {
		c.forget(id)
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	}
}

func (c *conn) send(v any) error {
	rec, err := encodeRecord(v)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, rec)
}

func (c *conn) complete(id, errText string) {
	c.mu.Lock()
	done, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if !ok {
		return
	}
	if errText != "" {
		done <- fmt.Errorf("hub invocation failed: %s", errText)
		return
	}
	done <- nil
}

func (c *conn) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

// fail resolves every pending invocation with err and rejects new ones.
func (c *conn) fail(err error) {
	if err == nil {
		err = errConnectionClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
	for id, done := range c.pending {
		done <- err
		delete(c.pending, id)
	}
}
