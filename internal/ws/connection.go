package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"veranda/internal/broadcast"
	"veranda/internal/models"

	"github.com/gorilla/websocket"
)

var (
	errConnectionClosed = errors.New("connection closed")
	errSendQueueFull    = errors.New("send queue is full")
)

type wsConnection interface {
	Close() error
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
}

type sessionHub interface {
	Connect(o broadcast.Outlet) string
	JoinRoom(connID, userID, roomID string, profile *models.Profile) error
	LeaveRoom(connID string) error
	SendMessage(connID, roomID string, draft models.Draft) (models.Message, error)
	RoomData(connID, roomID string) error
	Disconnect(connID string)
}

type State int

const (
	StateConnected State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type ConnectionConfig struct {
	SendQueueSize int
	WriteTimeout  time.Duration
}

// Connection is the server side of one client session. Frames from the
// client are handled one at a time, frames for the client are queued by
// Deliver and written by the same loop.
type Connection struct {
	ws           wsConnection
	hub          sessionHub
	userID       string
	connID       string
	writeTimeout time.Duration

	outbox    chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	state State
	mu    sync.Mutex
}

func NewConnection(
	hub sessionHub,
	ws wsConnection,
	userID string,
	config ConnectionConfig,
) *Connection {
	if config.SendQueueSize <= 0 {
		config.SendQueueSize = 256
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}

	c := &Connection{
		ws:           ws,
		hub:          hub,
		userID:       userID,
		writeTimeout: config.WriteTimeout,
		outbox:       make(chan []byte, config.SendQueueSize),
		done:         make(chan struct{}),
		state:        StateConnected,
	}
	c.connID = hub.Connect(c)
	return c
}

func (c *Connection) ID() string {
	return c.connID
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Deliver queues a frame for the client without blocking.
func (c *Connection) Deliver(frame []byte) error {
	select {
	case <-c.done:
		return errConnectionClosed
	default:
	}

	select {
	case c.outbox <- frame:
		return nil
	case <-c.done:
		return errConnectionClosed
	default:
		return errSendQueueFull
	}
}

// Close asks the session to terminate. Only the first reason is kept.
func (c *Connection) Close(reason error) {
	c.closeOnce.Do(func() {
		c.closeErr = reason
		close(c.done)
	})
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	fromClient := make(chan []byte)
	errorCh := make(chan error, 2)

	defer func() {
		cancel()
		c.setState(StateClosed)
		c.Close(nil)
		c.hub.Disconnect(c.connID)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		errorCh <- c.pumpMessages(ctx, fromClient)
		cancel()
	})

	wg.Go(func() {
		errorCh <- c.mainLoop(ctx, fromClient)
		cancel()
	})

	// Both loops return once ctx is done, the first result decides.
	err := <-errorCh
	_ = c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpMessages(ctx context.Context, fromClient chan<- []byte) error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		select {
		case fromClient <- data:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context, fromClient <-chan []byte) error {
	for {
		select {
		case data := <-fromClient:
			c.processClientEvent(data)
		case frame := <-c.outbox:
			if err := c.write(frame); err != nil {
				return err
			}
		case <-c.done:
			return c.closeErr
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) write(frame []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *Connection) processClientEvent(data []byte) {
	ev, err := models.DecodeClientEvent(data)
	if err != nil {
		slog.Warn("dropping malformed frame", "conn_id", c.connID, "user_id", c.userID, "error", err)
		return
	}

	switch ev.Type {
	case models.ClientEventJoinRoom:
		err = c.join(ev)
	case models.ClientEventLeaveRoom:
		err = c.leave()
	case models.ClientEventSendMessage:
		err = c.send(ev)
	case models.ClientEventGetRoomData:
		err = c.roomData(ev)
	}

	if err != nil {
		c.reject(ev.Type, err)
	}
}

func (c *Connection) requireState(want State, ev models.ClientEventType) error {
	if got := c.State(); got != want {
		return fmt.Errorf("%w: %s in state %s", models.ErrProtocolViolation, ev, got)
	}
	return nil
}

func (c *Connection) join(ev models.ClientEvent) error {
	if err := c.requireState(StateConnected, ev.Type); err != nil {
		return err
	}
	if err := c.hub.JoinRoom(c.connID, c.userID, ev.RoomID, ev.User); err != nil {
		return err
	}
	c.setState(StateJoined)
	return nil
}

func (c *Connection) leave() error {
	if err := c.requireState(StateJoined, models.ClientEventLeaveRoom); err != nil {
		return err
	}
	if err := c.hub.LeaveRoom(c.connID); err != nil {
		return err
	}
	c.setState(StateConnected)
	return nil
}

func (c *Connection) send(ev models.ClientEvent) error {
	if err := c.requireState(StateJoined, ev.Type); err != nil {
		return err
	}
	_, err := c.hub.SendMessage(c.connID, ev.RoomID, *ev.Message)
	return err
}

func (c *Connection) roomData(ev models.ClientEvent) error {
	if err := c.requireState(StateJoined, ev.Type); err != nil {
		return err
	}
	return c.hub.RoomData(c.connID, ev.RoomID)
}

// reject logs a failed request and reports it to this client only.
func (c *Connection) reject(ev models.ClientEventType, err error) {
	attrs := []any{"conn_id", c.connID, "user_id", c.userID, "event", ev, "error", err}
	if errors.Is(err, models.ErrWriteFailure) {
		slog.Error("request failed", attrs...)
	} else {
		slog.Warn("request rejected", attrs...)
	}

	frame, mErr := json.Marshal(models.ErrorEvent(err))
	if mErr != nil {
		slog.Error("failed to encode error event", "error", mErr)
		return
	}
	if dErr := c.Deliver(frame); dErr != nil {
		c.Close(fmt.Errorf("%w: %w", models.ErrDeliveryFailure, dErr))
	}
}
