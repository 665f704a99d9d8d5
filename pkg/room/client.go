package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/knolabs/voicedesk/pkg/agent/types"
)

const (
	defaultPingInterval = 20 * time.Second
	defaultWriteTimeout = 5 * time.Second
	eventQueueSize      = 64
)

// Client is the WebSocket implementation of Room.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	writeMu      sync.Mutex
	writeTimeout time.Duration

	events    chan types.Event
	connected atomic.Bool
	closeOnce sync.Once

	speakSeq     atomic.Int64
	speakMu      sync.Mutex
	speakWaiters map[string]chan struct{}
}

// Options configures a room connection.
type Options struct {
	Token        string
	Logger       *slog.Logger
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// Dial connects to a room server and starts the read loop.
func Dial(ctx context.Context, roomURL string, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	header := http.Header{}
	if strings.TrimSpace(opts.Token) != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, roomURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial room: %w", err)
	}

	clientCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:         conn,
		logger:       opts.Logger,
		ctx:          clientCtx,
		cancel:       cancel,
		writeTimeout: opts.WriteTimeout,
		events:       make(chan types.Event, eventQueueSize),
		speakWaiters: make(map[string]chan struct{}),
	}
	c.connected.Store(true)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * opts.PingInterval))
	})
	_ = conn.SetReadDeadline(time.Now().Add(2 * opts.PingInterval))

	go c.readLoop()
	go c.pingLoop(opts.PingInterval)
	return c, nil
}

func (c *Client) Events() <-chan types.Event { return c.events }

func (c *Client) State() types.ConnectionState {
	if c.connected.Load() {
		return types.ConnConnected
	}
	return types.ConnDisconnected
}

// Say sends a speak frame and waits for the room's playback acknowledgement.
// Cancelling ctx stops playback (when allowInterrupt is set) and returns
// ctx.Err().
func (c *Client) Say(ctx context.Context, text string, allowInterrupt bool) error {
	if c.State() != types.ConnConnected {
		return fmt.Errorf("room is not connected")
	}
	speakID := "s" + strconv.FormatInt(c.speakSeq.Add(1), 10)

	done := make(chan struct{}, 1)
	c.speakMu.Lock()
	c.speakWaiters[speakID] = done
	c.speakMu.Unlock()
	defer func() {
		c.speakMu.Lock()
		delete(c.speakWaiters, speakID)
		c.speakMu.Unlock()
	}()

	if err := c.writeJSON(SpeakFrame{Type: FrameSpeak, SpeakID: speakID, Text: text, AllowInterrupt: allowInterrupt}); err != nil {
		return err
	}
	if err := c.writeJSON(ChatFrame{Type: FrameChat, Text: text}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if allowInterrupt {
			_ = c.writeJSON(SpeakCancelFrame{Type: FrameSpeakCancel, SpeakID: speakID})
		}
		return ctx.Err()
	case <-c.ctx.Done():
		return fmt.Errorf("room closed during playback")
	}
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		c.cancel()
		_ = c.conn.Close()
	})
	return nil
}

func (c *Client) readLoop() {
	defer func() {
		c.connected.Store(false)
		c.emit(types.ConnectionChanged{State: types.ConnDisconnected})
		close(c.events)
		c.cancel()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("room read failed", "error", err)
			}
			return
		}

		frame, err := DecodeInbound(data)
		if err != nil {
			c.logger.Warn("dropping room frame", "error", err)
			continue
		}

		switch frame.Type {
		case FrameTranscript:
			if frame.IsFinal && strings.TrimSpace(frame.Text) != "" {
				c.emit(types.Utterance{Text: strings.TrimSpace(frame.Text)})
			}
		case FrameChat:
			if strings.TrimSpace(frame.Text) != "" {
				c.emit(types.ChatText{Text: strings.TrimSpace(frame.Text)})
			}
		case FrameSpeakDone:
			c.speakMu.Lock()
			done, ok := c.speakWaiters[frame.SpeakID]
			c.speakMu.Unlock()
			if ok {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		case FrameBye:
			return
		}
	}
}

// emit delivers an event to the consumer without letting a stalled consumer
// wedge the read loop past teardown.
func (c *Client) emit(ev types.Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func (c *Client) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) writeJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal room frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write room frame: %w", err)
	}
	return nil
}
