package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"camfeed/native/internal/domain"
)

const (
	defaultPingInterval     = 20 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	sendQueueSize           = 64
)

var errNotOpen = errors.New("channel not open")

// Option configures a Channel.
type Option func(*Channel)

// WithPingInterval sets the keepalive ping period.
func WithPingInterval(d time.Duration) Option {
	return func(c *Channel) { c.pingInterval = d }
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Channel) { c.writeTimeout = d }
}

// WithHandshakeTimeout bounds the WebSocket handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Channel) { c.dialer.HandshakeTimeout = d }
}

// Channel is a domain.Channel over a single WebSocket connection.
// It never reconnects.
type Channel struct {
	endpoint     string
	dialer       websocket.Dialer
	pingInterval time.Duration
	writeTimeout time.Duration

	onOpen    func()
	onMessage func(domain.Message)
	onClose   func()
	onError   func(error)

	mu      sync.Mutex
	conn    *websocket.Conn
	opened  bool
	started bool
	send    chan []byte

	closed     chan struct{}
	closeOnce  sync.Once
	notifyOnce sync.Once
}

// NewChannel creates a channel to endpoint. Nothing is dialed until Open.
func NewChannel(endpoint string, opts ...Option) *Channel {
	c := &Channel{
		endpoint:     endpoint,
		dialer:       websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout},
		pingInterval: defaultPingInterval,
		writeTimeout: defaultWriteTimeout,
		send:         make(chan []byte, sendQueueSize),
		closed:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) OnOpen(fn func())                  { c.onOpen = fn }
func (c *Channel) OnMessage(fn func(domain.Message)) { c.onMessage = fn }
func (c *Channel) OnClose(fn func())                 { c.onClose = fn }
func (c *Channel) OnError(fn func(error))            { c.onError = fn }

// Open dials the endpoint in the background. OnOpen fires once the
// handshake completes; a failed dial fires OnError then OnClose.
// Calling Open more than once has no effect.
func (c *Channel) Open(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.dial(ctx)
}

func (c *Channel) dial(ctx context.Context) {
	log.Info().Str("module", "signal").Str("endpoint", c.endpoint).Msg("connecting")

	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		c.reportError(fmt.Errorf("%w: websocket dial: %v", domain.ErrChannel, err))
		c.Close()
		c.notifyClosed()
		return
	}

	c.mu.Lock()
	select {
	case <-c.closed:
		// Closed while dialing.
		c.mu.Unlock()
		conn.Close()
		c.notifyClosed()
		return
	default:
	}
	c.conn = conn
	c.opened = true
	c.mu.Unlock()

	log.Info().Str("module", "signal").Str("endpoint", c.endpoint).Msg("connected")
	if c.onOpen != nil {
		c.onOpen()
	}

	go c.writeLoop(conn)
	go c.pingLoop(conn)
	c.readLoop(conn)
}

// Send marshals msg and queues it for the write loop.
func (c *Channel) Send(msg domain.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.reportErrorAsync(fmt.Errorf("%w: marshal %s: %v", domain.ErrChannel, msg.Type, err))
		return
	}

	c.mu.Lock()
	opened := c.opened
	c.mu.Unlock()

	select {
	case <-c.closed:
		c.reportErrorAsync(fmt.Errorf("%w: send %s: channel closed", domain.ErrChannel, msg.Type))
		return
	default:
	}
	if !opened {
		c.reportErrorAsync(fmt.Errorf("%w: send %s: %v", domain.ErrChannel, msg.Type, errNotOpen))
		return
	}

	select {
	case c.send <- data:
		log.Debug().Str("module", "signal").Str("type", string(msg.Type)).Msg(">>> queued")
	case <-c.closed:
		c.reportErrorAsync(fmt.Errorf("%w: send %s: channel closed", domain.ErrChannel, msg.Type))
	default:
		c.reportErrorAsync(fmt.Errorf("%w: send %s: queue full", domain.ErrChannel, msg.Type))
	}
}

// Close shuts down the WebSocket connection. It is safe to call on a
// channel that was never opened and safe to call repeatedly.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			conn.Close()
		}
	})
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	defer func() {
		c.Close()
		c.notifyClosed()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info().Str("module", "signal").Msg("counterpart closed connection")
				return
			}
			c.reportError(fmt.Errorf("%w: read: %v", domain.ErrChannel, err))
			return
		}

		log.Debug().Str("module", "signal").Int("bytes", len(data)).Msg("<<< received")

		var msg domain.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reportError(fmt.Errorf("%w: unmarshal: %v", domain.ErrChannel, err))
			continue
		}
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

func (c *Channel) writeLoop(conn *websocket.Conn) {
	for {
		select {
		case <-c.closed:
			return
		case data := <-c.send:
			c.mu.Lock()
			err := conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err == nil {
				err = conn.WriteMessage(websocket.TextMessage, data)
			}
			c.mu.Unlock()
			if err != nil {
				select {
				case <-c.closed:
					return
				default:
				}
				c.reportError(fmt.Errorf("%w: write: %v", domain.ErrChannel, err))
				c.Close()
				return
			}
		}
	}
}

func (c *Channel) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := conn.WriteControl(
				websocket.PingMessage,
				[]byte{},
				time.Now().Add(c.writeTimeout),
			)
			c.mu.Unlock()
			if err != nil {
				select {
				case <-c.closed:
					return
				default:
					log.Warn().Err(err).Str("module", "signal").Msg("ping error")
					return
				}
			}
		}
	}
}

func (c *Channel) reportError(err error) {
	log.Error().Err(err).Str("module", "signal").Msg("channel error")
	if c.onError != nil {
		c.onError(err)
	}
}

// reportErrorAsync keeps OnError off the caller's stack.
func (c *Channel) reportErrorAsync(err error) {
	go c.reportError(err)
}

func (c *Channel) notifyClosed() {
	c.notifyOnce.Do(func() {
		log.Info().Str("module", "signal").Msg("connection closed")
		if c.onClose != nil {
			c.onClose()
		}
	})
}
