// Package discord implements a minimal Discord gateway client: enough of the
// v10 websocket protocol to authenticate, heartbeat, and stream channel
// messages to a handler. Order submission must never run on the read loop;
// handlers are expected to dispatch their own workers.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"alertbot/internal/retry"
)

// DefaultGatewayURL is Discord's public gateway endpoint.
const DefaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// Gateway opcodes used by this client.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// Intents requested at identify time. Message content is a privileged intent
// and must be enabled in the bot's application settings.
const (
	intentGuilds         = 1 << 0
	intentGuildMessages  = 1 << 9
	intentMessageContent = 1 << 15
)

// Fatal close codes: reconnecting cannot help, the configuration is wrong.
var fatalCloseCodes = map[int]string{
	4004: "authentication failed",
	4010: "invalid shard",
	4011: "sharding required",
	4012: "invalid API version",
	4013: "invalid intents",
	4014: "disallowed intents",
}

// Message is a single inbound channel message, reduced to the fields the
// alert pipeline needs.
type Message struct {
	ID        string
	ChannelID string
	Content   string
	AuthorID  string
	AuthorBot bool
}

// MessageHandler receives every MESSAGE_CREATE dispatch. It runs on the
// gateway read loop and must return quickly.
type MessageHandler func(msg Message)

// Gateway maintains a websocket session against the Discord gateway,
// reconnecting with capped jittered backoff until its context is cancelled.
type Gateway struct {
	token   string
	url     string
	handler MessageHandler
	logger  *logrus.Logger
	dialer  *websocket.Dialer
	backoff retry.Policy

	writeMu sync.Mutex
	seq     atomic.Int64
}

// NewGateway creates a gateway client for the given bot token.
func NewGateway(token string, handler MessageHandler, logger *logrus.Logger) *Gateway {
	if logger == nil {
		logger = logrus.New()
	}
	return &Gateway{
		token:   token,
		url:     DefaultGatewayURL,
		handler: handler,
		logger:  logger,
		dialer:  websocket.DefaultDialer,
		backoff: retry.DefaultPolicy,
	}
}

// WithURL overrides the gateway endpoint (tests, proxies).
func (g *Gateway) WithURL(url string) *Gateway {
	if url != "" {
		g.url = url
	}
	return g
}

// WithBackoff overrides the reconnect backoff policy.
func (g *Gateway) WithBackoff(p retry.Policy) *Gateway {
	g.backoff = p
	return g
}

// payload is the envelope of every gateway frame.
type payload struct {
	Op   int             `json:"op"`
	Type string          `json:"t,omitempty"`
	Seq  *int64          `json:"s,omitempty"`
	Data json.RawMessage `json:"d,omitempty"`
}

// outbound frames carry structured data instead of raw JSON.
type outbound struct {
	Op   int `json:"op"`
	Data any `json:"d"`
}

type helloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

type identifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type messageCreateData struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	Author    struct {
		ID  string `json:"id"`
		Bot bool   `json:"bot"`
	} `json:"author"`
}

// Run connects to the gateway and processes events until ctx is cancelled,
// reconnecting on transient failures. It returns nil on cancellation and an
// error only for fatal close codes.
func (g *Gateway) Run(ctx context.Context) error {
	backoff := g.backoff.Initial
	for {
		if ctx.Err() != nil {
			return nil
		}
		g.logger.WithField("url", g.url).Info("connecting to gateway")
		connected, err := g.runSession(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && isFatalClose(err) {
			return fmt.Errorf("gateway session: %w", err)
		}
		if connected {
			backoff = g.backoff.Initial
		}
		g.logger.WithError(err).WithField("backoff", backoff).Warn("gateway disconnected, reconnecting")
		if err := retry.Sleep(ctx, backoff); err != nil {
			return nil
		}
		backoff = g.backoff.Next(backoff)
	}
}

// runSession drives one websocket connection: Hello, Identify, heartbeats,
// and dispatch. The returned bool reports whether the handshake completed,
// which resets the reconnect backoff.
func (g *Gateway) runSession(ctx context.Context) (bool, error) {
	conn, resp, err := g.dialer.DialContext(ctx, g.url, nil)
	if err != nil {
		return false, fmt.Errorf("dialing gateway: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() {
		if err := conn.Close(); err != nil {
			g.logger.WithError(err).Debug("closing gateway connection")
		}
	}()

	var hello payload
	if err := conn.ReadJSON(&hello); err != nil {
		return false, fmt.Errorf("reading hello: %w", err)
	}
	if hello.Op != opHello {
		return false, fmt.Errorf("expected hello opcode %d, got %d", opHello, hello.Op)
	}
	var hd helloData
	if err := json.Unmarshal(hello.Data, &hd); err != nil {
		return false, fmt.Errorf("decoding hello: %w", err)
	}
	if hd.HeartbeatInterval <= 0 {
		return false, fmt.Errorf("hello carries invalid heartbeat interval %d", hd.HeartbeatInterval)
	}

	identify := identifyData{
		Token:   g.token,
		Intents: intentGuilds | intentGuildMessages | intentMessageContent,
		Properties: identifyProperties{
			OS:      "linux",
			Browser: "alertbot",
			Device:  "alertbot",
		},
	}
	if err := g.writeJSON(conn, outbound{Op: opIdentify, Data: identify}); err != nil {
		return false, fmt.Errorf("sending identify: %w", err)
	}
	g.logger.Info("gateway handshake complete")

	// Unblock the blocking read when the context is cancelled, and stop the
	// heartbeat loop when the session ends.
	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-sessionDone:
		}
	}()
	go g.heartbeatLoop(conn, time.Duration(hd.HeartbeatInterval)*time.Millisecond, sessionDone)

	for {
		var p payload
		if err := conn.ReadJSON(&p); err != nil {
			return true, err
		}
		if p.Seq != nil {
			g.seq.Store(*p.Seq)
		}
		switch p.Op {
		case opDispatch:
			g.handleDispatch(p)
		case opHeartbeat:
			if err := g.sendHeartbeat(conn); err != nil {
				return true, err
			}
		case opHeartbeatACK:
			// Healthy; nothing to do.
		case opReconnect, opInvalidSession:
			return true, fmt.Errorf("gateway requested reconnect (op %d)", p.Op)
		}
	}
}

func (g *Gateway) handleDispatch(p payload) {
	if p.Type != "MESSAGE_CREATE" || g.handler == nil {
		return
	}
	var data messageCreateData
	if err := json.Unmarshal(p.Data, &data); err != nil {
		g.logger.WithError(err).Warn("failed to decode MESSAGE_CREATE")
		return
	}
	g.handler(Message{
		ID:        data.ID,
		ChannelID: data.ChannelID,
		Content:   data.Content,
		AuthorID:  data.Author.ID,
		AuthorBot: data.Author.Bot,
	})
}

func (g *Gateway) heartbeatLoop(conn *websocket.Conn, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := g.sendHeartbeat(conn); err != nil {
				g.logger.WithError(err).Warn("heartbeat write failed")
				_ = conn.Close()
				return
			}
		}
	}
}

func (g *Gateway) sendHeartbeat(conn *websocket.Conn) error {
	seq := g.seq.Load()
	var data any
	if seq > 0 {
		data = seq
	}
	return g.writeJSON(conn, outbound{Op: opHeartbeat, Data: data})
}

// writeJSON serializes writes: gorilla/websocket allows one concurrent
// writer, and the heartbeat loop shares the connection with the read loop.
func (g *Gateway) writeJSON(conn *websocket.Conn, v any) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return conn.WriteJSON(v)
}

// isFatalClose reports whether the session ended with a close code that no
// amount of reconnecting will fix.
func isFatalClose(err error) bool {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return false
	}
	_, fatal := fatalCloseCodes[closeErr.Code]
	return fatal
}
