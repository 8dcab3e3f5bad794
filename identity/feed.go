package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Frame event names exchanged with the auth-state stream.
const (
	EventSignedIn  = "signed_in"
	EventSignedOut = "signed_out"
	EventSignOut   = "sign_out"
)

// ErrFeedDisconnected is returned by [Feed.SignOut] while no stream
// connection is open.
var ErrFeedDisconnected = errors.New("identity feed disconnected")

// FeedConfig controls the auth-state stream connection.
type FeedConfig struct {
	URL            string
	Header         http.Header
	ReconnectDelay time.Duration
	WriteTimeout   time.Duration
}

type feedFrame struct {
	Event   string `json:"event"`
	IDToken string `json:"id_token,omitempty"`
}

// Feed follows a websocket auth-state stream and republishes it through its
// embedded [Emitter]. Signed-in frames carry an ID token that must pass the
// [Verifier]; frames that fail verification are dropped and do not change the
// reported state.
type Feed struct {
	*Emitter

	cfg      FeedConfig
	verifier *Verifier
	dialer   *websocket.Dialer
	logger   logrus.FieldLogger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewFeed validates cfg and returns an unconnected [Feed]. Call Run to
// connect.
func NewFeed(cfg FeedConfig, verifier *Verifier, logger logrus.FieldLogger) (*Feed, error) {
	if cfg.URL == "" {
		return nil, errors.New("feed URL required")
	}
	if verifier == nil {
		return nil, errors.New("feed verifier required")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Feed{
		Emitter:  NewEmitter(),
		cfg:      cfg,
		verifier: verifier,
		dialer:   websocket.DefaultDialer,
		logger:   logger.WithField("component", "identity_feed"),
	}, nil
}

// Run connects to the stream and processes frames until ctx is done,
// reconnecting after ReconnectDelay whenever the connection drops. It always
// returns ctx.Err().
func (f *Feed) Run(ctx context.Context) error {
	for {
		conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, f.cfg.Header)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.WithError(err).Warn("civix: identity feed dial failed")
		} else {
			f.setConn(conn)
			err = f.read(ctx, conn)
			f.setConn(nil)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.WithError(err).Warn("civix: identity feed connection lost")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.cfg.ReconnectDelay):
		}
	}
}

// SignOut asks the hosted provider to end its session, then reports the
// signed-out state locally.
func (f *Feed) SignOut(ctx context.Context) error {
	f.mu.Lock()
	conn := f.conn
	if conn == nil {
		f.mu.Unlock()
		return ErrFeedDisconnected
	}

	deadline := time.Now().Add(f.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	err := conn.WriteJSON(feedFrame{Event: EventSignOut})
	f.mu.Unlock()
	if err != nil {
		return fmt.Errorf("send sign-out: %w", err)
	}

	f.MarkSignedOut()
	return nil
}

// Connected reports whether a stream connection is open.
func (f *Feed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn != nil
}

func (f *Feed) setConn(conn *websocket.Conn) {
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
}

func (f *Feed) read(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var frame feedFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			f.logger.WithError(err).Warn("civix: dropped malformed identity feed frame")
			continue
		}
		f.handle(frame)
	}
}

func (f *Feed) handle(frame feedFrame) {
	switch frame.Event {
	case EventSignedIn:
		id, err := f.verifier.Verify(frame.IDToken)
		if err != nil {
			f.logger.WithError(err).Warn("civix: dropped signed_in frame")
			return
		}
		f.SignIn(*id)
	case EventSignedOut:
		f.MarkSignedOut()
	default:
		f.logger.WithField("event", frame.Event).Debug("civix: ignored identity feed frame")
	}
}
