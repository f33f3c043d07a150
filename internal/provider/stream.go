package provider

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kmatov/barcache/internal/model"
)

var (
	// ErrNotConnected is returned on use before Connect.
	ErrNotConnected = errors.New("stream not connected")

	// ErrAlreadyClosed is returned on Connect after Close.
	ErrAlreadyClosed = errors.New("stream already closed")
)

// StreamConfig holds headline stream settings.
type StreamConfig struct {
	URL        string
	APIKey     string
	BufferSize int           // records channel capacity (default: 1000)
	ReadLimit  time.Duration // max silence before the connection is stale (default: 90s)
}

// HeadlineStream delivers live headline records over a websocket. Records
// are pushed into a bounded channel; a slow consumer causes drops with a
// warning rather than unbounded buffering.
type HeadlineStream struct {
	cfg    StreamConfig
	logger *slog.Logger

	conn    *websocket.Conn
	records chan model.Record
	errors  chan error
	done    chan struct{}

	mu        sync.RWMutex
	connected bool
	closed    bool
}

// NewHeadlineStream creates a stream client.
func NewHeadlineStream(cfg StreamConfig, logger *slog.Logger) *HeadlineStream {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 1000
	}
	if cfg.ReadLimit == 0 {
		cfg.ReadLimit = 90 * time.Second
	}
	return &HeadlineStream{
		cfg:     cfg,
		logger:  logger,
		records: make(chan model.Record, cfg.BufferSize),
		errors:  make(chan error, 1),
		done:    make(chan struct{}),
	}
}

// Connect establishes the websocket connection and starts the read loop.
func (s *HeadlineStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrAlreadyClosed
	}
	s.mu.Unlock()

	header := http.Header{}
	header.Set("Accept", "application/json")
	if s.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadLimit))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadLimit))
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	go s.readLoop()

	s.logger.Debug("headline stream connected", "url", s.cfg.URL)
	return nil
}

// Records returns the record channel.
func (s *HeadlineStream) Records() <-chan model.Record {
	return s.records
}

// Errors returns the error channel; one error at most is delivered.
func (s *HeadlineStream) Errors() <-chan error {
	return s.errors
}

// IsConnected returns current connection state.
func (s *HeadlineStream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Close shuts the stream down.
func (s *HeadlineStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	s.mu.Unlock()

	close(s.done)

	if s.conn != nil {
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return s.conn.Close()
	}

	return nil
}

// readLoop reads headline frames and pushes them as records.
func (s *HeadlineStream) readLoop() {
	defer func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			// Ignore errors after Close.
			select {
			case <-s.done:
			default:
				select {
				case s.errors <- err:
				default:
				}
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadLimit))

		var wire headlineWire
		if err := json.Unmarshal(data, &wire); err != nil {
			s.logger.Warn("failed to parse headline frame", "error", err)
			continue
		}

		select {
		case s.records <- headlineRecord(wire):
		case <-s.done:
			return
		default:
			s.logger.Warn("record buffer full, dropping headline", "story_id", wire.StoryID)
		}
	}
}
