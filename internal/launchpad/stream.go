package launchpad

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Listing stream
// Real-time new token detection over GraphQL subscriptions
// Watches pump.fun create instructions and emits fresh mints
// ---------------------------------------------------------------------------

const (
	defaultStreamURL = "wss://streaming.bitquery.io/eap"

	// pumpProgramID is the pump.fun bonding curve program.
	pumpProgramID = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

	maxSeenMints = 4096
)

var listingSubscription = fmt.Sprintf(`
subscription NewListings {
  Solana {
    TokenSupplyUpdates(
      where: {
        Instruction: {
          Program: {
            Address: {is: %q},
            Method: {is: "create"}
          }
        }
      }
    ) {
      TokenSupplyUpdate {
        Currency {
          MintAddress
          Name
          Symbol
        }
      }
    }
  }
}`, pumpProgramID)

// StreamConfig configures the listing stream.
type StreamConfig struct {
	URL          string
	APIKey       string
	PingInterval time.Duration
}

// DefaultStreamConfig returns defaults for the Bitquery EAP endpoint.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		URL:          defaultStreamURL,
		PingInterval: 30 * time.Second,
	}
}

// ListingStream subscribes to pump.fun token creations and emits each new
// mint exactly once.
type ListingStream struct {
	cfg StreamConfig

	mu   sync.RWMutex
	conn *websocket.Conn
	seen map[string]time.Time

	mintChan chan string
	closed   atomic.Bool // tracks if mintChan is closed

	messagesRecv  atomic.Int64
	mintsDetected atomic.Int64
	reconnects    atomic.Int64
	connected     atomic.Bool
}

// NewListingStream creates a stream. Zero config fields fall back to defaults.
func NewListingStream(cfg StreamConfig) *ListingStream {
	def := DefaultStreamConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = def.PingInterval
	}
	return &ListingStream{
		cfg:      cfg,
		seen:     make(map[string]time.Time),
		mintChan: make(chan string, 256),
	}
}

// Start connects and begins streaming. Returns the mint channel immediately;
// the stream reconnects in the background until ctx is cancelled, then the
// channel is closed.
func (s *ListingStream) Start(ctx context.Context) <-chan string {
	go s.runLoop(ctx)
	return s.mintChan
}

func (s *ListingStream) runLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("stream: runLoop panic recovered")
		}
		// Acquire write lock to synchronize with handleMessage's channel send.
		s.mu.Lock()
		if s.closed.CompareAndSwap(false, true) {
			close(s.mintChan)
		}
		s.mu.Unlock()
	}()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retry until ctx cancellation

	for {
		select {
		case <-ctx.Done():
			s.disconnect()
			return
		default:
		}

		if err := s.connect(ctx); err != nil {
			s.reconnects.Add(1)
			wait := bo.NextBackOff()
			log.Warn().Err(err).Dur("retry_in", wait).Msg("stream: connection failed")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
			continue
		}

		bo.Reset()
		s.readLoop(ctx)
		s.disconnect()
	}
}

// connect dials, completes the graphql-transport-ws handshake and subscribes.
func (s *ListingStream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{"graphql-transport-ws"},
	}

	header := http.Header{}
	if s.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("stream: dial: %w", err)
	}

	if err := conn.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		conn.Close()
		return fmt.Errorf("stream: connection_init: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			conn.Close()
			return fmt.Errorf("stream: await connection_ack: %w", err)
		}
		if msg.Type == "connection_ack" {
			break
		}
	}

	payload, err := json.Marshal(map[string]string{"query": listingSubscription})
	if err != nil {
		conn.Close()
		return fmt.Errorf("stream: marshal subscription: %w", err)
	}
	if err := conn.WriteJSON(wsMessage{ID: "1", Type: "subscribe", Payload: payload}); err != nil {
		conn.Close()
		return fmt.Errorf("stream: subscribe: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.connected.Store(true)

	log.Info().Str("endpoint", s.cfg.URL).Msg("stream: connected, watching for new listings")
	return nil
}

func (s *ListingStream) disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connected.Store(false)
}

func (s *ListingStream) readLoop(ctx context.Context) {
	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			s.writeMessage(wsMessage{Type: "ping"})
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Info().Msg("stream: connection closed normally")
			} else {
				log.Warn().Err(err).Msg("stream: read error, reconnecting")
			}
			s.connected.Store(false)
			return
		}

		s.messagesRecv.Add(1)
		s.handleMessage(message)
	}
}

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (s *ListingStream) writeMessage(msg wsMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		log.Debug().Err(err).Str("type", msg.Type).Msg("stream: write failed")
	}
}

func (s *ListingStream) handleMessage(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("stream: handleMessage panic recovered")
		}
	}()

	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "ping":
		s.writeMessage(wsMessage{Type: "pong"})
		return
	case "error":
		log.Warn().RawJSON("payload", msg.Payload).Msg("stream: subscription error")
		return
	case "complete":
		log.Info().Msg("stream: subscription completed by server")
		return
	case "next":
	default:
		return
	}

	var payload struct {
		Data struct {
			Solana struct {
				TokenSupplyUpdates []struct {
					TokenSupplyUpdate struct {
						Currency struct {
							MintAddress string `json:"MintAddress"`
							Name        string `json:"Name"`
							Symbol      string `json:"Symbol"`
						} `json:"Currency"`
					} `json:"TokenSupplyUpdate"`
				} `json:"TokenSupplyUpdates"`
			} `json:"Solana"`
		} `json:"data"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return
	}

	for _, update := range payload.Data.Solana.TokenSupplyUpdates {
		mint := update.TokenSupplyUpdate.Currency.MintAddress
		if mint == "" || !s.markSeen(mint) {
			continue
		}

		s.mintsDetected.Add(1)

		// Synchronize channel send with close using the mutex to prevent
		// send-on-closed-channel panic.
		s.mu.RLock()
		if !s.closed.Load() {
			select {
			case s.mintChan <- mint:
				log.Info().
					Str("mint", mint).
					Str("symbol", update.TokenSupplyUpdate.Currency.Symbol).
					Msg("stream: NEW LISTING DETECTED")
			default:
				log.Warn().Msg("stream: mint channel full, dropping listing")
			}
		}
		s.mu.RUnlock()
	}
}

// markSeen records a mint, returning false when it was already seen.
func (s *ListingStream) markSeen(mint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[mint]; dup {
		return false
	}

	if len(s.seen) >= maxSeenMints {
		var oldestMint string
		var oldestTime time.Time
		for m, at := range s.seen {
			if oldestMint == "" || at.Before(oldestTime) {
				oldestMint = m
				oldestTime = at
			}
		}
		delete(s.seen, oldestMint)
	}

	s.seen[mint] = time.Now()
	return true
}

// StreamStats returns listing stream statistics.
type StreamStats struct {
	Connected     bool  `json:"connected"`
	MessagesRecv  int64 `json:"messages_recv"`
	MintsDetected int64 `json:"mints_detected"`
	Reconnects    int64 `json:"reconnects"`
}

func (s *ListingStream) Stats() StreamStats {
	return StreamStats{
		Connected:     s.connected.Load(),
		MessagesRecv:  s.messagesRecv.Load(),
		MintsDetected: s.mintsDetected.Load(),
		Reconnects:    s.reconnects.Load(),
	}
}
