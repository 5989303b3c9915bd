package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"FinArb/internal/domain/models"
	applogger "FinArb/pkg/logger"

	"github.com/gorilla/websocket"
)

// StreamSource serves fetches from a last-quote book fed by a WebSocket
// feed. The wire connection is maintained by a background loop; Fetch
// itself never touches the network, so a dead feed surfaces as stale or
// missing data, not as a hang.
type StreamSource struct {
	name           string
	url            string
	apiKey         string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	// maxAge bounds how old a book entry may be before Fetch treats the
	// feed as down for that entity.
	maxAge time.Duration
	logger *applogger.Logger

	mu   sync.RWMutex
	book map[string]models.SuccessPayload
	conn *websocket.Conn
}

type StreamOption func(*StreamSource)

func WithStreamAPIKey(key string) StreamOption {
	return func(s *StreamSource) { s.apiKey = key }
}

func WithReconnectDelay(d time.Duration) StreamOption {
	return func(s *StreamSource) {
		if d > 0 {
			s.reconnectDelay = d
		}
	}
}

func WithMaxQuoteAge(d time.Duration) StreamOption {
	return func(s *StreamSource) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

func NewStreamSource(name, url string, symbols []string, logger *applogger.Logger, opts ...StreamOption) *StreamSource {
	s := &StreamSource{
		name:           name,
		url:            url,
		symbols:        symbols,
		reconnectDelay: 5 * time.Second,
		pingInterval:   20 * time.Second,
		maxAge:         2 * time.Minute,
		logger:         logger,
		book:           make(map[string]models.SuccessPayload),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run connects, subscribes, and pumps quote frames into the book until
// the context is canceled, reconnecting on read errors.
func (s *StreamSource) Run(ctx context.Context) {
	for {
		if err := s.connect(ctx); err != nil {
			s.logger.Warn("stream connect failed",
				applogger.String("source", s.name), applogger.Error(err))
		} else {
			s.readLoop(ctx)
		}
		select {
		case <-ctx.Done():
			s.close()
			return
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *StreamSource) connect(ctx context.Context) error {
	u := s.url
	if s.apiKey != "" {
		u = fmt.Sprintf("%s?token=%s", s.url, s.apiKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.name, err)
	}
	for _, sym := range s.symbols {
		if err := conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": sym}); err != nil {
			_ = conn.Close()
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.logger.Info("stream connected",
		applogger.String("source", s.name), applogger.Int("symbols", len(s.symbols)))
	return nil
}

type quoteFrame struct {
	Type string `json:"type"`
	Data []struct {
		Symbol string  `json:"s"`
		Price  float64 `json:"p"`
		Volume float64 `json:"v"`
		TsMs   int64   `json:"t"`
	} `json:"data"`
}

func (s *StreamSource) readLoop(ctx context.Context) {
	pingStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingStop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.RLock()
				conn := s.conn
				s.mu.RUnlock()
				if conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()
	defer close(pingStop)

	for {
		if ctx.Err() != nil {
			return
		}
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}
		_, b, err := conn.ReadMessage()
		if err != nil {
			s.logger.Warn("stream read error",
				applogger.String("source", s.name), applogger.Error(err))
			s.close()
			return
		}
		var frame quoteFrame
		if err := json.Unmarshal(b, &frame); err != nil || frame.Type != "trade" {
			continue
		}
		now := time.Now()
		s.mu.Lock()
		for _, d := range frame.Data {
			asOf := now
			if d.TsMs > 0 {
				asOf = time.UnixMilli(d.TsMs)
			}
			s.book[d.Symbol] = models.SuccessPayload{Fields: map[string]models.FieldValue{
				"price":  {Value: d.Price, AsOf: asOf},
				"volume": {Value: d.Volume, AsOf: asOf},
			}}
		}
		s.mu.Unlock()
	}
}

func (s *StreamSource) close() {
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()
}

// Fetch implements repository.Fetcher from the in-memory book.
func (s *StreamSource) Fetch(ctx context.Context, capability models.Capability, entity string, fields []string, timeout time.Duration) (*models.SuccessPayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.Transient("canceled", err)
	}

	s.mu.RLock()
	payload, ok := s.book[entity]
	s.mu.RUnlock()

	if !ok {
		return nil, models.Permanent("unknown_entity", fmt.Errorf("%s not in book", entity))
	}
	var freshest time.Time
	for _, fv := range payload.Fields {
		if fv.AsOf.After(freshest) {
			freshest = fv.AsOf
		}
	}
	if time.Since(freshest) > s.maxAge {
		return nil, models.Transient("stale_feed", fmt.Errorf("%s last quote too old", entity))
	}

	out := &models.SuccessPayload{Fields: make(map[string]models.FieldValue, len(payload.Fields))}
	if len(fields) == 0 {
		for k, v := range payload.Fields {
			out.Fields[k] = v
		}
		return out, nil
	}
	for _, f := range fields {
		if v, ok := payload.Fields[f]; ok {
			out.Fields[f] = v
		}
	}
	if len(out.Fields) == 0 {
		return nil, models.Permanent("fields_unavailable", nil)
	}
	return out, nil
}
