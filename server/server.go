package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kyj44123-afk/cpla.ai-sub001/internal/models"
	"github.com/kyj44123-afk/cpla.ai-sub001/internal/types"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/citation"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const genericFailure = "답변을 생성하지 못했습니다. 잠시 후 다시 시도해 주세요."

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Retriever produces the grounding context for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query models.Query) (models.ContextBundle, error)
}

// StreamGenerator is implemented by generators that can stream chunks.
type StreamGenerator interface {
	AnswerStream(ctx context.Context, query models.Query, bundle models.ContextBundle) <-chan string
}

type Message struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	SessionID string `json:"sessionId,omitempty"`
	Audience  string `json:"audience,omitempty"`
	// Citations carries the encoded citation list; absent means none.
	Citations string `json:"citations,omitempty"`
}

type AskRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"sessionId,omitempty"`
	Audience  string `json:"audience,omitempty"`
}

type AskResponse struct {
	Answer string `json:"answer"`
}

type Config struct {
	Retriever Retriever
	Generator types.Generator
	Streaming bool
	// Gatherer backs /metrics; the default registry is used when nil.
	Gatherer     prometheus.Gatherer
	WriteTimeout time.Duration
	Logger       logrus.FieldLogger
}

type WSServer struct {
	config Config
	log    logrus.FieldLogger
}

func NewWSServer(config Config) (*WSServer, error) {
	if config.Retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if config.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}

	return &WSServer{
		config: config,
		log:    logger.OrStandard(config.Logger),
	}, nil
}

func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/ask", s.handleAsk)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *WSServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	}
}

// answer runs retrieval and generation for one question. The returned
// error is only for logging; callers show genericFailure instead.
func (s *WSServer) answer(ctx context.Context, query models.Query) (string, models.ContextBundle, error) {
	bundle, err := s.config.Retriever.Retrieve(ctx, query)
	if err != nil {
		return "", models.ContextBundle{}, fmt.Errorf("retrieval: %w", err)
	}

	answer, err := s.config.Generator.Answer(ctx, query, bundle)
	if err != nil {
		return "", bundle, fmt.Errorf("generation: %w", err)
	}
	return answer, bundle, nil
}

func (s *WSServer) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	query := models.Query{Text: req.Question, SessionID: req.SessionID, Audience: req.Audience}
	answer, bundle, err := s.answer(r.Context(), query)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.log.WithError(err).WithField("session_id", req.SessionID).Error("Failed to answer question")
		http.Error(w, genericFailure, http.StatusBadGateway)
		return
	}

	if len(bundle.Citations) > 0 {
		encoded, err := citation.Encode(bundle.Citations)
		if err != nil {
			s.log.WithError(err).Warn("Failed to encode citations")
		} else {
			w.Header().Set(citation.HeaderName, encoded)
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(AskResponse{Answer: answer})
}

// conn serialises writes; gorilla connections allow one concurrent writer.
type conn struct {
	ws      *websocket.Conn
	mu      sync.Mutex
	timeout time.Duration
}

func (c *conn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(c.timeout))
	return c.ws.WriteJSON(msg)
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer ws.Close()

	// In-flight questions are cancelled when the client goes away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &conn{ws: ws, timeout: s.config.WriteTimeout}
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.WithError(err).Debug("WebSocket read ended")
			}
			cancel()
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendMessage(c, Message{Type: "error", Content: "invalid message"})
			continue
		}

		switch msg.Type {
		case "ask", "":
			wg.Add(1)
			go func(msg Message) {
				defer wg.Done()
				s.handleMessage(ctx, c, msg)
			}(msg)
		case "ping":
			s.sendMessage(c, Message{Type: "pong"})
		default:
			s.sendMessage(c, Message{Type: "error", Content: "unknown message type"})
		}
	}
}

func (s *WSServer) handleMessage(ctx context.Context, c *conn, msg Message) {
	if strings.TrimSpace(msg.Content) == "" {
		s.sendMessage(c, Message{Type: "error", Content: "question is required"})
		return
	}
	query := models.Query{Text: msg.Content, SessionID: msg.SessionID, Audience: msg.Audience}

	streamer, canStream := s.config.Generator.(StreamGenerator)
	if !s.config.Streaming || !canStream {
		answer, bundle, err := s.answer(ctx, query)
		if err != nil {
			if ctx.Err() == nil {
				s.log.WithError(err).WithField("session_id", msg.SessionID).Error("Failed to answer question")
				s.sendMessage(c, Message{Type: "error", Content: genericFailure})
			}
			return
		}
		s.sendMessage(c, Message{Type: "response", Content: answer, SessionID: msg.SessionID, Citations: s.encode(bundle)})
		return
	}

	bundle, err := s.config.Retriever.Retrieve(ctx, query)
	if err != nil {
		return
	}
	for chunk := range streamer.AnswerStream(ctx, query, bundle) {
		if strings.HasPrefix(chunk, "Error: ") {
			s.log.WithField("session_id", msg.SessionID).Error(strings.TrimPrefix(chunk, "Error: "))
			s.sendMessage(c, Message{Type: "error", Content: genericFailure})
			return
		}
		s.sendMessage(c, Message{Type: "stream", Content: chunk, SessionID: msg.SessionID})
	}
	s.sendMessage(c, Message{Type: "done", SessionID: msg.SessionID, Citations: s.encode(bundle)})
}

func (s *WSServer) encode(bundle models.ContextBundle) string {
	if len(bundle.Citations) == 0 {
		return ""
	}
	encoded, err := citation.Encode(bundle.Citations)
	if err != nil {
		s.log.WithError(err).Warn("Failed to encode citations")
		return ""
	}
	return encoded
}

func (s *WSServer) sendMessage(c *conn, msg Message) {
	if err := c.send(msg); err != nil {
		s.log.WithError(err).Debug("Error sending message")
	}
}
