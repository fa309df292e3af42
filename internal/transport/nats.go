package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avvvet/chatbuddy/internal/classifier"
	"github.com/avvvet/chatbuddy/internal/config"
	"github.com/avvvet/chatbuddy/internal/memory"
	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/avvvet/chatbuddy/internal/prompts"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ChatProcessor handles one chat message
type ChatProcessor interface {
	Process(ctx context.Context, userID, text string) (*models.ChatResponse, error)
}

// Retrainer starts a model retrain
type Retrainer interface {
	Retrain(ctx context.Context, blocking bool) (uint64, error)
}

// RetrainReply answers a retrain request
type RetrainReply struct {
	Status     string `json:"status"`
	Generation uint64 `json:"generation,omitempty"`
	Error      string `json:"error,omitempty"`
}

type NATSTransport struct {
	conn      *nats.Conn
	config    *config.Config
	handler   ChatProcessor
	retrainer Retrainer
	subs      []*nats.Subscription
	logger    *zap.Logger
}

func NewNATSTransport(cfg *config.Config, handler ChatProcessor, retrainer Retrainer, logger *zap.Logger) (*NATSTransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Connect to NATS
	conn, err := nats.Connect(cfg.NatsURL,
		nats.Name(cfg.ServiceName),
		nats.Timeout(cfg.NatsTimeout),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1), // Infinite reconnects
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("⚠️ NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("🔌 NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("📡 connected to NATS server", zap.String("url", cfg.NatsURL))

	return &NATSTransport{
		conn:      conn,
		config:    cfg,
		handler:   handler,
		retrainer: retrainer,
		logger:    logger,
	}, nil
}

func (nt *NATSTransport) Start() error {
	sub, err := nt.conn.Subscribe(nt.config.NatsRequestSubject, nt.handleChatRequest)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", nt.config.NatsRequestSubject, err)
	}
	nt.subs = append(nt.subs, sub)
	nt.logger.Info("👂 subscribed", zap.String("subject", nt.config.NatsRequestSubject))

	if nt.retrainer != nil && nt.config.NatsRetrainSubject != "" {
		sub, err := nt.conn.Subscribe(nt.config.NatsRetrainSubject, nt.handleRetrainRequest)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", nt.config.NatsRetrainSubject, err)
		}
		nt.subs = append(nt.subs, sub)
		nt.logger.Info("👂 subscribed", zap.String("subject", nt.config.NatsRetrainSubject))
	}
	return nil
}

func (nt *NATSTransport) handleChatRequest(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), nt.config.RequestTimeout)
	defer cancel()

	if err := msg.Respond(nt.HandleChat(ctx, msg.Data)); err != nil {
		nt.logger.Error("❌ failed to send response", zap.Error(err))
	}
}

func (nt *NATSTransport) handleRetrainRequest(msg *nats.Msg) {
	reply := nt.HandleRetrain(context.Background(), msg.Data)
	if msg.Reply == "" {
		return
	}
	if err := msg.Respond(reply); err != nil {
		nt.logger.Error("❌ failed to send retrain reply", zap.Error(err))
	}
}

// HandleChat decodes a chat request, processes it and encodes the response
func (nt *NATSTransport) HandleChat(ctx context.Context, data []byte) []byte {
	var request models.ChatRequest
	if err := json.Unmarshal(data, &request); err != nil {
		nt.logger.Warn("⚠️ invalid chat request", zap.Error(err))
		return nt.errorResponse(&request, models.ErrorInvalidRequest)
	}

	response, err := nt.handler.Process(ctx, request.UserID, request.Message)
	if err != nil {
		code := models.ErrorInternal
		if errors.Is(err, memory.ErrInvalidUserID) {
			code = models.ErrorInvalidRequest
		}
		nt.logger.Warn("⚠️ chat request rejected", zap.String("user_id", request.UserID), zap.Error(err))
		return nt.errorResponse(&request, code)
	}

	return nt.encode(response)
}

// HandleRetrain starts a background retrain
func (nt *NATSTransport) HandleRetrain(ctx context.Context, _ []byte) []byte {
	gen, err := nt.retrainer.Retrain(ctx, false)
	reply := RetrainReply{Status: "accepted", Generation: gen}
	if err != nil {
		reply = RetrainReply{Status: "rejected", Error: err.Error()}
	}

	data, _ := json.Marshal(reply)
	return data
}

// Notify publishes a retrain outcome on the events subject
func (nt *NATSTransport) Notify(_ context.Context, event classifier.Event) {
	if nt.conn == nil || nt.config.NatsEventsSubject == "" {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		nt.logger.Error("❌ failed to marshal event", zap.Error(err))
		return
	}
	if err := nt.conn.Publish(nt.config.NatsEventsSubject, data); err != nil {
		nt.logger.Error("❌ failed to publish event", zap.String("type", event.Type), zap.Error(err))
	}
}

func (nt *NATSTransport) encode(response *models.ChatResponse) []byte {
	data, err := json.Marshal(response)
	if err != nil {
		nt.logger.Error("❌ failed to marshal response", zap.Error(err))
		return []byte(`{"response":"","intent":"error","confidence":0,"error_code":"INTERNAL_ERROR"}`)
	}
	return data
}

func (nt *NATSTransport) errorResponse(request *models.ChatRequest, errorCode string) []byte {
	return nt.encode(&models.ChatResponse{
		UserID:     request.UserID,
		Response:   prompts.ErrorMessage,
		Intent:     models.IntentError,
		Confidence: 0.0,
		ErrorCode:  &errorCode,
	})
}

func (nt *NATSTransport) Close() error {
	for _, sub := range nt.subs {
		_ = sub.Unsubscribe()
	}
	if nt.conn != nil {
		if err := nt.conn.Drain(); err != nil {
			nt.conn.Close()
		}
		nt.logger.Info("NATS connection closed")
	}
	return nil
}
