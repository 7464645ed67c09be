package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// ConsumerConfig wires the NATS queue consumer.
type ConsumerConfig struct {
	URL     string
	Subject string
	Queue   string

	Dispatcher *Dispatcher
	Logger     *slog.Logger
}

// Consumer serves action requests from a NATS subject. Agents sharing the
// same queue group split the request load; replies go to the message reply
// inbox.
type Consumer struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
	subject    string
	queue      string
	conn       *nats.Conn
}

// queueRequest is the message payload shape.
type queueRequest struct {
	Action string          `json:"action"`
	Input  json.RawMessage `json:"input"`
}

// NewConsumer connects to the NATS server. The subscription starts in Run.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatch: consumer needs a dispatcher")
	}
	if cfg.URL == "" || cfg.Subject == "" || cfg.Queue == "" {
		return nil, errors.New("dispatch: consumer needs url, subject, and queue")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("cloud-action-agent"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", cfg.URL, err)
	}

	return &Consumer{
		dispatcher: cfg.Dispatcher,
		logger:     logger,
		subject:    cfg.Subject,
		queue:      cfg.Queue,
		conn:       conn,
	}, nil
}

// Run subscribes and serves until the context is cancelled, then drains the
// subscription and closes the connection.
func (c *Consumer) Run(ctx context.Context) error {
	sub, err := c.conn.QueueSubscribe(c.subject, c.queue, func(msg *nats.Msg) {
		resp := c.processRequest(ctx, msg.Data)
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(resp); err != nil {
			c.logger.Warn("failed to respond on reply inbox", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.subject, err)
	}

	c.logger.Info("nats consumer subscribed",
		"subject", c.subject,
		"queue", c.queue,
	)

	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		c.logger.Warn("failed to drain subscription", "error", err)
	}
	c.conn.Close()
	c.logger.Info("nats consumer stopped")
	return nil
}

// processRequest decodes one queue message, dispatches it, and renders the
// response envelope. Errors never escape; the requester always gets an
// answer.
func (c *Consumer) processRequest(ctx context.Context, data []byte) []byte {
	var req queueRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return marshalEnvelope(errorResponse{Success: false, Error: fmt.Sprintf("invalid request payload: %v", err)})
	}

	result, err := c.dispatcher.Dispatch(ctx, req.Action, req.Input)
	if err != nil {
		return marshalEnvelope(errorResponse{Success: false, Error: err.Error()})
	}
	return marshalEnvelope(result)
}

func marshalEnvelope(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"success":false,"error":"failed to encode response"}`)
	}
	return data
}
