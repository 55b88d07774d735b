package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const (
	gatewayQueueGroup = "ledger-payments"
	callbackTimeout   = 10 * time.Second
)

// CallbackHandler applies a gateway callback
type CallbackHandler interface {
	ReconcileByGateway(ctx context.Context, cb Callback) (*Payment, error)
}

// GatewayListener consumes gateway callbacks from NATS. Replicas share a
// queue group so each callback is applied by one of them.
type GatewayListener struct {
	conn    *nats.Conn
	subject string
	handler CallbackHandler
	sub     *nats.Subscription
}

func NewGatewayListener(conn *nats.Conn, subject string, handler CallbackHandler) *GatewayListener {
	return &GatewayListener{
		conn:    conn,
		subject: subject,
		handler: handler,
	}
}

func (l *GatewayListener) Start() error {
	sub, err := l.conn.QueueSubscribe(l.subject, gatewayQueueGroup, l.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", l.subject, err)
	}
	l.sub = sub

	log.WithField("subject", l.subject).Info("Listening for payment gateway callbacks")
	return nil
}

func (l *GatewayListener) Stop() error {
	if l.sub == nil {
		return nil
	}
	return l.sub.Drain()
}

func (l *GatewayListener) handleMessage(msg *nats.Msg) {
	var cb Callback
	if err := json.Unmarshal(msg.Data, &cb); err != nil {
		log.WithError(err).Error("Invalid gateway callback payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	p, err := l.handler.ReconcileByGateway(ctx, cb)
	if err != nil {
		l.respond(msg, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	l.respond(msg, map[string]any{"ok": true, "payment_id": p.ID, "status": p.Status})
}

// respond answers callbacks sent as requests; plain publishes have no reply subject
func (l *GatewayListener) respond(msg *nats.Msg, body map[string]any) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(body)
	if err != nil {
		log.WithError(err).Error("Failed to encode gateway callback reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		log.WithError(err).Warn("Failed to reply to gateway callback")
	}
}
