package broadcast

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/ports"
)

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

// NATS broadcasts over a NATS server so worker processes share the same
// control channels as the UI server.
type NATS struct {
	conn *nats.Conn
	log  *zap.Logger
}

// NewNATS connects to the given NATS URL.
func NewNATS(url string, log *zap.Logger) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	log.Info("connected to NATS", zap.String("url", url))
	return &NATS{conn: conn, log: log}, nil
}

func (b *NATS) Publish(channel string, data []byte) error {
	if err := b.conn.Publish(channel, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

func (b *NATS) Subscribe(channel string, handler func(data []byte)) (ports.Subscription, error) {
	sub, err := b.conn.Subscribe(channel, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", channel, err)
	}
	b.log.Debug("subscribed", zap.String("channel", channel))
	return &natsSubscription{sub: sub}, nil
}

func (b *NATS) Close() error {
	b.conn.Close()
	return nil
}

var _ ports.Broadcaster = (*NATS)(nil)
