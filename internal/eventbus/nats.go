package eventbus

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/sessionbridge/orchestrator/internal/config"
	"github.com/sessionbridge/orchestrator/internal/logging"
)

// natsBus backs Bus with a real NATS connection, for multi-process
// deployments that want schedule/queue events visible outside this
// process.
type natsBus struct {
	conn *nats.Conn
	log  *logging.Logger
}

func newNATS(url string, log *logging.Logger) (*natsBus, error) {
	conn, err := nats.Connect(url, nats.Name("session-orchestrator"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &natsBus{conn: conn, log: log}, nil
}

func (b *natsBus) Publish(subject string, data []byte) error {
	return b.conn.Publish(subject, data)
}

func (b *natsBus) Subscribe(subject string, handler func([]byte)) (func(), error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			b.log.WithError(err).Warn("nats unsubscribe failed")
		}
	}, nil
}

func (b *natsBus) Close() error {
	b.conn.Close()
	return nil
}

// New builds a Bus from configuration: an in-process bus when no NATS
// URL is set, a NATS-backed one otherwise.
func New(cfg config.EventBusConfig, log *logging.Logger) (Bus, error) {
	if log == nil {
		log = logging.Default()
	}
	if cfg.NATSURL == "" {
		return newInproc(), nil
	}
	return newNATS(cfg.NATSURL, log)
}
