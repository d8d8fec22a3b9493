package broker

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Publisher is the slice of *nats.Conn the event workers need.
type Publisher interface {
	Publish(subject string, data []byte) error
}

func NewNATSConn(url string, log *logrus.Entry) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("slfs-backend"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.WithField("url", c.ConnectedUrl()).Info("reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.WithField("url", conn.ConnectedUrl()).Info("connected to NATS")
	return conn, nil
}
