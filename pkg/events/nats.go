package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SubjectPrefix is prepended to "<kind>.<poolId>".
const SubjectPrefix = "bookhook"

// NATSSink publishes events as JSON on "bookhook.<kind>.<poolId>".
type NATSSink struct {
	nc *nats.Conn
}

// ConnectNATS dials url with reconnects enabled.
func ConnectNATS(url string, log *zap.SugaredLogger) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("bookhook"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warnw("nats_disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infow("nats_reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	log.Infow("nats_connected", "url", nc.ConnectedUrl())
	return &NATSSink{nc: nc}, nil
}

// NewNATSSink wraps an existing connection.
func NewNATSSink(nc *nats.Conn) *NATSSink { return &NATSSink{nc: nc} }

func (s *NATSSink) Name() string { return "nats" }

// Subject returns the subject ev is published on.
func Subject(ev Event) string {
	return SubjectPrefix + "." + string(ev.Kind) + "." + ev.PoolID
}

func (s *NATSSink) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.nc.Publish(Subject(ev), data)
}

// Close flushes pending messages and closes the connection.
func (s *NATSSink) Close() {
	if err := s.nc.Drain(); err != nil {
		s.nc.Close()
	}
}
