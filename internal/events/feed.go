// Package events publishes recorded battles onto NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ernie/pokearena/internal/domain"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// DefaultSubject carries every appended battle record
const DefaultSubject = "pokearena.battles.recorded"

// Publisher sends battle records to a NATS subject
type Publisher struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

// Connect dials the NATS server at url
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	return nc, nil
}

// NewPublisher creates a publisher on an existing connection
func NewPublisher(nc *nats.Conn, subject string, logger *slog.Logger) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{nc: nc, subject: subject, logger: logger}
}

// BattleRecorded publishes rec. Failures are logged and otherwise ignored so
// a broker outage never fails a battle.
func (p *Publisher) BattleRecorded(ctx context.Context, rec domain.BattleRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		p.logger.Error("marshaling battle record", "battle_id", rec.ID, "error", err)
		return
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		p.logger.Warn("publishing battle record", "battle_id", rec.ID, "subject", p.subject, "error", err)
	}
}

// Subscribe calls fn for every battle record published on subject until ctx
// is done.
func Subscribe(ctx context.Context, nc *nats.Conn, subject string, fn func(domain.BattleRecord)) error {
	if subject == "" {
		subject = DefaultSubject
	}
	records := make(chan domain.BattleRecord, 64)
	sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
		var rec domain.BattleRecord
		if err := json.Unmarshal(m.Data, &rec); err != nil {
			return
		}
		select {
		case records <- rec:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	defer sub.Unsubscribe()

	if err := nc.Flush(); err != nil {
		return fmt.Errorf("flushing subscription: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case rec := <-records:
			fn(rec)
		}
	}
}

// EmbeddedServer is an in-process NATS server
type EmbeddedServer struct {
	ns *server.Server
}

// StartEmbedded runs a NATS server inside this process. Port -1 picks a
// random free port.
func StartEmbedded(host string, port int) (*EmbeddedServer, error) {
	ns, err := server.NewServer(&server.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server on %s:%d not ready", host, port)
	}
	return &EmbeddedServer{ns: ns}, nil
}

// ClientURL is the URL clients should dial
func (e *EmbeddedServer) ClientURL() string {
	return e.ns.ClientURL()
}

// Shutdown stops the server and waits for it to exit
func (e *EmbeddedServer) Shutdown() {
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}
