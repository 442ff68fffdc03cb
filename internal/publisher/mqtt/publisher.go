// Package mqtt implements cad.Publisher on an MQTT broker, the bus home
// automation platforms subscribe to.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/chescofire/cadwatch/internal/cad"
)

// Config controls the broker connection and topics.
type Config struct {
	Host           string
	Port           int
	Username       string
	Password       string
	ClientID       string
	Topic          string
	SummaryTopic   string
	QoS            byte
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// BrokerURL renders the broker address in paho form.
func (c Config) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

// Publisher delivers incidents as JSON messages. Incident messages are fire
// and forget; the board summary is retained so late subscribers see the
// current picture immediately.
type Publisher struct {
	cfg    Config
	client paho.Client
}

// New builds a Publisher with an auto-reconnecting client. Connect must
// succeed before the first publish is attempted.
func New(cfg Config) *Publisher {
	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	return NewWithClient(cfg, paho.NewClient(opts))
}

// NewWithClient builds a Publisher on an existing client. Used by tests.
func NewWithClient(cfg Config, client paho.Client) *Publisher {
	return &Publisher{cfg: cfg, client: client}
}

// Connect dials the broker. The client keeps retrying until it succeeds or
// ctx is canceled, so a broker that is down at boot does not kill the poller.
func (p *Publisher) Connect(ctx context.Context) error {
	if err := p.wait(ctx, p.client.Connect(), 0); err != nil {
		return fmt.Errorf("connect %s: %w", p.cfg.BrokerURL(), err)
	}
	return nil
}

// Connected reports whether the broker connection is currently open.
func (p *Publisher) Connected() bool {
	return p.client.IsConnectionOpen()
}

// Publish sends one incident to the incident topic.
func (p *Publisher) Publish(ctx context.Context, incident cad.Incident) error {
	if incident.Units == nil {
		incident = incident.WithUnits(nil)
	}
	payload, err := json.Marshal(incident)
	if err != nil {
		return &cad.PublishError{Topic: p.cfg.Topic, Err: fmt.Errorf("encode incident: %w", err)}
	}
	if err := p.wait(ctx, p.client.Publish(p.cfg.Topic, p.cfg.QoS, false, payload), p.publishTimeout()); err != nil {
		return &cad.PublishError{Topic: p.cfg.Topic, Err: err}
	}
	return nil
}

// PublishSummary sends the retained board snapshot to the summary topic.
func (p *Publisher) PublishSummary(ctx context.Context, summary cad.Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return &cad.PublishError{Topic: p.cfg.SummaryTopic, Err: fmt.Errorf("encode summary: %w", err)}
	}
	if err := p.wait(ctx, p.client.Publish(p.cfg.SummaryTopic, p.cfg.QoS, true, payload), p.publishTimeout()); err != nil {
		return &cad.PublishError{Topic: p.cfg.SummaryTopic, Err: err}
	}
	return nil
}

// Close disconnects, allowing in-flight messages a moment to flush.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

func (p *Publisher) publishTimeout() time.Duration {
	if p.cfg.PublishTimeout > 0 {
		return p.cfg.PublishTimeout
	}
	return 10 * time.Second
}

// wait blocks until the token resolves, ctx is canceled, or timeout elapses.
// A zero timeout waits on ctx alone.
func (p *Publisher) wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return fmt.Errorf("timed out after %s", timeout)
	}
}
