package broker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"quizload/internal/config"
)

// ErrTimeout is returned when the broker does not acknowledge an operation in time.
var ErrTimeout = errors.New("broker operation timed out")

// PahoDialer dials devices with the Eclipse Paho client.
type PahoDialer struct {
	cfg config.Broker
	tls *tls.Config
	log *slog.Logger
}

// NewPahoDialer prepares a dialer for cfg. TLS is configured for ssl://, tls://,
// mqtts:// and wss:// URLs.
func NewPahoDialer(cfg config.Broker, log *slog.Logger) (*PahoDialer, error) {
	if cfg.URL == "" {
		return nil, errors.New("broker url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	d := &PahoDialer{cfg: cfg, log: log}
	switch u.Scheme {
	case "ssl", "tls", "mqtts", "wss":
		if d.tls, err = TLSConfig(cfg.CACert, cfg.InsecureSkipVerify); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// TLSConfig builds the client TLS settings. caPath may be empty to use the
// system roots.
func TLSConfig(caPath string, insecure bool) (*tls.Config, error) {
	tc := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: insecure} //nolint:gosec // test brokers often use self-signed certs
	if caPath == "" {
		return tc, nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("read ca cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", caPath)
	}
	tc.RootCAs = pool
	return tc, nil
}

func (d *PahoDialer) clientOptions(opts Options) *mqtt.ClientOptions {
	o := mqtt.NewClientOptions().
		AddBroker(d.cfg.URL).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(false).
		SetKeepAlive(d.cfg.KeepAlive).
		SetConnectTimeout(d.cfg.ConnectTimeout)
	if d.tls != nil {
		o.SetTLSConfig(d.tls)
	}
	return o
}

// Dial starts connecting and returns immediately.
func (d *PahoDialer) Dial(ctx context.Context, opts Options, onConnect func(Conn)) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := d.log.With("client_id", opts.ClientID)
	conn := &pahoConn{timeout: d.cfg.OperationTimeout, quiesce: d.cfg.DisconnectQuiesce}

	o := d.clientOptions(opts)
	o.SetOnConnectHandler(func(mqtt.Client) {
		log.Debug("broker session established")
		if onConnect != nil {
			onConnect(conn)
		}
	})
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("broker connection lost", "err", err)
	})
	conn.client = mqtt.NewClient(o)

	tok := conn.client.Connect()
	go func() {
		<-tok.Done()
		if err := tok.Error(); err != nil {
			log.Warn("broker connect failed", "err", err)
		}
	}()
	return conn, nil
}

type pahoConn struct {
	client  mqtt.Client
	timeout time.Duration
	quiesce time.Duration
}

func (c *pahoConn) wait(tok mqtt.Token) error {
	if c.timeout > 0 {
		if !tok.WaitTimeout(c.timeout) {
			return ErrTimeout
		}
	} else {
		tok.Wait()
	}
	return tok.Error()
}

func (c *pahoConn) Subscribe(topic string, qos byte, h Handler) error {
	tok := c.client.Subscribe(topic, qos, func(_ mqtt.Client, m mqtt.Message) {
		h(Message{Topic: m.Topic(), Payload: m.Payload()})
	})
	if err := c.wait(tok); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (c *pahoConn) Publish(topic string, qos byte, payload []byte) error {
	if err := c.wait(c.client.Publish(topic, qos, false, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (c *pahoConn) Close() {
	c.client.Disconnect(uint(c.quiesce.Milliseconds()))
}
