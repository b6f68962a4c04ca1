// Package registration provisions device credentials from the quiz registration service.
package registration

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"quizload/internal/config"
	"quizload/internal/eventlog"
	"quizload/internal/events"
)

var (
	// ErrRejected means the service answered but refused the registration.
	ErrRejected = errors.New("registration rejected")
	// ErrBreakerOpen means earlier transport failures tripped the breaker and the request was not sent.
	ErrBreakerOpen = errors.New("registration circuit open")
)

// maxResponseBody bounds how much of a response is read.
const maxResponseBody = 1 << 20

type request struct {
	MacAddress string `json:"macAddress"`
	PlayerName string `json:"playerName"`
}

type response struct {
	Success  bool   `json:"success"`
	Password string `json:"password"`
	Error    string `json:"error"`
	Message  string `json:"message"`
}

func (r response) reason() string {
	switch {
	case r.Error != "":
		return r.Error
	case r.Message != "":
		return r.Message
	default:
		return "no reason given"
	}
}

// Client talks to the registration endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	reset    time.Duration
	log      *slog.Logger
	events   *eventlog.Logger
}

// New builds a client from cfg.
func New(cfg config.Registration, log *slog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("registration endpoint is required")
	}
	if log == nil {
		log = slog.Default()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify} //nolint:gosec // staging services use self-signed certs
	failures := cfg.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	reset := cfg.BreakerReset
	if reset <= 0 {
		reset = time.Minute
	}
	c := &Client{
		endpoint: cfg.Endpoint,
		http:     &http.Client{Transport: transport, Timeout: cfg.Timeout},
		reset:    reset,
		log:      log,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "registration",
		MaxRequests: 1,
		Timeout:     reset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		// A service-side refusal proves the service is reachable.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("registration circuit breaker state changed",
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return c, nil
}

// SetEventLog makes RegisterPool append an Error record for every device it
// leaves out.
func (c *Client) SetEventLog(l *eventlog.Logger) { c.events = l }

// Register requests a password for identifier. At most one request is sent;
// while the breaker is open none is and ErrBreakerOpen is returned.
func (c *Client) Register(ctx context.Context, identifier, displayName string) (events.Credential, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, request{MacAddress: identifier, PlayerName: displayName})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return events.Credential{}, fmt.Errorf("%w: %v", ErrBreakerOpen, err)
		}
		return events.Credential{}, err
	}
	return events.Credential{Identifier: identifier, Password: out.(string)}, nil
}

func (c *Client) post(ctx context.Context, body request) (string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("register %s: %w", body.MacAddress, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", fmt.Errorf("register %s: read body: %w", body.MacAddress, err)
	}
	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", fmt.Errorf("register %s: status %d: %s", body.MacAddress, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if !r.Success {
		return "", fmt.Errorf("%w: %s", ErrRejected, r.reason())
	}
	if r.Password == "" {
		return "", fmt.Errorf("%w: no password in response", ErrRejected)
	}
	return r.Password, nil
}

// Identifier is the synthetic MAC-like identifier of device i.
func Identifier(prefix string, i int) string {
	return fmt.Sprintf("%s%04X", prefix, i)
}

// DisplayName is the player name of device i.
func DisplayName(prefix string, i int) string {
	return fmt.Sprintf("%s%d", prefix, i+1)
}

// RegisterPool registers n devices one after another, sending exactly one
// request per device. While the breaker is open it pauses until the service
// may be tried again rather than skipping devices. Devices that fail are
// logged and left out, so the pool may be smaller than n. An error is returned
// only if registration cannot run at all; on cancellation part way through the
// devices registered so far are returned with the context error.
func (c *Client) RegisterPool(ctx context.Context, n int, idPrefix, namePrefix string) ([]events.Credential, error) {
	if c == nil {
		return nil, errors.New("nil registration client")
	}
	if n < 0 {
		return nil, fmt.Errorf("device count must not be negative, got %d", n)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pool := make([]events.Credential, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return pool, err
		}
		id := Identifier(idPrefix, i)
		cred, err := c.registerWhenReady(ctx, id, DisplayName(namePrefix, i))
		if err != nil {
			if ctx.Err() != nil {
				return pool, ctx.Err()
			}
			c.log.Warn("registration failed", "identifier", id, "err", err)
			if c.events != nil {
				c.events.Record(id, events.Error, "registration failed: "+err.Error())
			}
			continue
		}
		c.log.Debug("registered", "identifier", id)
		pool = append(pool, cred)
	}
	c.log.Info("registration finished", "requested", n, "registered", len(pool))
	return pool, nil
}

// registerWhenReady waits out an open breaker before sending the request.
func (c *Client) registerWhenReady(ctx context.Context, identifier, displayName string) (events.Credential, error) {
	for {
		cred, err := c.Register(ctx, identifier, displayName)
		if !errors.Is(err, ErrBreakerOpen) {
			return cred, err
		}
		c.log.Warn("registration service unhealthy, pausing", "identifier", identifier, "wait", c.reset)
		timer := time.NewTimer(c.reset)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return events.Credential{}, ctx.Err()
		}
	}
}
