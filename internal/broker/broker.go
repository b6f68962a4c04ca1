// Package broker is the MQTT transport used by simulated devices.
package broker

import "context"

// Topics of the quiz protocol.
const (
	TopicSessionStart = "quiz/session/start"
	TopicQuestion     = "quiz/question"
	TopicSessionJoin  = "quiz/session/join"
	TopicResponse     = "quiz/response"
)

// AtLeastOnce is the QoS used for every subscription and publish.
const AtLeastOnce byte = 1

// InfoTopic is the per-device channel the server pushes auth status on.
func InfoTopic(clientID string) string {
	return "system/client/" + clientID + "/info"
}

// Message is an inbound publish.
type Message struct {
	Topic   string
	Payload []byte
}

// Handler receives inbound messages on the transport's goroutine.
type Handler func(Message)

// Conn is one device's broker session.
type Conn interface {
	Subscribe(topic string, qos byte, h Handler) error
	Publish(topic string, qos byte, payload []byte) error
	Close()
}

// Options identify the device to the broker.
type Options struct {
	ClientID string
	Username string
	Password string
}

// Dialer opens broker sessions. Dial returns once the connection attempt has
// started; onConnect is invoked when the session is established. A failed
// attempt is only logged, onConnect is then never called.
type Dialer interface {
	Dial(ctx context.Context, opts Options, onConnect func(Conn)) (Conn, error)
}
