// Package notify publishes threshold crossings to an MQTT broker.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/ztkent/color-meter/internal/tools"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
	defaultKeepAlive         = 60 * time.Second
)

var (
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishTimeout   = errors.New("mqtt: publish timed out")
)

// Crossing is the payload published for each threshold notification.
type Crossing struct {
	EventID    string    `json:"event_id"`
	Low        uint16    `json:"low"`
	High       uint16    `json:"high"`
	Time       time.Time `json:"time"`
	ClearError string    `json:"clear_error,omitempty"`
}

// client is the part of pahomqtt.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

type Publisher struct {
	client client
	topic  string
	qos    byte
}

// Connect dials the broker and announces the meter as online. A retained
// "offline" status is left as the will.
func Connect(cfg tools.MQTTConfig) (*Publisher, error) {
	opts := buildClientOptions(cfg)
	c := pahomqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	p := &Publisher{client: c, topic: cfg.Topic, qos: byte(cfg.QoS)}
	if err := p.publish(statusTopic(cfg.Topic), true, []byte("online")); err != nil {
		logrus.WithError(err).Warn("Failed to publish online status")
	}
	return p, nil
}

func buildClientOptions(cfg tools.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetWill(statusTopic(cfg.Topic), "offline", byte(cfg.QoS), true)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logrus.WithError(err).Warn("MQTT connection lost")
	})
	return opts
}

func statusTopic(topic string) string {
	return topic + "/status"
}

// PublishCrossing sends c as JSON on the configured topic.
func (p *Publisher) PublishCrossing(c Crossing) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("mqtt: marshal crossing: %w", err)
	}
	return p.publish(p.topic, false, payload)
}

func (p *Publisher) publish(topic string, retained bool, payload []byte) error {
	token := p.client.Publish(topic, p.qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

// Close marks the meter offline and disconnects.
func (p *Publisher) Close() error {
	err := p.publish(statusTopic(p.topic), true, []byte("offline"))
	p.client.Disconnect(defaultDisconnectQuiesce)
	return err
}
