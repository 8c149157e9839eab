package telemetry

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/itohio/gofreqmeter/pkg/monitor"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
}

var _ Publisher = (*RealPublisher)(nil)

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(broker, clientID string) (*RealPublisher, error) {
	if clientID == "" {
		clientID = "freqlog"
	}
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return &RealPublisher{client: client}, nil
}

// PublishAlarm sends an alarm with QoS 1; alarms must not be lost.
func (p *RealPublisher) PublishAlarm(ts time.Time, e monitor.Event) error {
	payload, err := FormatAlarm(ts, e)
	if err != nil {
		return fmt.Errorf("format alarm: %w", err)
	}
	return p.publish(TopicAlarm, 1, payload)
}

// PublishPage sends a page notice with QoS 0.
func (p *RealPublisher) PublishPage(ev PageEvent) error {
	payload, err := FormatPage(ev)
	if err != nil {
		return fmt.Errorf("format page: %w", err)
	}
	return p.publish(TopicPage, 0, payload)
}

func (p *RealPublisher) publish(topic string, qos byte, payload []byte) error {
	token := p.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
