package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/and161185/sortwatch/internal/device"
	"github.com/and161185/sortwatch/internal/model"
)

const publishTimeout = 5 * time.Second

// RealPublisher publishes to a paho client.
type RealPublisher struct {
	client paho.Client
	prefix string
	now    func() time.Time
}

// Options configures NewRealPublisher.
type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string
}

// NewRealPublisher connects to the broker. A last-will marks the device
// status as disconnected if the process dies.
func NewRealPublisher(o Options, log *zap.Logger) (*RealPublisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	will, err := FormatStatus(device.State{}, time.Now())
	if err != nil {
		return nil, err
	}
	statusTopic := o.TopicPrefix + "/" + TopicStatus

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(statusTopic, will, 1, true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("mqtt connection lost", zap.Error(err))
		}).
		SetOnConnectHandler(func(_ paho.Client) {
			log.Info("mqtt connected", zap.String("broker", o.Broker))
		})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect to broker %s: timeout", o.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return &RealPublisher{client: client, prefix: o.TopicPrefix, now: time.Now}, nil
}

// Publish sends ev at QoS 0, not retained.
func (p *RealPublisher) Publish(ev model.DeviceEvent) error {
	payload, err := FormatEvent(ev)
	if err != nil {
		return fmt.Errorf("format event: %w", err)
	}
	return p.send(TopicEvents, 0, false, payload)
}

// PublishStatus sends st at QoS 1, retained.
func (p *RealPublisher) PublishStatus(st device.State) error {
	payload, err := FormatStatus(st, p.now())
	if err != nil {
		return fmt.Errorf("format status: %w", err)
	}
	return p.send(TopicStatus, 1, true, payload)
}

func (p *RealPublisher) send(suffix string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(p.prefix+"/"+suffix, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", suffix)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", suffix, err)
	}
	return nil
}

// Close disconnects, allowing one second for in-flight messages.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
