package alarm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/eclipse/paho.golang/paho"
)

// Publisher is the part of *paho.Client the MQTT sink needs.
type Publisher interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

type buzzerCommand struct {
	State string    `json:"state"`
	Loop  bool      `json:"loop"`
	At    time.Time `json:"at"`
}

// MQTTSink relays the alarm to a networked buzzer by publishing retained
// "on"/"off" commands, so a buzzer that reconnects picks up the current state.
type MQTTSink struct {
	pub    Publisher
	topic  string
	logger *slog.Logger
	now    func() time.Time
}

func NewMQTTSink(pub Publisher, topic string, logger *slog.Logger) *MQTTSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTSink{
		pub:    pub,
		topic:  topic,
		logger: logger.With("sink", "mqtt", "topic", topic),
		now:    time.Now,
	}
}

func (s *MQTTSink) Play(ctx context.Context, loop bool) error {
	return s.publish(ctx, buzzerCommand{State: "on", Loop: loop, At: s.now()})
}

func (s *MQTTSink) Stop(ctx context.Context) error {
	return s.publish(ctx, buzzerCommand{State: "off", At: s.now()})
}

func (s *MQTTSink) publish(ctx context.Context, cmd buzzerCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode buzzer command: %w", err)
	}
	_, err = s.pub.Publish(ctx, &paho.Publish{
		QoS:     1,
		Retain:  true,
		Topic:   s.topic,
		Payload: payload,
		Properties: &paho.PublishProperties{
			ContentType: "application/json",
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", cmd.State, s.topic, err)
	}
	s.logger.Debug("buzzer command published", "state", cmd.State)
	return nil
}

// DialMQTT connects a paho client to broker ("host:port").
func DialMQTT(ctx context.Context, broker, clientID string) (*paho.Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", broker)
	if err != nil {
		return nil, fmt.Errorf("dial mqtt broker %s: %w", broker, err)
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: clientID,
		Conn:     conn,
	})
	ack, err := client.Connect(ctx, &paho.Connect{
		ClientID:   clientID,
		KeepAlive:  30,
		CleanStart: true,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	if ack.ReasonCode != 0 {
		conn.Close()
		return nil, fmt.Errorf("mqtt connect refused: reason code %d", ack.ReasonCode)
	}
	return client, nil
}
