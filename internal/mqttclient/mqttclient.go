package mqttclient

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

type Client struct {
	client    mqtt.Client
	baseTopic string
	log       zerolog.Logger
}

type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	ClientID  string
	BaseTopic string
}

// Enabled: MQTT é opcional, host vazio desliga a publicação.
func (c Config) Enabled() bool { return c.Host != "" }

func (c Config) broker() string {
	port := c.Port
	if port == 0 {
		port = 1883
	}
	return fmt.Sprintf("tcp://%s:%d", c.Host, port)
}

func (c Config) base() string {
	b := strings.Trim(c.BaseTopic, "/")
	if b == "" {
		return "cam-snap"
	}
	return b
}

func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	log = log.With().Str("component", "mqtt").Logger()
	base := cfg.base()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.broker())
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetWill(StatusTopic(base)+"/online", "false", 1, true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		c.Publish(StatusTopic(base)+"/online", 1, true, "true")
		log.Info().Str("broker", cfg.broker()).Msg("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	cli := mqtt.NewClient(opts)
	token := cli.Connect()
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}

	return &Client{client: cli, baseTopic: base, log: log}, nil
}

// BaseTopic é o prefixo configurado, sem barras nas pontas.
func (c *Client) BaseTopic() string { return c.baseTopic }

func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt publish %s: timeout", topic)
	}
	return token.Error()
}

// PublishJSON serializa v e publica com QoS 1.
func (c *Client) PublishJSON(topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}
	if err := c.Publish(topic, 1, retained, payload); err != nil {
		return err
	}
	c.log.Debug().Str("topic", topic).Int("bytes", len(payload)).Msg("published")
	return nil
}

func (c *Client) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	return token.Error()
}

func (c *Client) Close() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Publish(StatusTopic(c.baseTopic)+"/online", 1, true, "false").WaitTimeout(time.Second)
		c.client.Disconnect(250)
	}
}

// SnapshotTopic: <base>/snapshots/<label>
func SnapshotTopic(base, label string) string {
	return strings.Trim(base, "/") + "/snapshots/" + topicSafe(label)
}

// StatusTopic: <base>/status (retido)
func StatusTopic(base string) string {
	return strings.Trim(base, "/") + "/status"
}

// topicSafe tira os curingas e separadores do MQTT de um nível de tópico.
func topicSafe(level string) string {
	r := strings.NewReplacer("/", "_", "+", "_", "#", "_")
	if level = r.Replace(level); level == "" {
		return "_"
	}
	return level
}
