// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pion/logging"
)

// MQTT connection constants
const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	maxQoS                   = 2
	tlsMinVersion            = tls.VersionTLS12

	// DefaultMQTTTopic is the shared topic all nodes publish to and read from
	DefaultMQTTTopic = "escaperoom/link"
)

// MQTTConfig configures an MQTT link. All participants share one topic,
// which plays the role of the broadcast radio channel.
type MQTTConfig struct {
	Host     string
	Port     int
	TLS      bool
	ClientID string // Defaults to "endnode-<random>"
	Username string
	Password string
	Topic    string
	QoS      byte

	LoggerFactory logging.LoggerFactory
}

// MQTTLink publishes and receives payloads on a shared MQTT topic.
// A participant also receives its own publishes; the codec addressing
// (TNID) makes those harmless.
type MQTTLink struct {
	client pahomqtt.Client
	cfg    MQTTConfig
	log    logging.LeveledLogger

	frames    chan received
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	dropped uint64
}

// DialMQTT connects to the broker and subscribes to the link topic
func DialMQTT(cfg MQTTConfig) (*MQTTLink, error) {
	if cfg.Topic == "" {
		cfg.Topic = DefaultMQTTTopic
	}
	if cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}
	if cfg.Port == 0 {
		cfg.Port = 1883
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "endnode-" + uuid.NewString()[:8]
	}

	l := &MQTTLink{
		cfg:    cfg,
		log:    loggerFactory(cfg.LoggerFactory).NewLogger("transport-mqtt"),
		frames: make(chan received, 64),
		done:   make(chan struct{}),
	}

	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		// Clean sessions drop subscriptions, so restore on every reconnect
		c.Subscribe(cfg.Topic, cfg.QoS, l.handleMessage)
		l.log.Infof("connected to %s", l.Describe())
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		l.log.Warnf("connection lost: %v", err)
	})

	l.client = pahomqtt.NewClient(opts)
	token := l.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	sub := l.client.Subscribe(cfg.Topic, cfg.QoS, l.handleMessage)
	if !sub.WaitTimeout(defaultPublishTimeout) || sub.Error() != nil {
		l.client.Disconnect(defaultDisconnectQuiesce)
		return nil, fmt.Errorf("%w: subscribe %s: %v", ErrConnectionFailed, cfg.Topic, sub.Error())
	}

	return l, nil
}

// buildClientOptions creates paho options from the link config
func buildClientOptions(cfg MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// handleMessage queues an incoming payload. A full queue drops the payload,
// like a radio receiver that is not listening.
func (l *MQTTLink) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	select {
	case <-l.done:
		return
	default:
	}

	select {
	case l.frames <- received{payload: string(msg.Payload())}:
	default:
		l.mu.Lock()
		l.dropped++
		l.mu.Unlock()
		l.log.Warnf("receive queue full, dropped %d byte payload", len(msg.Payload()))
	}
}

// Receive returns the next payload published on the link topic
func (l *MQTTLink) Receive(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-l.done:
		return "", ErrClosed
	case r := <-l.frames:
		return r.payload, r.err
	}
}

// Send publishes a payload on the link topic
func (l *MQTTLink) Send(payload string) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	if !l.client.IsConnected() {
		return ErrNotConnected
	}

	token := l.client.Publish(l.cfg.Topic, l.cfg.QoS, false, []byte(payload))
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close unsubscribes and disconnects
func (l *MQTTLink) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		if l.client.IsConnected() {
			l.client.Unsubscribe(l.cfg.Topic).WaitTimeout(defaultPublishTimeout)
		}
		l.client.Disconnect(defaultDisconnectQuiesce)
	})
	return nil
}

// Describe returns a human-readable link description
func (l *MQTTLink) Describe() string {
	return fmt.Sprintf("MQTT: %s:%d topic %s", l.cfg.Host, l.cfg.Port, l.cfg.Topic)
}

// Dropped returns the number of payloads lost to a full receive queue
func (l *MQTTLink) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
