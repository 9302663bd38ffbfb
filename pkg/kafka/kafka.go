// Package kafka wraps a segmentio/kafka-go writer for fire-and-forget event
// publishing.
package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

var (
	errBrokerNotProvided = errors.New("kafka broker address not provided")
	errTopicNotProvided  = errors.New("kafka topic not provided")
)

const (
	DefaultBatchSize    = 100
	DefaultBatchTimeout = 10 * time.Millisecond
	defaultWriteTimeout = 10 * time.Second
)

type Config struct {
	Brokers          []string
	BatchSize        int
	BatchTimeout     time.Duration
	SASLMechanism    string
	SASLUser         string
	SASLPassword     string
	SecurityProtocol string
	TLS              TLSConfig
}

type TLSConfig struct {
	CertFile, KeyFile, CACertFile string
	InsecureSkipVerify            bool
}

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer MessageWriter
}

func New(conf Config) (*Producer, error) {
	if len(conf.Brokers) == 0 {
		return nil, errBrokerNotProvided
	}
	if conf.BatchSize <= 0 {
		conf.BatchSize = DefaultBatchSize
	}
	if conf.BatchTimeout <= 0 {
		conf.BatchTimeout = DefaultBatchTimeout
	}
	if conf.SecurityProtocol == "" {
		conf.SecurityProtocol = "PLAINTEXT"
	}

	transport, err := newTransport(conf)
	if err != nil {
		return nil, err
	}
	return NewWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(conf.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              conf.BatchSize,
		BatchTimeout:           conf.BatchTimeout,
		WriteTimeout:           defaultWriteTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Transport:              transport,
	}), nil
}

func NewWithWriter(w MessageWriter) *Producer {
	return &Producer{writer: w}
}

// Publish writes one message. Messages with the same key land on the same
// partition.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	if topic == "" {
		return errTopicNotProvided
	}
	msg := kafka.Message{Topic: topic, Key: key, Value: value}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func newTransport(conf Config) (*kafka.Transport, error) {
	transport := &kafka.Transport{DialTimeout: 10 * time.Second}
	protocol := strings.ToUpper(conf.SecurityProtocol)

	if protocol == "SASL_PLAINTEXT" || protocol == "SASL_SSL" {
		mech, err := getSASLMechanism(conf.SASLMechanism, conf.SASLUser, conf.SASLPassword)
		if err != nil {
			return nil, err
		}
		transport.SASL = mech
	}
	if protocol == "SSL" || protocol == "SASL_SSL" {
		tlsConfig, err := createTLSConfig(&conf.TLS)
		if err != nil {
			return nil, err
		}
		transport.TLS = tlsConfig
	}
	return transport, nil
}

func getSASLMechanism(mechanism, username, password string) (sasl.Mechanism, error) {
	switch strings.ToUpper(mechanism) {
	case "PLAIN":
		return plain.Mechanism{Username: username, Password: password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, username, password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, username, password)
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", mechanism)
	}
}

func createTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.CACertFile != "" {
		caCert, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		pool.AppendCertsFromPEM(caCert)
		tlsConfig.RootCAs = pool
	}
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}
