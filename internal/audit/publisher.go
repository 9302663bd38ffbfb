package audit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sing3demons/oryfm/pkg/logAction"
	"github.com/sing3demons/oryfm/pkg/mlog"
)

// Producer is satisfied by *kafka.Producer.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

type KafkaPublisher struct {
	producer Producer
	topic    string
}

func NewKafkaPublisher(producer Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Publish keys messages by subject so one user's events stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}
	mlog.L(ctx).Debug(logAction.PRODUCE(p.topic), map[string]any{"event": e})
	return p.producer.Publish(ctx, p.topic, []byte(e.Subject), value, map[string]string{"type": string(e.Type)})
}

// Recorder fans events out to every sink. A failing sink is logged and never
// fails the request that produced the event.
type Recorder struct {
	sinks []Publisher
}

func NewRecorder(sinks ...Publisher) *Recorder {
	return &Recorder{sinks: sinks}
}

func (r *Recorder) Record(ctx context.Context, e Event) {
	log := mlog.L(ctx)
	if e.TransactionID == "" {
		e.TransactionID = log.TransactionID()
	}
	log.Info(logAction.BUSINESS("audit "+string(e.Type)), e)

	var errs []error
	for _, s := range r.sinks {
		if err := s.Publish(context.WithoutCancel(ctx), e); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn(logAction.EXCEPTION("audit publish failed"), map[string]any{"type": e.Type, "error": err.Error()})
	}
}
