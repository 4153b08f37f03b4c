package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/minasoft/lab-interop/internal/db"
	"github.com/nats-io/nats.go/jetstream"
)

// ErrNotInDLQ is returned when a message id is not in the dead letter queue.
var ErrNotInDLQ = errors.New("mesaj DLQ'da bulunamadı")

// DeadLetters stores outbound messages that exhausted their deliveries,
// keyed by message id.
type DeadLetters struct {
	kv jetstream.KeyValue
}

func NewDeadLetters(ctx context.Context, js jetstream.JetStream) (*DeadLetters, error) {
	kv, err := js.KeyValue(ctx, BucketDLQ)
	if err != nil {
		return nil, fmt.Errorf("%s erişilemedi: %w", BucketDLQ, err)
	}
	return &DeadLetters{kv: kv}, nil
}

func (d *DeadLetters) Put(ctx context.Context, msg db.LabMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mesaj serialize hatası: %w", err)
	}
	if _, err := d.kv.Put(ctx, kvToken(msg.ID), data); err != nil {
		return fmt.Errorf("DLQ'ya yazılamadı: %w", err)
	}
	return nil
}

func (d *DeadLetters) Get(ctx context.Context, id string) (db.LabMessage, error) {
	return d.get(ctx, kvToken(id))
}

// get reads the entry stored under an already escaped key.
func (d *DeadLetters) get(ctx context.Context, key string) (db.LabMessage, error) {
	entry, err := d.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return db.LabMessage{}, ErrNotInDLQ
	}
	if err != nil {
		return db.LabMessage{}, err
	}

	var msg db.LabMessage
	if err := json.Unmarshal(entry.Value(), &msg); err != nil {
		return db.LabMessage{}, fmt.Errorf("mesaj parse hatası: %w", err)
	}
	return msg, nil
}

func (d *DeadLetters) Delete(ctx context.Context, id string) error {
	return d.kv.Delete(ctx, kvToken(id))
}

// List returns dead letters, newest first.
func (d *DeadLetters) List(ctx context.Context) ([]db.LabMessage, error) {
	keys, err := d.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return []db.LabMessage{}, nil
	}
	if err != nil {
		return nil, err
	}

	messages := []db.LabMessage{}
	for _, key := range keys {
		msg, err := d.get(ctx, key)
		if err != nil {
			continue
		}
		messages = append(messages, msg)
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Timestamp.After(messages[j].Timestamp)
	})
	return messages, nil
}
