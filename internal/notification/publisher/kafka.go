// Package publisher hands claimed notifications to their delivery channel.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"dutyflow/internal/notification/models"
)

// Kafka produces one JSON record per notification. Records are keyed by the
// recipient's external id so a user's notifications stay ordered on one partition.
type Kafka struct {
	client *kgo.Client
	topic  string
}

func NewKafka(client *kgo.Client, topic string) *Kafka {
	return &Kafka{client: client, topic: topic}
}

// Publish produces the batch synchronously. The returned slice is aligned with
// batch; a nil entry means the record was acknowledged.
func (p *Kafka) Publish(ctx context.Context, batch []*models.Notification) []error {
	errs := make([]error, len(batch))
	records := make([]*kgo.Record, 0, len(batch))
	index := make([]int, 0, len(batch))
	for i, n := range batch {
		value, err := json.Marshal(n.ToMessage())
		if err != nil {
			errs[i] = fmt.Errorf("marshal notification: %w", err)
			continue
		}
		key := n.ExternalID
		if key == "" {
			key = n.RecipientID.String()
		}
		records = append(records, &kgo.Record{
			Topic: p.topic,
			Key:   []byte(key),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "type", Value: []byte(n.Type)},
				{Key: "notification_id", Value: []byte(n.ID.String())},
			},
		})
		index = append(index, i)
	}
	if len(records) == 0 {
		return errs
	}

	results := p.client.ProduceSync(ctx, records...)
	for i, r := range results {
		if r.Err != nil {
			errs[index[i]] = fmt.Errorf("produce notification: %w", r.Err)
		}
	}
	return errs
}
