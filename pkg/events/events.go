// Package events publishes control-plane domain events to the platform
// notification topic. Consumers (downstream caches, audit pipelines) are out
// of scope.
package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"datahub/pkg/clients"
	"datahub/pkg/types"
)

// Publisher emits domain events. Emitting is part of the saga's success path:
// exactly one dataset-updated event per committed permission change.
type Publisher interface {
	PublishDatasetUpdated(ctx context.Context, dataset types.Dataset) error
}

type datasetUpdatedMessage struct {
	Event          string          `json:"event"`
	DatasetID      types.DatasetID `json:"dataset_id"`
	Hub            types.Hub       `json:"hub"`
	OwnerAccountID types.AccountID `json:"owner_account_id"`
	Permissions    int             `json:"permissions"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TopicPublisher publishes to a notification topic.
type TopicPublisher struct {
	topics clients.TopicClient
	topic  types.ARN
	logger *zap.Logger
}

func NewTopicPublisher(topics clients.TopicClient, topic types.ARN, logger *zap.Logger) *TopicPublisher {
	return &TopicPublisher{topics: topics, topic: topic, logger: logger}
}

func (p *TopicPublisher) PublishDatasetUpdated(ctx context.Context, dataset types.Dataset) error {
	message, err := json.Marshal(datasetUpdatedMessage{
		Event:          "dataset-updated",
		DatasetID:      dataset.ID,
		Hub:            dataset.Hub,
		OwnerAccountID: dataset.OwnerAccountID,
		Permissions:    len(dataset.Permissions),
		UpdatedAt:      dataset.UpdatedAt,
	})
	if err != nil {
		return err
	}
	if err := p.topics.Publish(ctx, p.topic, "dataset-updated", string(message)); err != nil {
		return err
	}
	p.logger.Info("published dataset-updated", zap.String("dataset", string(dataset.ID)))
	return nil
}

// NopPublisher drops all events. Used by operator tooling that must not emit.
type NopPublisher struct{}

func (NopPublisher) PublishDatasetUpdated(context.Context, types.Dataset) error { return nil }
