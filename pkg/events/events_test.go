package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"datahub/pkg/clients/clientstest"
	"datahub/pkg/types"
)

func TestTopicPublisher(t *testing.T) {
	ctx := context.Background()
	topics := clientstest.NewFakeTopicClient("000011112222", "eu-west-1")
	topicARN, err := topics.CreateTopic(ctx, "datahub-events", "", nil)
	require.NoError(t, err)

	publisher := NewTopicPublisher(topics, topicARN, zap.NewNop())
	dataset := types.Dataset{
		ID:             "bo_a_raw",
		Hub:            types.HubDefault,
		OwnerAccountID: "111122223333",
		Permissions: []types.Permission{
			{AccountID: "444455556666", Stage: types.StageDev, Region: "eu-west-1", SyncType: types.SyncTypeResourceLink},
		},
		UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, publisher.PublishDatasetUpdated(ctx, dataset))

	require.Len(t, topics.Published, 1)
	published := topics.Published[0]
	assert.Equal(t, topicARN, published.Topic)
	assert.Equal(t, "dataset-updated", published.Subject)

	var message map[string]any
	require.NoError(t, json.Unmarshal([]byte(published.Message), &message))
	assert.Equal(t, "dataset-updated", message["event"])
	assert.Equal(t, "bo_a_raw", message["dataset_id"])
	assert.Equal(t, "111122223333", message["owner_account_id"])
	assert.Equal(t, float64(1), message["permissions"])
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.PublishDatasetUpdated(context.Background(), types.Dataset{}))
}
