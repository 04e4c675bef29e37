package clients

import (
	"context"

	"datahub/pkg/policy"
	"datahub/pkg/types"
)

// TopicClient drives the notification service in one account and region.
type TopicClient interface {
	CreateTopic(ctx context.Context, name string, keyARN types.ARN, tags map[string]string) (types.ARN, error)
	DeleteTopic(ctx context.Context, arn types.ARN) error
	GetTopicPolicy(ctx context.Context, arn types.ARN) (policy.Document, error)
	SetTopicPolicy(ctx context.Context, arn types.ARN, doc policy.Document) error
	Publish(ctx context.Context, arn types.ARN, subject, message string) error
}

// SetTopicPolicyTransaction writes the new topic policy, runs body, and
// restores the previous policy when body fails. The body error always
// propagates; restore failures never mask it.
func SetTopicPolicyTransaction(
	ctx context.Context,
	client TopicClient,
	arn types.ARN,
	old policy.Document,
	updated policy.Document,
	body func() error,
) error {
	if err := client.SetTopicPolicy(ctx, arn, updated); err != nil {
		return err
	}
	if err := body(); err != nil {
		_ = client.SetTopicPolicy(ctx, arn, old)
		return err
	}
	return nil
}
