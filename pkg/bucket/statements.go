package bucket

import (
	"datahub/pkg/policy"
	"datahub/pkg/types"
)

const (
	sidGrantGetBucket   = "GrantGetBucket"
	sidOwnerFullAccess  = "OwnerFullAccess"
	sidDenyInsecure     = "DenyInsecureTransport"
	sidEnforceSharedKey = "EnforceSharedKeyEncryption"
	sidTopicPublish     = "AllowBucketNotifications"
	sidTopicSubscribe   = "GrantSubscribe"
)

func bucketResourceARNs(bucketARN types.ARN) policy.StringList {
	return policy.StringList{string(bucketARN), string(bucketARN) + "/*"}
}

// initialBucketStatements is the policy set a fresh bucket gets: the owner
// reads and writes, plaintext transport is denied, and objects must use the
// shared key.
func initialBucketStatements(partition string, bucketARN, keyARN types.ARN, owner types.AccountID) []policy.Statement {
	return []policy.Statement{
		{
			Sid:       sidOwnerFullAccess,
			Effect:    "Allow",
			Principal: &policy.Principal{AWS: policy.StringList{string(types.AccountRootARN(partition, owner))}},
			Action: policy.StringList{
				"s3:GetObject", "s3:PutObject", "s3:DeleteObject",
				"s3:GetBucketLocation", "s3:ListBucket",
			},
			Resource: bucketResourceARNs(bucketARN),
		},
		{
			Sid:       sidDenyInsecure,
			Effect:    "Deny",
			Principal: &policy.Principal{Any: true},
			Action:    policy.StringList{"s3:*"},
			Resource:  bucketResourceARNs(bucketARN),
			Condition: map[string]map[string]policy.StringList{
				"Bool": {"aws:SecureTransport": policy.StringList{"false"}},
			},
		},
		{
			Sid:       sidEnforceSharedKey,
			Effect:    "Deny",
			Principal: &policy.Principal{Any: true},
			Action:    policy.StringList{"s3:PutObject"},
			Resource:  policy.StringList{string(bucketARN) + "/*"},
			Condition: map[string]map[string]policy.StringList{
				"StringNotEquals": {"s3:x-amz-server-side-encryption-aws-kms-key-id": policy.StringList{string(keyARN)}},
			},
		},
	}
}

// readAccessStatement grants the reader accounts get and list on the bucket.
// The whole reader set lives in one statement so a permission change replaces
// it atomically.
func readAccessStatement(partition string, bucketARN types.ARN, readers []types.AccountID) policy.Statement {
	principals := make(policy.StringList, 0, len(readers))
	for _, account := range readers {
		principals = append(principals, string(types.AccountRootARN(partition, account)))
	}
	return policy.Statement{
		Sid:       sidGrantGetBucket,
		Effect:    "Allow",
		Principal: &policy.Principal{AWS: principals},
		Action:    policy.StringList{"s3:GetObject", "s3:GetBucketLocation", "s3:ListBucket"},
		Resource:  bucketResourceARNs(bucketARN),
	}
}

// initialTopicStatements lets the object store publish bucket notifications
// to the topic.
func initialTopicStatements(topicARN, bucketARN types.ARN) []policy.Statement {
	return []policy.Statement{
		{
			Sid:       sidTopicPublish,
			Effect:    "Allow",
			Principal: &policy.Principal{AWS: policy.StringList{"*"}},
			Action:    policy.StringList{"sns:Publish"},
			Resource:  policy.StringList{string(topicARN)},
			Condition: map[string]map[string]policy.StringList{
				"ArnLike": {"aws:SourceArn": policy.StringList{string(bucketARN)}},
			},
		},
	}
}

// topicSubscribeStatement grants the reader accounts subscription rights on
// the notification topic, mirroring the bucket's read-access statement.
func topicSubscribeStatement(partition string, topicARN types.ARN, readers []types.AccountID) policy.Statement {
	principals := make(policy.StringList, 0, len(readers))
	for _, account := range readers {
		principals = append(principals, string(types.AccountRootARN(partition, account)))
	}
	return policy.Statement{
		Sid:       sidTopicSubscribe,
		Effect:    "Allow",
		Principal: &policy.Principal{AWS: principals},
		Action:    policy.StringList{"sns:Subscribe", "sns:GetTopicAttributes"},
		Resource:  policy.StringList{string(topicARN)},
	}
}
