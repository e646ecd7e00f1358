package aws

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI is the part of the SNS client the publisher calls.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSClient publishes domain events keyed by aggregate id. On FIFO topics
// the key becomes the message group, so events of one order stay ordered.
type SNSClient struct {
	client SNSAPI
}

func NewSNSClient(cfg sdkaws.Config) *SNSClient {
	return &SNSClient{client: sns.NewFromConfig(cfg)}
}

func NewSNSClientWithAPI(client SNSAPI) *SNSClient {
	return &SNSClient{client: client}
}

// Publish sends message to topicArn with key as the "key" message attribute.
func (s *SNSClient) Publish(ctx context.Context, topicArn, key string, message []byte) error {
	if topicArn == "" {
		return fmt.Errorf("empty topicArn")
	}
	input := &sns.PublishInput{
		TopicArn: sdkaws.String(topicArn),
		Message:  sdkaws.String(string(message)),
	}
	if key != "" {
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			"key": {DataType: sdkaws.String("String"), StringValue: sdkaws.String(key)},
		}
	}
	if strings.HasSuffix(topicArn, ".fifo") {
		group := key
		if group == "" {
			group = "default"
		}
		sum := sha256.Sum256(message)
		input.MessageGroupId = sdkaws.String(group)
		input.MessageDeduplicationId = sdkaws.String(hex.EncodeToString(sum[:]))
	}

	if _, err := s.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("sns publish failed for topic %s: %w", topicArn, err)
	}
	return nil
}
