package dynamodb

import (
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// NewClientFromConfig accepts an AWS SDK config and returns a DynamoDB client.
// tableEndpoint overrides the endpoint for DynamoDB only (DynamoDB Local runs
// on its own port, separate from the LocalStack edge).
func NewClientFromConfig(cfg sdkaws.Config, tableEndpoint string) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if tableEndpoint != "" {
			o.BaseEndpoint = sdkaws.String(tableEndpoint)
		}
	})
}
