package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
)

// ProductRepository resolves catalogue products for the cart.
type ProductRepository interface {
	FindByID(ctx context.Context, id string) (*models.Product, error)
}

// DynamoGetItemAPI is the slice of the DynamoDB client the product lookup needs.
type DynamoGetItemAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

type DynamoProductRepository struct {
	client DynamoGetItemAPI
	table  string
}

func NewDynamoProductRepository(client DynamoGetItemAPI, table string) *DynamoProductRepository {
	return &DynamoProductRepository{client: client, table: table}
}

type ddbProduct struct {
	ProductID   string   `dynamodbav:"product_id"`
	Name        string   `dynamodbav:"name"`
	Description string   `dynamodbav:"description"`
	Price       float64  `dynamodbav:"price"`
	Images      []string `dynamodbav:"images"`
	SellerID    string   `dynamodbav:"seller_id"`
	Quantity    int      `dynamodbav:"quantity"`
	DeletedAt   *string  `dynamodbav:"deleted_at,omitempty"`
}

func (r *DynamoProductRepository) FindByID(ctx context.Context, id string) (*models.Product, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"product_id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var rec ddbProduct
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	if rec.DeletedAt != nil {
		return nil, ErrNotFound
	}

	p := &models.Product{
		ID:          rec.ProductID,
		Name:        rec.Name,
		Description: rec.Description,
		Price:       rec.Price,
		SellerID:    rec.SellerID,
		InStock:     rec.Quantity > 0,
	}
	if len(rec.Images) > 0 {
		p.ImageURL = rec.Images[0]
	}
	return p, nil
}
