package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"presence-backend/internal/env"
	"presence-backend/internal/model"
)

// DynamoStore writes presence records to a DynamoDB table keyed by userId.
// Each save overwrites the previous record for the user.
type DynamoStore struct {
	svc   *dynamodb.Client
	table string
}

func NewDynamoStore(table string) (*DynamoStore, error) {
	region := env.Get(env.AWSRegion)
	keyID := env.Get(env.AWSID)
	secret := env.Get(env.AWSSecret)
	token := env.Get(env.AWSToken)
	endpoint := env.Get(env.DynamoDBEndpoint)

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if keyID != "" && secret != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(keyID, secret, token)),
		))
	}

	cfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	clientOpts := []func(*dynamodb.Options){}
	if endpoint != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	return &DynamoStore{
		svc:   dynamodb.NewFromConfig(cfg, clientOpts...),
		table: table,
	}, nil
}

func (s *DynamoStore) SavePresence(ctx context.Context, rec model.PresenceRecord) error {
	av, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal presence record: %w", err)
	}

	_, err = s.svc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put presence record %s: %w", rec.UserID, err)
	}
	return nil
}
