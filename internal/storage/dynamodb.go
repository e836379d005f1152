package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/rs/zerolog"
)

// DynamoDBStore implements Store using AWS DynamoDB
type DynamoDBStore struct {
	client *dynamodb.Client
	config DynamoConfig
	logger zerolog.Logger
}

// NewDynamoDBStore creates a new DynamoDB store
func NewDynamoDBStore(ctx context.Context, cfg DynamoConfig, logger zerolog.Logger) (*DynamoDBStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == DynamoModeLocal {
		// LoadDefaultConfig probes the EC2 IMDS endpoint, which hangs on EC2
		// instances when static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	store := &DynamoDBStore{
		client: client,
		config: cfg,
		logger: logger.With().Str("component", "storage").Logger(),
	}

	if cfg.Mode == DynamoModeLocal {
		if err := CreateTablesIfNotExist(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Msg("DynamoDB store initialized")

	return store, nil
}

func (s *DynamoDBStore) put(ctx context.Context, table string, v any, what string) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", what, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", what, err)
	}
	return nil
}

func (s *DynamoDBStore) GetDevice(ctx context.Context, hardwareID string) (*types.Device, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"HardwareID": hardwareID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key: %w", err)
	}

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.DevicesTable),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	var device types.Device
	if err := attributevalue.UnmarshalMap(result.Item, &device); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device: %w", err)
	}
	return &device, nil
}

func (s *DynamoDBStore) PutDevice(ctx context.Context, device types.Device) error {
	return s.put(ctx, s.config.DevicesTable, device, "device")
}

func (s *DynamoDBStore) TouchDevice(ctx context.Context, hardwareID string, seen time.Time, loc *types.Location) error {
	key, err := attributevalue.MarshalMap(map[string]string{"HardwareID": hardwareID})
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}

	update := expression.Set(expression.Name("LastSeen"), expression.Value(seen))
	if loc != nil {
		update = update.Set(expression.Name("LastPosition"), expression.Value(*loc))
	}
	cond := expression.AttributeExists(expression.Name("HardwareID"))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.config.DevicesTable),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var condErr *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to touch device: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) ListDevices(ctx context.Context, userID string) ([]types.Device, error) {
	filter := expression.Name("UserID").Equal(expression.Value(userID))
	items, err := s.scan(ctx, s.config.DevicesTable, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to scan devices: %w", err)
	}

	var devices []types.Device
	if err := attributevalue.UnmarshalListOfMaps(items, &devices); err != nil {
		return nil, fmt.Errorf("failed to unmarshal devices: %w", err)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].RegisteredAt.Before(devices[j].RegisteredAt) })
	return devices, nil
}

func (s *DynamoDBStore) AddSighting(ctx context.Context, sighting types.Sighting) error {
	return s.put(ctx, s.config.SightingsTable, sighting, "sighting")
}

func (s *DynamoDBStore) ListSightings(ctx context.Context, hardwareID string, limit int) ([]types.Sighting, error) {
	keyCond := expression.Key("HardwareID").Equal(expression.Value(hardwareID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.SightingsTable),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query sightings: %w", err)
	}

	var sightings []types.Sighting
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &sightings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sightings: %w", err)
	}
	return sightings, nil
}

func (s *DynamoDBStore) AddCommand(ctx context.Context, cmd types.CommandRecord) error {
	return s.put(ctx, s.config.CommandsTable, cmd, "command")
}

// PendingCommands scans with a filter. A GSI on HardwareID would avoid the
// scan once command volume grows.
func (s *DynamoDBStore) PendingCommands(ctx context.Context, hardwareID string) ([]types.CommandRecord, error) {
	filter := expression.Name("HardwareID").Equal(expression.Value(hardwareID)).
		And(expression.Name("Executed").Equal(expression.Value(false)))
	items, err := s.scan(ctx, s.config.CommandsTable, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to scan commands: %w", err)
	}

	var cmds []types.CommandRecord
	if err := attributevalue.UnmarshalListOfMaps(items, &cmds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal commands: %w", err)
	}
	sort.SliceStable(cmds, func(i, j int) bool { return cmds[i].IssuedAt.Before(cmds[j].IssuedAt) })
	return cmds, nil
}

func (s *DynamoDBStore) CompleteCommand(ctx context.Context, commandID string, result types.Result, at time.Time) (*types.CommandRecord, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"CommandID": commandID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key: %w", err)
	}

	update := expression.Set(expression.Name("Executed"), expression.Value(true)).
		Set(expression.Name("ExecutedAt"), expression.Value(at)).
		Set(expression.Name("Result"), expression.Value(result))
	cond := expression.AttributeExists(expression.Name("CommandID"))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.config.CommandsTable),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              dbtypes.ReturnValueAllNew,
	})
	if err != nil {
		var condErr *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to complete command: %w", err)
	}

	var cmd types.CommandRecord
	if err := attributevalue.UnmarshalMap(out.Attributes, &cmd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal command: %w", err)
	}
	return &cmd, nil
}

func (s *DynamoDBStore) AddPhoto(ctx context.Context, photo types.Photo) error {
	return s.put(ctx, s.config.PhotosTable, photo, "photo")
}

func (s *DynamoDBStore) ListPhotos(ctx context.Context, hardwareID string) ([]types.Photo, error) {
	keyCond := expression.Key("HardwareID").Equal(expression.Value(hardwareID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.PhotosTable),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query photos: %w", err)
	}

	var photos []types.Photo
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &photos); err != nil {
		return nil, fmt.Errorf("failed to unmarshal photos: %w", err)
	}
	return photos, nil
}

// scan pages through table with a filter
func (s *DynamoDBStore) scan(ctx context.Context, table string, filter expression.ConditionBuilder) ([]map[string]dbtypes.AttributeValue, error) {
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	var (
		items   []map[string]dbtypes.AttributeValue
		lastKey map[string]dbtypes.AttributeValue
	)
	for {
		result, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(table),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         lastKey,
		})
		if err != nil {
			return nil, err
		}
		items = append(items, result.Items...)

		lastKey = result.LastEvaluatedKey
		if lastKey == nil {
			break
		}
	}
	return items, nil
}
