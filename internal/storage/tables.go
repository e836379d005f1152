package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
)

type tableDef struct {
	name string
	pk   string
	sk   string // empty for hash-only tables
}

func tableDefs(config DynamoConfig) []tableDef {
	return []tableDef{
		{config.DevicesTable, "HardwareID", ""},
		{config.SightingsTable, "HardwareID", "Timestamp"},
		{config.CommandsTable, "CommandID", ""},
		{config.PhotosTable, "HardwareID", "Timestamp"},
	}
}

// createTableInput builds the table definition for def
func createTableInput(def tableDef) *dynamodb.CreateTableInput {
	input := &dynamodb.CreateTableInput{
		TableName: aws.String(def.name),
		KeySchema: []dbtypes.KeySchemaElement{
			{AttributeName: aws.String(def.pk), KeyType: dbtypes.KeyTypeHash},
		},
		AttributeDefinitions: []dbtypes.AttributeDefinition{
			{AttributeName: aws.String(def.pk), AttributeType: dbtypes.ScalarAttributeTypeS},
		},
		BillingMode: dbtypes.BillingModePayPerRequest,
	}
	if def.sk != "" {
		input.KeySchema = append(input.KeySchema, dbtypes.KeySchemaElement{
			AttributeName: aws.String(def.sk), KeyType: dbtypes.KeyTypeRange,
		})
		input.AttributeDefinitions = append(input.AttributeDefinitions, dbtypes.AttributeDefinition{
			AttributeName: aws.String(def.sk), AttributeType: dbtypes.ScalarAttributeTypeS,
		})
	}
	return input
}

// CreateTablesIfNotExist creates DynamoDB tables for local development
func CreateTablesIfNotExist(ctx context.Context, client *dynamodb.Client, config DynamoConfig, logger zerolog.Logger) error {
	for _, table := range tableDefs(config) {
		_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(table.name),
		})
		if err == nil {
			logger.Info().Str("table", table.name).Msg("table already exists")
			continue
		}

		_, err = client.CreateTable(ctx, createTableInput(table))
		if err != nil {
			return fmt.Errorf("failed to create table %s: %w", table.name, err)
		}
		logger.Info().Str("table", table.name).Msg("table created")
	}

	return nil
}
