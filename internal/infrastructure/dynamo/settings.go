package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const lockEnabledSetting = "lock_enabled"

// SettingsRepo stores one item per preference, keyed by setting_key.
type SettingsRepo struct {
	client    API
	tableName string
}

func NewSettingsRepo(client API, tableName string) *SettingsRepo {
	return &SettingsRepo{client: client, tableName: tableName}
}

func (r *SettingsRepo) LockEnabled(ctx context.Context) (bool, bool, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldSettingKey, lockEnabledSetting),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, false, fmt.Errorf("get setting: %w", err)
	}
	if out.Item == nil {
		return false, false, nil
	}
	v, ok := out.Item[fieldEnabled].(*types.AttributeValueMemberBOOL)
	if !ok {
		return false, false, fmt.Errorf("setting %s has no boolean %s", lockEnabledSetting, fieldEnabled)
	}
	return v.Value, true, nil
}

func (r *SettingsRepo) SetLockEnabled(ctx context.Context, enabled bool) error {
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item: map[string]types.AttributeValue{
			fieldSettingKey: &types.AttributeValueMemberS{Value: lockEnabledSetting},
			fieldEnabled:    &types.AttributeValueMemberBOOL{Value: enabled},
		},
	})
	if err != nil {
		return fmt.Errorf("put setting: %w", err)
	}
	return nil
}
