package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"GeoInsight-App/internal/domain/model"
	"GeoInsight-App/internal/domain/repository"
)

// webhookConfigTTL Webhook設定の保持期間（30日）
const webhookConfigTTL = 30 * 24 * time.Hour

// RedisWebhooksRepository Redisを使用したWebhook設定ストア
// 配信ホットパスから高頻度で参照されるためTTL付きのキーで保持する
type RedisWebhooksRepository struct {
	client *redis.Client
}

// NewRedisWebhooksRepository 新しいRedisWebhooksRepositoryを作成
func NewRedisWebhooksRepository(client *redis.Client) repository.WebhooksRepository {
	return &RedisWebhooksRepository{
		client: client,
	}
}

// webhookKey (ユーザー, ジオフェンス)ごとのRedisキー
func webhookKey(userID, geofenceID string) string {
	return fmt.Sprintf("webhook:%s:%s", userID, geofenceID)
}

func (r *RedisWebhooksRepository) Register(ctx context.Context, userID, geofenceID string, config *model.WebhookConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("Webhook設定の検証失敗: %w", err)
	}

	data, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("Webhook設定のJSONマーシャル失敗: %w", err)
	}

	if err := r.client.Set(ctx, webhookKey(userID, geofenceID), data, webhookConfigTTL).Err(); err != nil {
		return fmt.Errorf("Webhook設定の保存失敗: %w", err)
	}

	return nil
}

func (r *RedisWebhooksRepository) Get(ctx context.Context, userID, geofenceID string) (*model.WebhookConfig, error) {
	data, err := r.client.Get(ctx, webhookKey(userID, geofenceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// 未登録は正常系（nil, nil）
			return nil, nil
		}
		return nil, fmt.Errorf("Webhook設定の取得失敗: %w", err)
	}

	var config model.WebhookConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("Webhook設定のJSONアンマーシャル失敗: %w", err)
	}

	return &config, nil
}

func (r *RedisWebhooksRepository) Remove(ctx context.Context, userID, geofenceID string) error {
	if err := r.client.Del(ctx, webhookKey(userID, geofenceID)).Err(); err != nil {
		return fmt.Errorf("Webhook設定の削除失敗: %w", err)
	}
	return nil
}
