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

// deviceLocationTTL 最終位置キャッシュの保持期間（1時間）
const deviceLocationTTL = time.Hour

// RedisDeviceCacheRepository Redisを使用したデバイス最終位置キャッシュ
// 速度・方位などのパススルー項目を含むリアルタイム参照用で、
// 評価エンジンの包含状態の正本はDeviceStateStoreが別途保持する
type RedisDeviceCacheRepository struct {
	client *redis.Client
}

// NewRedisDeviceCacheRepository 新しいRedisDeviceCacheRepositoryを作成
func NewRedisDeviceCacheRepository(client *redis.Client) repository.DeviceLocationCache {
	return &RedisDeviceCacheRepository{
		client: client,
	}
}

// deviceLocationKey デバイスごとのRedisキー
func deviceLocationKey(deviceID string) string {
	return fmt.Sprintf("device:%s:location", deviceID)
}

func (r *RedisDeviceCacheRepository) StoreLastLocation(ctx context.Context, update *model.DeviceLocationUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("位置情報のJSONマーシャル失敗: %w", err)
	}

	if err := r.client.Set(ctx, deviceLocationKey(update.DeviceID), data, deviceLocationTTL).Err(); err != nil {
		return fmt.Errorf("位置情報キャッシュの保存失敗: %w", err)
	}

	return nil
}

func (r *RedisDeviceCacheRepository) GetLastLocation(ctx context.Context, deviceID string) (*model.DeviceLocationUpdate, error) {
	data, err := r.client.Get(ctx, deviceLocationKey(deviceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("位置情報キャッシュの取得失敗: %w", err)
	}

	var update model.DeviceLocationUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return nil, fmt.Errorf("位置情報のJSONアンマーシャル失敗: %w", err)
	}

	return &update, nil
}
