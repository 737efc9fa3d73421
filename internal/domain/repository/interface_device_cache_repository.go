package repository

import (
	"context"

	"GeoInsight-App/internal/domain/model"
)

// DeviceLocationCache デバイスの最終位置のリアルタイム参照用キャッシュ
// 評価エンジンの正本（DeviceStateStore）とは独立したパススルー情報の置き場
type DeviceLocationCache interface {
	// StoreLastLocation 最終位置をキャッシュする
	StoreLastLocation(ctx context.Context, update *model.DeviceLocationUpdate) error

	// GetLastLocation 最終位置を取得する（キャッシュ未登録の場合はnil, nil）
	GetLastLocation(ctx context.Context, deviceID string) (*model.DeviceLocationUpdate, error)
}
