package repository

import (
	"context"

	"GeoInsight-App/internal/domain/model"
)

// WebhooksRepository (ユーザー, ジオフェンス)ごとのWebhook設定ストアのインターフェース
type WebhooksRepository interface {
	// Register Webhook設定を登録する
	Register(ctx context.Context, userID, geofenceID string, config *model.WebhookConfig) error

	// Get Webhook設定を取得する（未登録の場合はnil, nilを返す）
	Get(ctx context.Context, userID, geofenceID string) (*model.WebhookConfig, error)

	// Remove Webhook設定を削除する
	Remove(ctx context.Context, userID, geofenceID string) error
}
