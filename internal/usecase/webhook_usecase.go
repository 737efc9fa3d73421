package usecase

import (
	"context"
	"fmt"

	"GeoInsight-App/internal/domain/model"
	"GeoInsight-App/internal/domain/repository"
)

// WebhookUseCase ジオフェンスごとのWebhook設定管理を担うユースケース
type WebhookUseCase interface {
	// RegisterWebhook ジオフェンスにWebhook設定を登録する
	RegisterWebhook(ctx context.Context, userID, geofenceID string, config *model.WebhookConfig) error

	// GetWebhook ジオフェンスのWebhook設定を取得する（未登録の場合はnil）
	GetWebhook(ctx context.Context, userID, geofenceID string) (*model.WebhookConfig, error)

	// RemoveWebhook ジオフェンスのWebhook設定を削除する
	RemoveWebhook(ctx context.Context, userID, geofenceID string) error
}

// webhookUseCaseImpl WebhookUseCaseの実装
type webhookUseCaseImpl struct {
	webhooksRepo  repository.WebhooksRepository
	geofencesRepo repository.GeofencesRepository
}

// NewWebhookUseCase 新しいWebhookUseCaseインスタンスを作成
func NewWebhookUseCase(
	webhooksRepo repository.WebhooksRepository,
	geofencesRepo repository.GeofencesRepository,
) WebhookUseCase {
	return &webhookUseCaseImpl{
		webhooksRepo:  webhooksRepo,
		geofencesRepo: geofencesRepo,
	}
}

// RegisterWebhook ジオフェンスにWebhook設定を登録する
func (u *webhookUseCaseImpl) RegisterWebhook(ctx context.Context, userID, geofenceID string, config *model.WebhookConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("Webhook設定の検証失敗: %w", err)
	}

	// 所有権の確認（存在しないジオフェンスへの登録を防ぐ）
	if _, err := u.geofencesRepo.GetByID(ctx, userID, geofenceID); err != nil {
		return fmt.Errorf("対象ジオフェンスの確認失敗: %w", err)
	}

	return u.webhooksRepo.Register(ctx, userID, geofenceID, config)
}

// GetWebhook ジオフェンスのWebhook設定を取得する
func (u *webhookUseCaseImpl) GetWebhook(ctx context.Context, userID, geofenceID string) (*model.WebhookConfig, error) {
	return u.webhooksRepo.Get(ctx, userID, geofenceID)
}

// RemoveWebhook ジオフェンスのWebhook設定を削除する
func (u *webhookUseCaseImpl) RemoveWebhook(ctx context.Context, userID, geofenceID string) error {
	return u.webhooksRepo.Remove(ctx, userID, geofenceID)
}
