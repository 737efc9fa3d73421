package repository

import (
	"context"
	"fmt"

	"GeoInsight-App/internal/domain/model"
	"GeoInsight-App/internal/domain/repository"
	fsinfra "GeoInsight-App/internal/infrastructure/firestore"
)

// deliveryCollection 配信履歴を保存するFirestoreコレクション名
const deliveryCollection = "webhookDeliveries"

// FirestoreEventHistoryRepository Firestoreを使用したWebhook配信履歴リポジトリ
// 冪等キーをドキュメントIDに使うため、同一イベントの再記録は上書きになる
type FirestoreEventHistoryRepository struct {
	client *fsinfra.FirestoreClient
}

// NewFirestoreEventHistoryRepository 新しいFirestoreEventHistoryRepositoryを作成
func NewFirestoreEventHistoryRepository(client *fsinfra.FirestoreClient) repository.EventHistoryRepository {
	return &FirestoreEventHistoryRepository{
		client: client,
	}
}

func (r *FirestoreEventHistoryRepository) Record(ctx context.Context, record *model.DeliveryRecord) error {
	docID := fmt.Sprintf("%s_%s", record.IdempotencyKey, record.Status)
	_, err := r.client.GetClient().Collection(deliveryCollection).Doc(docID).Set(ctx, record)
	if err != nil {
		return fmt.Errorf("配信履歴の保存に失敗しました: %w", err)
	}
	return nil
}
