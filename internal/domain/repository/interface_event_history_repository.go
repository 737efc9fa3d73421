package repository

import (
	"context"

	"GeoInsight-App/internal/domain/model"
)

// EventHistoryRepository Webhook配信履歴（配信済み・デッドレター）の永続化
// 配信の失敗は評価ホットパスへ伝播させない観測用の記録であり、
// 記録自体の失敗も呼び出し側でログに留める
type EventHistoryRepository interface {
	// Record 配信結果レコードを保存する
	Record(ctx context.Context, record *model.DeliveryRecord) error
}
