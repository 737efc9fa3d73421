package repository

import (
	"context"

	"GeoInsight-App/internal/domain/model"
)

// GeofencesRepository ジオフェンスの永続化を担うリポジトリのインターフェース
type GeofencesRepository interface {
	// Create ジオフェンスを新規作成
	Create(ctx context.Context, geofence *model.Geofence) error

	// GetByID 所有者スコープ付きでジオフェンスを取得
	GetByID(ctx context.Context, userID, geofenceID string) (*model.Geofence, error)

	// List ユーザーのジオフェンス一覧をページネーション付きで取得
	// isActiveがnilの場合はアクティブフラグでの絞り込みを行わない
	List(ctx context.Context, userID string, isActive *bool, limit, offset int) ([]*model.Geofence, error)

	// Update ジオフェンスを更新
	Update(ctx context.Context, geofence *model.Geofence) error

	// Delete ジオフェンスを削除
	Delete(ctx context.Context, userID, geofenceID string) error

	// LoadActiveGeofences 全ユーザーのアクティブなジオフェンスを取得
	// （起動時のSpatialIndex構築と一括リフレッシュで使用）
	LoadActiveGeofences(ctx context.Context) ([]*model.Geofence, error)

	// CountByUser ユーザーのジオフェンス数（総数・アクティブ数）を取得
	CountByUser(ctx context.Context, userID string) (total int, active int, err error)
}
