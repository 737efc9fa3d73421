package usecase

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"GeoInsight-App/internal/domain/model"
	"GeoInsight-App/internal/domain/repository"
	"GeoInsight-App/internal/domain/service"
)

// GeofenceUseCase ジオフェンスCRUDと評価エンジンの同期を担うユースケース
//
// 永続化の変更は同じ呼び出しの中でカタログとSpatialIndexへ反映するため、
// インデックスが永続化状態から1変更分を超えて遅れることはない
type GeofenceUseCase interface {
	// CreateGeofence ジオフェンスを新規作成し、インデックスへ登録する
	CreateGeofence(ctx context.Context, userID string, req *model.CreateGeofenceRequest) (*model.Geofence, error)

	// GetGeofence ジオフェンスを取得する
	GetGeofence(ctx context.Context, userID, geofenceID string) (*model.Geofence, error)

	// ListGeofences ジオフェンス一覧をページネーション付きで取得する
	ListGeofences(ctx context.Context, userID string, isActive *bool, limit, offset int) ([]*model.Geofence, error)

	// UpdateGeofence ジオフェンスを更新し、インデックスを同期する
	UpdateGeofence(ctx context.Context, userID, geofenceID string, req *model.UpdateGeofenceRequest) (*model.Geofence, error)

	// DeleteGeofence ジオフェンスを削除し、インデックスから除去する
	DeleteGeofence(ctx context.Context, userID, geofenceID string) error

	// CheckPoint 点がユーザーのどのジオフェンスに含まれるかを分類する
	CheckPoint(ctx context.Context, userID string, req *model.CheckPointRequest) (*model.CheckPointResult, error)

	// GetStats ユーザーのジオフェンス統計を取得する
	GetStats(ctx context.Context, userID string) (*model.GeofenceStatsResponse, error)

	// RefreshIndex 永続化層からアクティブなジオフェンスを再ロードして
	// カタログとインデックスを一括更新する（起動時に使用）
	RefreshIndex(ctx context.Context) (int, error)
}

// geofenceUseCaseImpl GeofenceUseCaseの実装
type geofenceUseCaseImpl struct {
	geofencesRepo repository.GeofencesRepository
	catalog       *service.GeofenceCatalog
	index         *service.SpatialIndex
	geometry      *service.GeometryService
}

// NewGeofenceUseCase 新しいGeofenceUseCaseインスタンスを作成
func NewGeofenceUseCase(
	geofencesRepo repository.GeofencesRepository,
	catalog *service.GeofenceCatalog,
	index *service.SpatialIndex,
	geometry *service.GeometryService,
) GeofenceUseCase {
	return &geofenceUseCaseImpl{
		geofencesRepo: geofencesRepo,
		catalog:       catalog,
		index:         index,
		geometry:      geometry,
	}
}

// CreateGeofence ジオフェンスを新規作成し、インデックスへ登録する
func (u *geofenceUseCaseImpl) CreateGeofence(ctx context.Context, userID string, req *model.CreateGeofenceRequest) (*model.Geofence, error) {
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	now := time.Now().UTC()
	geofence := &model.Geofence{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
		Geometry:    req.Geometry,
		TriggerType: req.TriggerType,
		IsActive:    isActive,
		Metadata:    req.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// 形状の検証は作成時に一度だけ行う（クエリごとの再検証はしない）
	if err := geofence.Validate(); err != nil {
		return nil, fmt.Errorf("ジオフェンスの検証失敗: %w", err)
	}

	if err := u.geofencesRepo.Create(ctx, geofence); err != nil {
		return nil, fmt.Errorf("ジオフェンスの保存失敗: %w", err)
	}

	// 永続化コミットと同期してカタログ・インデックスを更新する
	u.applyToIndex(geofence)
	log.Printf("✅ ジオフェンス作成: %s (%s, trigger=%s)", geofence.ID, geofence.Name, geofence.TriggerType)

	return geofence, nil
}

// GetGeofence ジオフェンスを取得する
func (u *geofenceUseCaseImpl) GetGeofence(ctx context.Context, userID, geofenceID string) (*model.Geofence, error) {
	return u.geofencesRepo.GetByID(ctx, userID, geofenceID)
}

// ListGeofences ジオフェンス一覧を取得する
func (u *geofenceUseCaseImpl) ListGeofences(ctx context.Context, userID string, isActive *bool, limit, offset int) ([]*model.Geofence, error) {
	return u.geofencesRepo.List(ctx, userID, isActive, limit, offset)
}

// UpdateGeofence ジオフェンスを更新し、インデックスを同期する
func (u *geofenceUseCaseImpl) UpdateGeofence(ctx context.Context, userID, geofenceID string, req *model.UpdateGeofenceRequest) (*model.Geofence, error) {
	geofence, err := u.geofencesRepo.GetByID(ctx, userID, geofenceID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		geofence.Name = *req.Name
	}
	if req.Description != nil {
		geofence.Description = *req.Description
	}
	if req.Geometry != nil {
		geofence.Geometry = req.Geometry
	}
	if req.TriggerType != nil {
		geofence.TriggerType = *req.TriggerType
	}
	if req.IsActive != nil {
		geofence.IsActive = *req.IsActive
	}
	if req.Metadata != nil {
		geofence.Metadata = req.Metadata
	}
	geofence.UpdatedAt = time.Now().UTC()

	if err := geofence.Validate(); err != nil {
		return nil, fmt.Errorf("ジオフェンスの検証失敗: %w", err)
	}

	if err := u.geofencesRepo.Update(ctx, geofence); err != nil {
		return nil, fmt.Errorf("ジオフェンスの更新失敗: %w", err)
	}

	u.applyToIndex(geofence)
	log.Printf("✅ ジオフェンス更新: %s (active=%t)", geofence.ID, geofence.IsActive)

	return geofence, nil
}

// DeleteGeofence ジオフェンスを削除し、インデックスから除去する
// 各デバイスの包含集合に残った参照は次回評価時に自然に落ちる（遅延補正）
func (u *geofenceUseCaseImpl) DeleteGeofence(ctx context.Context, userID, geofenceID string) error {
	if _, err := u.geofencesRepo.GetByID(ctx, userID, geofenceID); err != nil {
		return err
	}

	if err := u.geofencesRepo.Delete(ctx, userID, geofenceID); err != nil {
		return fmt.Errorf("ジオフェンスの削除失敗: %w", err)
	}

	u.catalog.Remove(geofenceID)
	u.index.Remove(geofenceID)
	log.Printf("✅ ジオフェンス削除: %s", geofenceID)

	return nil
}

// CheckPoint 点がユーザーのどのジオフェンスに含まれるかを分類する
func (u *geofenceUseCaseImpl) CheckPoint(ctx context.Context, userID string, req *model.CheckPointRequest) (*model.CheckPointResult, error) {
	if err := req.Location.Validate(); err != nil {
		return nil, fmt.Errorf("座標の検証失敗: %w", err)
	}

	targets := u.catalog.ListByUser(userID)
	if len(req.GeofenceIDs) > 0 {
		requested := make(map[string]struct{}, len(req.GeofenceIDs))
		for _, id := range req.GeofenceIDs {
			requested[id] = struct{}{}
		}
		var filtered []*model.Geofence
		for _, gf := range targets {
			if _, ok := requested[gf.ID]; ok {
				filtered = append(filtered, gf)
			}
		}
		targets = filtered
	}

	result := &model.CheckPointResult{
		Location:         req.Location,
		InsideGeofences:  []string{},
		OutsideGeofences: []string{},
	}
	for _, gf := range targets {
		if !gf.IsActive {
			continue
		}
		result.TotalChecked++
		inside, err := u.geometry.Contains(gf.Geometry, req.Location)
		if err != nil {
			log.Printf("⚠️  ジオフェンス%sの包含判定エラー（スキップ）: %v", gf.ID, err)
			continue
		}
		if inside {
			result.InsideGeofences = append(result.InsideGeofences, gf.ID)
		} else {
			result.OutsideGeofences = append(result.OutsideGeofences, gf.ID)
		}
	}
	sort.Strings(result.InsideGeofences)
	sort.Strings(result.OutsideGeofences)

	return result, nil
}

// GetStats ユーザーのジオフェンス統計を取得する
func (u *geofenceUseCaseImpl) GetStats(ctx context.Context, userID string) (*model.GeofenceStatsResponse, error) {
	total, active, err := u.geofencesRepo.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.GeofenceStatsResponse{
		TotalGeofences:    total,
		ActiveGeofences:   active,
		InactiveGeofences: total - active,
	}, nil
}

// RefreshIndex 永続化層からカタログとインデックスを一括更新する
func (u *geofenceUseCaseImpl) RefreshIndex(ctx context.Context) (int, error) {
	geofences, err := u.geofencesRepo.LoadActiveGeofences(ctx)
	if err != nil {
		return 0, fmt.Errorf("アクティブなジオフェンスのロード失敗: %w", err)
	}

	u.catalog.ReplaceAll(geofences)
	if err := u.index.Rebuild(geofences, u.geometry); err != nil {
		return 0, fmt.Errorf("インデックスの再構築失敗: %w", err)
	}

	return len(geofences), nil
}

// applyToIndex ジオフェンス1件の変更をカタログとインデックスへ反映する
func (u *geofenceUseCaseImpl) applyToIndex(geofence *model.Geofence) {
	u.catalog.Upsert(geofence)

	if !geofence.IsActive {
		u.index.Remove(geofence.ID)
		return
	}

	bound, err := u.geometry.BoundingBox(geofence.Geometry)
	if err != nil {
		// 検証済みの形状で起きることはないが、インデックス全体は守る
		log.Printf("⚠️  ジオフェンス%sのバウンディングボックス導出エラー: %v", geofence.ID, err)
		return
	}
	u.index.Upsert(geofence.ID, bound)
}
