package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"GeoInsight-App/internal/domain/model"
	"GeoInsight-App/internal/domain/repository"
	"GeoInsight-App/internal/infrastructure/database"
)

// SupabaseGeofencesRepository Supabase (PostgREST)を使用したジオフェンスリポジトリ
type SupabaseGeofencesRepository struct {
	client *database.SupabaseClient
}

// NewSupabaseGeofencesRepository 新しいSupabaseGeofencesRepositoryを作成
func NewSupabaseGeofencesRepository(client *database.SupabaseClient) repository.GeofencesRepository {
	return &SupabaseGeofencesRepository{
		client: client,
	}
}

func (r *SupabaseGeofencesRepository) Create(ctx context.Context, geofence *model.Geofence) error {
	row, err := GeofenceToDB(geofence)
	if err != nil {
		return fmt.Errorf("ジオフェンスのDB形式変換失敗: %w", err)
	}

	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("ジオフェンスのJSONマーシャル失敗: %w", err)
	}

	_, _, err = r.client.GetClient().From("geofences").Insert(string(data), false, "", "", "").Execute()
	if err != nil {
		return fmt.Errorf("ジオフェンスの作成失敗: %w", err)
	}

	return nil
}

func (r *SupabaseGeofencesRepository) GetByID(ctx context.Context, userID, geofenceID string) (*model.Geofence, error) {
	data, count, err := r.client.GetClient().From("geofences").
		Select("*", "exact", false).
		Eq("id", geofenceID).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("ジオフェンスの取得失敗: %w", err)
	}
	_ = count

	geofences, err := parseGeofenceRows(data)
	if err != nil {
		return nil, err
	}
	if len(geofences) == 0 {
		return nil, fmt.Errorf("ジオフェンスID %s が見つかりません", geofenceID)
	}

	return geofences[0], nil
}

func (r *SupabaseGeofencesRepository) List(ctx context.Context, userID string, isActive *bool, limit, offset int) ([]*model.Geofence, error) {
	if limit <= 0 {
		limit = 100
	}

	query := r.client.GetClient().From("geofences").
		Select("*", "exact", false).
		Eq("user_id", userID)

	if isActive != nil {
		query = query.Eq("is_active", fmt.Sprintf("%t", *isActive))
	}

	data, count, err := query.Range(offset, offset+limit-1, "").Execute()
	if err != nil {
		return nil, fmt.Errorf("ジオフェンス一覧の取得失敗: %w", err)
	}
	_ = count

	return parseGeofenceRows(data)
}

func (r *SupabaseGeofencesRepository) Update(ctx context.Context, geofence *model.Geofence) error {
	geofence.UpdatedAt = time.Now().UTC()

	row, err := GeofenceToDB(geofence)
	if err != nil {
		return fmt.Errorf("ジオフェンスのDB形式変換失敗: %w", err)
	}

	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("ジオフェンスのJSONマーシャル失敗: %w", err)
	}

	_, _, err = r.client.GetClient().From("geofences").
		Update(string(data), "", "").
		Eq("id", geofence.ID).
		Eq("user_id", geofence.UserID).
		Execute()
	if err != nil {
		return fmt.Errorf("ジオフェンスの更新失敗: %w", err)
	}

	return nil
}

func (r *SupabaseGeofencesRepository) Delete(ctx context.Context, userID, geofenceID string) error {
	_, _, err := r.client.GetClient().From("geofences").
		Delete("", "").
		Eq("id", geofenceID).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return fmt.Errorf("ジオフェンスの削除失敗: %w", err)
	}

	return nil
}

func (r *SupabaseGeofencesRepository) LoadActiveGeofences(ctx context.Context) ([]*model.Geofence, error) {
	data, count, err := r.client.GetClient().From("geofences").
		Select("*", "exact", false).
		Eq("is_active", "true").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("アクティブなジオフェンスのロード失敗: %w", err)
	}
	_ = count

	return parseGeofenceRows(data)
}

func (r *SupabaseGeofencesRepository) CountByUser(ctx context.Context, userID string) (int, int, error) {
	_, total, err := r.client.GetClient().From("geofences").
		Select("id", "exact", false).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return 0, 0, fmt.Errorf("ジオフェンス総数の取得失敗: %w", err)
	}

	_, active, err := r.client.GetClient().From("geofences").
		Select("id", "exact", false).
		Eq("user_id", userID).
		Eq("is_active", "true").
		Execute()
	if err != nil {
		return 0, 0, fmt.Errorf("アクティブなジオフェンス数の取得失敗: %w", err)
	}

	return int(total), int(active), nil
}
