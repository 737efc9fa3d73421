package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"GeoInsight-App/internal/domain/model"
	"GeoInsight-App/internal/infrastructure/database"
)

// PostgresGeofencesRepository PostgreSQL直接接続によるジオフェンスの参照系リポジトリ
// PostgRESTを経由しない起動時の一括ロード用（SpatialIndex構築）
type PostgresGeofencesRepository struct {
	client *database.PostgreSQLClient
}

// NewPostgresGeofencesRepository 新しいPostgresGeofencesRepositoryを作成
func NewPostgresGeofencesRepository(client *database.PostgreSQLClient) *PostgresGeofencesRepository {
	return &PostgresGeofencesRepository{
		client: client,
	}
}

// geofenceRow SQLクエリ結果を受け取るための構造体
type geofenceRow struct {
	ID          string
	UserID      string
	Name        string
	Description sql.NullString
	Geometry    string
	TriggerType string
	IsActive    bool
	Metadata    sql.NullString
}

// toGeofence geofenceRowをmodel.Geofenceに変換
func (row *geofenceRow) toGeofence() (*model.Geofence, error) {
	var geometry model.Geometry
	if err := json.Unmarshal([]byte(row.Geometry), &geometry); err != nil {
		return nil, fmt.Errorf("geometry JSONBパースエラー: %w", err)
	}

	gf := &model.Geofence{
		ID:          row.ID,
		UserID:      row.UserID,
		Name:        row.Name,
		Geometry:    &geometry,
		TriggerType: model.TriggerType(row.TriggerType),
		IsActive:    row.IsActive,
	}
	if row.Description.Valid {
		gf.Description = row.Description.String
	}
	if row.Metadata.Valid {
		var metadata map[string]interface{}
		if err := json.Unmarshal([]byte(row.Metadata.String), &metadata); err == nil {
			gf.Metadata = metadata
		}
	}
	return gf, nil
}

// LoadActiveGeofences 全ユーザーのアクティブなジオフェンスを一括取得する
func (r *PostgresGeofencesRepository) LoadActiveGeofences(ctx context.Context) ([]*model.Geofence, error) {
	query := `SELECT id, user_id, name, description, geometry, trigger_type, is_active, metadata
		FROM geofences WHERE is_active = true`

	rows, err := r.client.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("アクティブなジオフェンスのロード失敗: %w", err)
	}
	defer rows.Close()

	var geofences []*model.Geofence
	for rows.Next() {
		var row geofenceRow
		if err := rows.Scan(&row.ID, &row.UserID, &row.Name, &row.Description,
			&row.Geometry, &row.TriggerType, &row.IsActive, &row.Metadata); err != nil {
			return nil, fmt.Errorf("ジオフェンス行のスキャン失敗: %w", err)
		}

		gf, err := row.toGeofence()
		if err != nil {
			// 1行の不正データがロード全体を妨げないようスキップする
			continue
		}
		geofences = append(geofences, gf)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ジオフェンス行の走査失敗: %w", err)
	}

	return geofences, nil
}

// CountActive アクティブなジオフェンスの総数を取得する（起動時ログ用）
func (r *PostgresGeofencesRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.client.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM geofences WHERE is_active = true`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ジオフェンス数の取得失敗: %w", err)
	}
	return count, nil
}
