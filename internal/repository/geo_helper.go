package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb/encoding/wkt"

	"GeoInsight-App/internal/domain/model"
	"GeoInsight-App/internal/domain/service"
)

// geofenceDB ジオフェンスのDB行表現
// 形状はJSONBで保存し、バウンディングボックスはDB側の空間インデックスが
// 利用できるようPostGIS互換のWKT文字列として併記する
type geofenceDB struct {
	ID          string                 `json:"id"`
	UserID      string                 `json:"user_id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Geometry    *model.Geometry        `json:"geometry"`
	TriggerType string                 `json:"trigger_type"`
	IsActive    bool                   `json:"is_active"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Bounds      string                 `json:"bounds,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// GeofenceToDB model.GeofenceをDB保存用の構造体に変換する
func GeofenceToDB(gf *model.Geofence) (*geofenceDB, error) {
	bounds, err := BoundsToWKT(gf.Geometry)
	if err != nil {
		return nil, err
	}
	return &geofenceDB{
		ID:          gf.ID,
		UserID:      gf.UserID,
		Name:        gf.Name,
		Description: gf.Description,
		Geometry:    gf.Geometry,
		TriggerType: string(gf.TriggerType),
		IsActive:    gf.IsActive,
		Metadata:    gf.Metadata,
		Bounds:      bounds,
		CreatedAt:   gf.CreatedAt,
		UpdatedAt:   gf.UpdatedAt,
	}, nil
}

// ToGeofence DB行をmodel.Geofenceに変換する
func (db *geofenceDB) ToGeofence() *model.Geofence {
	return &model.Geofence{
		ID:          db.ID,
		UserID:      db.UserID,
		Name:        db.Name,
		Description: db.Description,
		Geometry:    db.Geometry,
		TriggerType: model.TriggerType(db.TriggerType),
		IsActive:    db.IsActive,
		Metadata:    db.Metadata,
		CreatedAt:   db.CreatedAt,
		UpdatedAt:   db.UpdatedAt,
	}
}

// BoundsToWKT 形状のバウンディングボックスをWKTポリゴン文字列に変換する
func BoundsToWKT(geom *model.Geometry) (string, error) {
	geometrySvc := service.NewGeometryService()
	bound, err := geometrySvc.BoundingBox(geom)
	if err != nil {
		return "", fmt.Errorf("バウンディングボックスの導出失敗: %w", err)
	}

	// 少し余裕を持たせる（約100m程度）
	padding := 0.001
	bound = bound.Pad(padding)

	return wkt.MarshalString(bound.ToPolygon()), nil
}

// parseGeofenceRows PostgRESTのレスポンスJSONをジオフェンス一覧に変換する
func parseGeofenceRows(data []byte) ([]*model.Geofence, error) {
	var rows []geofenceDB
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("ジオフェンスデータのJSONアンマーシャル失敗: %w", err)
	}
	geofences := make([]*model.Geofence, len(rows))
	for i := range rows {
		geofences[i] = rows[i].ToGeofence()
	}
	return geofences, nil
}
