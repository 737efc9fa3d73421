package model

import (
	"fmt"
	"time"
)

// GeometryType ジオフェンス形状の種別
type GeometryType string

const (
	GeometryCircle  GeometryType = "Circle"
	GeometryPolygon GeometryType = "Polygon"
)

// TriggerType 通知を発火させる遷移の種別
type TriggerType string

const (
	TriggerEnter TriggerType = "enter"
	TriggerExit  TriggerType = "exit"
	TriggerBoth  TriggerType = "both"
)

// FiresOn 指定された遷移種別で発火するかどうか
func (t TriggerType) FiresOn(kind TransitionKind) bool {
	switch t {
	case TriggerBoth:
		return true
	case TriggerEnter:
		return kind == TransitionEnter
	case TriggerExit:
		return kind == TransitionExit
	}
	return false
}

// Geometry ジオフェンスの形状（CircleまたはPolygonのタグ付きバリアント）
// PolygonのCoordinatesはGeoJSON形式（[経度, 緯度]の順）で外周リングのみを扱う
type Geometry struct {
	Type         GeometryType  `json:"type"`
	Center       *Coordinates  `json:"center,omitempty"`
	RadiusMeters float64       `json:"radius,omitempty"`
	Coordinates  [][][]float64 `json:"coordinates,omitempty"`
}

// Validate 形状のバリデーション（作成時に一度だけ実行する）
// ポリゴンの単純性（自己交差なし）もここで検証し、クエリごとの再検証は行わない
func (g *Geometry) Validate() error {
	switch g.Type {
	case GeometryCircle:
		if g.Center == nil {
			return fmt.Errorf("円形ジオフェンスには中心座標が必須です")
		}
		if err := g.Center.Validate(); err != nil {
			return fmt.Errorf("中心座標の検証失敗: %w", err)
		}
		if g.RadiusMeters <= 0 {
			return fmt.Errorf("半径は0より大きい必要があります: %f", g.RadiusMeters)
		}
		return nil
	case GeometryPolygon:
		ring, err := g.Ring()
		if err != nil {
			return err
		}
		if len(ring) < 4 {
			return fmt.Errorf("ポリゴンには最低4点の座標が必要です")
		}
		first, last := ring[0], ring[len(ring)-1]
		if first != last {
			return fmt.Errorf("ポリゴンは閉じている必要があります（最初と最後の点が一致すること）")
		}
		for i, c := range ring {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("ポリゴン座標%dの検証失敗: %w", i, err)
			}
		}
		if selfIntersects(ring) {
			return fmt.Errorf("ポリゴンが自己交差しています")
		}
		return nil
	default:
		return fmt.Errorf("サポートされていない形状タイプです: %s", g.Type)
	}
}

// Ring ポリゴンの外周リングをCoordinatesのスライスとして取得する
func (g *Geometry) Ring() ([]Coordinates, error) {
	if len(g.Coordinates) == 0 || len(g.Coordinates[0]) == 0 {
		return nil, fmt.Errorf("ポリゴンの座標が空です")
	}
	exterior := g.Coordinates[0]
	ring := make([]Coordinates, len(exterior))
	for i, pair := range exterior {
		if len(pair) < 2 {
			return nil, fmt.Errorf("ポリゴン座標%dの要素数が不足しています", i)
		}
		// GeoJSONは[経度, 緯度]の順
		ring[i] = Coordinates{Latitude: pair[1], Longitude: pair[0]}
	}
	return ring, nil
}

// selfIntersects 隣接しない辺同士が交差しているかを総当たりでチェックする
// 作成時のみの検証なのでO(n^2)で十分
func selfIntersects(ring []Coordinates) bool {
	n := len(ring) - 1 // 最後の点は最初の点の複製
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			// 隣接する辺（および先頭と末尾の辺）はスキップ
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if segmentsCross(ring[i], ring[i+1], ring[j], ring[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsCross(a, b, c, d Coordinates) bool {
	d1 := cross(c, d, a)
	d2 := cross(c, d, b)
	d3 := cross(a, b, c)
	d4 := cross(a, b, d)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func cross(o, a, p Coordinates) float64 {
	return (a.Longitude-o.Longitude)*(p.Latitude-o.Latitude) -
		(a.Latitude-o.Latitude)*(p.Longitude-o.Longitude)
}

// Geofence ジオフェンス（所有者とトリガーポリシーを持つ地理的領域）
type Geofence struct {
	ID          string                 `json:"id" db:"id"`
	UserID      string                 `json:"user_id" db:"user_id"`
	Name        string                 `json:"name" db:"name"`
	Description string                 `json:"description,omitempty" db:"description"`
	Geometry    *Geometry              `json:"geometry" db:"geometry"`
	TriggerType TriggerType            `json:"trigger_type" db:"trigger_type"`
	IsActive    bool                   `json:"is_active" db:"is_active"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at" db:"updated_at"`
}

// Validate ジオフェンス全体のバリデーション
func (g *Geofence) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("ジオフェンス名は必須です")
	}
	if g.UserID == "" {
		return fmt.Errorf("所有者IDは必須です")
	}
	if g.Geometry == nil {
		return fmt.Errorf("形状は必須です")
	}
	if err := g.Geometry.Validate(); err != nil {
		return fmt.Errorf("形状の検証失敗: %w", err)
	}
	switch g.TriggerType {
	case TriggerEnter, TriggerExit, TriggerBoth:
	default:
		return fmt.Errorf("無効なトリガータイプです: %s", g.TriggerType)
	}
	return nil
}
