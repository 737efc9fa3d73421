package service

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"

	"GeoInsight-App/internal/domain/model"
)

// 境界上の点を「内側」として扱うための許容誤差
// 円は距離（メートル）、ポリゴンは度単位の辺からの距離で判定する
const (
	circleBoundaryEpsilonMeters  = 1e-6
	polygonBoundaryEpsilonDegree = 1e-9
)

// GeometryService ジオフェンス形状に対する包含判定とバウンディングボックス導出
//
// 円は球面上の大円距離（ハバーサイン）で判定する。ポリゴンは小さな領域では
// 平面射影の誤差が無視できることを前提に、緯度経度をそのまま平面座標として
// 扱うレイキャスティングで判定する（対蹠点・極付近をまたぐフェンスや
// 100kmを大きく超えるフェンスはサポート対象外とする近似）。
type GeometryService struct{}

// NewGeometryService 新しいGeometryServiceを作成
func NewGeometryService() *GeometryService {
	return &GeometryService{}
}

// Contains 点が形状の内側（境界を含む）にあるかを判定する
// 境界上の点は浮動小数の接近方向に関わらず常に「内側」として扱い、
// 境界をまたぐ連続更新でのフラッピングを防ぐ
func (s *GeometryService) Contains(geom *model.Geometry, point model.Coordinates) (bool, error) {
	p := orb.Point{point.Longitude, point.Latitude}

	switch geom.Type {
	case model.GeometryCircle:
		center := orb.Point{geom.Center.Longitude, geom.Center.Latitude}
		dist := geo.Distance(center, p)
		return dist <= geom.RadiusMeters+circleBoundaryEpsilonMeters, nil

	case model.GeometryPolygon:
		ring, err := toOrbRing(geom)
		if err != nil {
			return false, err
		}
		polygon := orb.Polygon{ring}
		if planar.PolygonContains(polygon, p) {
			return true, nil
		}
		// レイキャスティングは境界上の点の扱いが不定なので、
		// 辺からの距離で境界包含を明示的に保証する
		if planar.DistanceFrom(ring, p) <= polygonBoundaryEpsilonDegree {
			return true, nil
		}
		return false, nil

	default:
		return false, fmt.Errorf("サポートされていない形状タイプです: %s", geom.Type)
	}
}

// BoundingBox 形状を包含する最小の緯度経度矩形を導出する
// SpatialIndexの候補絞り込みに使用する（円は中心緯度で半径を両軸に射影）
func (s *GeometryService) BoundingBox(geom *model.Geometry) (orb.Bound, error) {
	switch geom.Type {
	case model.GeometryCircle:
		center := orb.Point{geom.Center.Longitude, geom.Center.Latitude}
		return geo.NewBoundAroundPoint(center, geom.RadiusMeters), nil

	case model.GeometryPolygon:
		ring, err := toOrbRing(geom)
		if err != nil {
			return orb.Bound{}, err
		}
		return ring.Bound(), nil

	default:
		return orb.Bound{}, fmt.Errorf("サポートされていない形状タイプです: %s", geom.Type)
	}
}

// toOrbRing model.GeometryのポリゴンをorbのRingに変換する
func toOrbRing(geom *model.Geometry) (orb.Ring, error) {
	coords, err := geom.Ring()
	if err != nil {
		return nil, fmt.Errorf("ポリゴンリングの変換失敗: %w", err)
	}
	ring := make(orb.Ring, len(coords))
	for i, c := range coords {
		ring[i] = orb.Point{c.Longitude, c.Latitude}
	}
	return ring, nil
}
