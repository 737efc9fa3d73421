package service

import (
	"math"
	"sync"

	"github.com/paulmach/orb"

	"GeoInsight-App/internal/domain/model"
)

const (
	// defaultCellSizeDeg グリッドセル1辺のサイズ（度）
	// 0.25度は緯度方向で約28km。都市規模のジオフェンス分布で
	// 1フェンスが数セルに収まる粒度
	defaultCellSizeDeg = 0.25

	// indexShardCount セルをハッシュで振り分けるシャード数
	indexShardCount = 64
)

// cellKey グリッドセルの識別子（経度方向x, 緯度方向y）
type cellKey struct {
	x int32
	y int32
}

// indexShard セル集合を保持するシャード
// 書き込みは影響セルのシャードのみを短時間ロックする（グローバルロックなし）
type indexShard struct {
	mu    sync.RWMutex
	cells map[cellKey]map[string]struct{}
}

// indexEntry 登録済みジオフェンスの現在のバウンディングボックスと所属セル
type indexEntry struct {
	bound orb.Bound
	cells []cellKey
}

// SpatialIndex アクティブなジオフェンスのバウンディングボックスに対する
// グリッドインデックス
//
// CandidatesForは「バウンディングボックスが点を含む全ジオフェンス」を返す
// （偽陰性なし・偽陽性あり。偽陽性はGeometryServiceの厳密判定で除去される）。
// Upsertはセルへの追加→バウンディングボックスの差し替え→旧セルからの削除の
// 順で行うため、並行する読み取りは旧いボックスか新しいボックスのどちらかを
// 観測し、中途半端な状態は観測しない
type SpatialIndex struct {
	cellSizeDeg float64
	shards      [indexShardCount]*indexShard

	// writeMu Upsert/Removeを直列化する
	// 同一IDへの並行書き込みが交錯すると、勝ったエントリのボックスと
	// セル所属がずれて一時的な偽陰性になるため。読み取りはこのロックを取らない
	writeMu sync.Mutex

	entriesMu sync.RWMutex
	entries   map[string]*indexEntry
}

// NewSpatialIndex デフォルトのセルサイズで新しいインデックスを作成
func NewSpatialIndex() *SpatialIndex {
	return NewSpatialIndexWithCellSize(defaultCellSizeDeg)
}

// NewSpatialIndexWithCellSize セルサイズを指定してインデックスを作成
func NewSpatialIndexWithCellSize(cellSizeDeg float64) *SpatialIndex {
	idx := &SpatialIndex{
		cellSizeDeg: cellSizeDeg,
		entries:     map[string]*indexEntry{},
	}
	for i := range idx.shards {
		idx.shards[i] = &indexShard{cells: map[cellKey]map[string]struct{}{}}
	}
	return idx
}

// Upsert ジオフェンスのバウンディングボックスを登録・更新する
func (idx *SpatialIndex) Upsert(geofenceID string, bound orb.Bound) {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	newCells := idx.cellsForBound(bound)

	// 1. 新しいセルへ先に追加する（読み取りの取りこぼし防止）
	for _, key := range newCells {
		shard := idx.shardFor(key)
		shard.mu.Lock()
		ids, ok := shard.cells[key]
		if !ok {
			ids = map[string]struct{}{}
			shard.cells[key] = ids
		}
		ids[geofenceID] = struct{}{}
		shard.mu.Unlock()
	}

	// 2. バウンディングボックスを一括で差し替える
	idx.entriesMu.Lock()
	old := idx.entries[geofenceID]
	idx.entries[geofenceID] = &indexEntry{bound: bound, cells: newCells}
	idx.entriesMu.Unlock()

	// 3. 不要になった旧セルから削除する
	if old != nil {
		keep := make(map[cellKey]struct{}, len(newCells))
		for _, key := range newCells {
			keep[key] = struct{}{}
		}
		for _, key := range old.cells {
			if _, ok := keep[key]; ok {
				continue
			}
			idx.removeFromCell(key, geofenceID)
		}
	}
}

// Remove ジオフェンスをインデックスから削除する
func (idx *SpatialIndex) Remove(geofenceID string) {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	idx.entriesMu.Lock()
	entry := idx.entries[geofenceID]
	delete(idx.entries, geofenceID)
	idx.entriesMu.Unlock()

	if entry == nil {
		return
	}
	for _, key := range entry.cells {
		idx.removeFromCell(key, geofenceID)
	}
}

// CandidatesFor バウンディングボックスが点を含む全ジオフェンスIDを返す
func (idx *SpatialIndex) CandidatesFor(point model.Coordinates) []string {
	key := idx.cellOf(point.Longitude, point.Latitude)
	shard := idx.shardFor(key)

	shard.mu.RLock()
	ids := make([]string, 0, len(shard.cells[key]))
	for id := range shard.cells[key] {
		ids = append(ids, id)
	}
	shard.mu.RUnlock()

	if len(ids) == 0 {
		return nil
	}

	p := orb.Point{point.Longitude, point.Latitude}
	candidates := make([]string, 0, len(ids))
	idx.entriesMu.RLock()
	for _, id := range ids {
		entry, ok := idx.entries[id]
		if !ok {
			// セルには残っているが削除済みのエントリ（遅延削除中）
			continue
		}
		if entry.bound.Contains(p) {
			candidates = append(candidates, id)
		}
	}
	idx.entriesMu.RUnlock()

	return candidates
}

// Len 登録中のジオフェンス数を取得する
func (idx *SpatialIndex) Len() int {
	idx.entriesMu.RLock()
	defer idx.entriesMu.RUnlock()
	return len(idx.entries)
}

// Rebuild 永続化層からロードしたアクティブなジオフェンス一式で
// インデックスを更新する（起動時と一括リフレッシュで使用）
func (idx *SpatialIndex) Rebuild(geofences []*model.Geofence, geometry *GeometryService) error {
	loaded := make(map[string]struct{}, len(geofences))
	for _, gf := range geofences {
		bound, err := geometry.BoundingBox(gf.Geometry)
		if err != nil {
			// 1つの不正なジオフェンスが他の登録を妨げてはならない
			continue
		}
		idx.Upsert(gf.ID, bound)
		loaded[gf.ID] = struct{}{}
	}

	// ロード結果に含まれないエントリを除去する
	idx.entriesMu.RLock()
	var stale []string
	for id := range idx.entries {
		if _, ok := loaded[id]; !ok {
			stale = append(stale, id)
		}
	}
	idx.entriesMu.RUnlock()

	for _, id := range stale {
		idx.Remove(id)
	}
	return nil
}

// cellOf 座標が属するセルを計算する
func (idx *SpatialIndex) cellOf(lon, lat float64) cellKey {
	return cellKey{
		x: int32(math.Floor(lon / idx.cellSizeDeg)),
		y: int32(math.Floor(lat / idx.cellSizeDeg)),
	}
}

// cellsForBound バウンディングボックスが重なる全セルを列挙する
func (idx *SpatialIndex) cellsForBound(bound orb.Bound) []cellKey {
	min := idx.cellOf(bound.Min.Lon(), bound.Min.Lat())
	max := idx.cellOf(bound.Max.Lon(), bound.Max.Lat())

	cells := make([]cellKey, 0, int(max.x-min.x+1)*int(max.y-min.y+1))
	for x := min.x; x <= max.x; x++ {
		for y := min.y; y <= max.y; y++ {
			cells = append(cells, cellKey{x: x, y: y})
		}
	}
	return cells
}

// shardFor セルが属するシャードを取得する（空間ハッシュ）
func (idx *SpatialIndex) shardFor(key cellKey) *indexShard {
	h := uint32(key.x)*73856093 ^ uint32(key.y)*19349663
	return idx.shards[h%indexShardCount]
}

// removeFromCell セルからIDを取り除き、空になったセルを破棄する
func (idx *SpatialIndex) removeFromCell(key cellKey, geofenceID string) {
	shard := idx.shardFor(key)
	shard.mu.Lock()
	if ids, ok := shard.cells[key]; ok {
		delete(ids, geofenceID)
		if len(ids) == 0 {
			delete(shard.cells, key)
		}
	}
	shard.mu.Unlock()
}
