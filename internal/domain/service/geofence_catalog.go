package service

import (
	"sync"

	"GeoInsight-App/internal/domain/model"
)

// GeofenceCatalog アクティブなジオフェンス定義のインメモリレジストリ
//
// CRUDコラボレータが自身のコミットと同期してUpsert/Removeを呼ぶため、
// カタログとSpatialIndexは永続化状態から最大1変更分しか遅れない。
// 評価ホットパスはここから定義を読むのでDBアクセスは発生しない
type GeofenceCatalog struct {
	mu        sync.RWMutex
	geofences map[string]*model.Geofence
}

// NewGeofenceCatalog 新しいGeofenceCatalogを作成
func NewGeofenceCatalog() *GeofenceCatalog {
	return &GeofenceCatalog{geofences: map[string]*model.Geofence{}}
}

// Upsert ジオフェンス定義を登録・更新する
func (c *GeofenceCatalog) Upsert(gf *model.Geofence) {
	c.mu.Lock()
	c.geofences[gf.ID] = gf
	c.mu.Unlock()
}

// Remove ジオフェンス定義を削除する
func (c *GeofenceCatalog) Remove(geofenceID string) {
	c.mu.Lock()
	delete(c.geofences, geofenceID)
	c.mu.Unlock()
}

// Get ジオフェンス定義を取得する
func (c *GeofenceCatalog) Get(geofenceID string) (*model.Geofence, bool) {
	c.mu.RLock()
	gf, ok := c.geofences[geofenceID]
	c.mu.RUnlock()
	return gf, ok
}

// ListByUser 指定ユーザーが所有するジオフェンスの一覧を取得する
func (c *GeofenceCatalog) ListByUser(userID string) []*model.Geofence {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var result []*model.Geofence
	for _, gf := range c.geofences {
		if gf.UserID == userID {
			result = append(result, gf)
		}
	}
	return result
}

// Len 登録中のジオフェンス数を取得する
func (c *GeofenceCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.geofences)
}

// ReplaceAll カタログの内容を一括で差し替える（起動時ロードで使用）
func (c *GeofenceCatalog) ReplaceAll(geofences []*model.Geofence) {
	next := make(map[string]*model.Geofence, len(geofences))
	for _, gf := range geofences {
		next[gf.ID] = gf
	}
	c.mu.Lock()
	c.geofences = next
	c.mu.Unlock()
}
