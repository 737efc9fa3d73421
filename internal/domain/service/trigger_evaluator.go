package service

import (
	"context"
	"fmt"
	"log"
	"sort"

	"GeoInsight-App/internal/domain/model"
)

// TriggerEvaluator 位置情報更新1件ごとにジオフェンス遷移を評価するエンジン
//
// SpatialIndexで候補を絞り込み、GeometryServiceで厳密判定した新しい包含集合と
// DeviceStateStoreの前回集合との差分からEnter/Exitイベントを生成する。
// デバイス単位の直列化（DeviceStateStore）の内側で読み・計算・書き戻しを
// 行うため、同一デバイスの並行更新が同じ前回状態から二重にEnterを
// 計算することはない
type TriggerEvaluator struct {
	index    *SpatialIndex
	geometry *GeometryService
	catalog  *GeofenceCatalog
	states   *DeviceStateStore
}

// NewTriggerEvaluator 新しいTriggerEvaluatorを作成
func NewTriggerEvaluator(
	index *SpatialIndex,
	geometry *GeometryService,
	catalog *GeofenceCatalog,
	states *DeviceStateStore,
) *TriggerEvaluator {
	return &TriggerEvaluator{
		index:    index,
		geometry: geometry,
		catalog:  catalog,
		states:   states,
	}
}

// Evaluate 位置情報更新を評価し、発生した遷移イベントを順序付きで返す
//
// 返却順序は決定的：Enterが先、次にExit、それぞれジオフェンスIDの昇順。
// 格納済みタイムスタンプより古い（または同一の）更新は比較までは行うが
// 状態書き込みを破棄し、イベントは一切生成しない
// （遅延・再送データから幻の遷移を作らないため）
func (e *TriggerEvaluator) Evaluate(ctx context.Context, update *model.DeviceLocationUpdate) ([]*model.TransitionEvent, error) {
	if err := update.Validate(); err != nil {
		return nil, fmt.Errorf("位置情報更新の検証失敗: %w", err)
	}

	// 1. デバイスの評価スロットを獲得（同一デバイスの評価は最大1つ）
	oldState, handle, err := e.states.GetAndLock(ctx, update.DeviceID)
	if err != nil {
		return nil, err
	}

	// 2. 候補を絞り込み、厳密判定で新しい包含集合を計算
	newSet := e.computeContainment(update)

	// 3-4. 差分から遷移集合を計算
	var entered, exited []string
	for id := range newSet {
		if !oldState.Contains(id) {
			entered = append(entered, id)
		}
	}
	for id := range oldState.Inside {
		if _, ok := newSet[id]; !ok {
			exited = append(exited, id)
		}
	}
	sort.Strings(entered)
	sort.Strings(exited)

	// 6. 後勝ち（last-writer-by-timestamp）：古い更新の書き込みは破棄する
	if !update.Timestamp.After(oldState.Timestamp) {
		e.states.Release(handle)
		log.Printf("🕐 古い位置情報更新を破棄: device=%s ts=%s (格納済み=%s, enter候補=%d, exit候補=%d)",
			update.DeviceID, update.Timestamp.Format("15:04:05.000"),
			oldState.Timestamp.Format("15:04:05.000"), len(entered), len(exited))
		return nil, nil
	}

	// 5. トリガータイプでフィルタしてイベントを生成（Enter先行、ID昇順）
	var events []*model.TransitionEvent
	for _, id := range entered {
		if gf, ok := e.catalog.Get(id); ok && gf.IsActive && gf.TriggerType.FiresOn(model.TransitionEnter) {
			events = append(events, model.NewTransitionEvent(update, id, model.TransitionEnter))
		}
	}
	for _, id := range exited {
		// 評価中に削除されたジオフェンスは不在として扱い、イベントを参照させない
		if gf, ok := e.catalog.Get(id); ok && gf.IsActive && gf.TriggerType.FiresOn(model.TransitionExit) {
			events = append(events, model.NewTransitionEvent(update, id, model.TransitionExit))
		}
	}

	// 7. 新しい状態をコミットしてスロットを解放
	e.states.Commit(handle, model.ContainmentState{Inside: newSet, Timestamp: update.Timestamp})

	return events, nil
}

// computeContainment 候補ジオフェンスに対する厳密な包含集合を計算する
// 1つのジオフェンスでの形状エラーは警告ログの上スキップし、
// 他のジオフェンスの評価を妨げない
func (e *TriggerEvaluator) computeContainment(update *model.DeviceLocationUpdate) map[string]struct{} {
	candidates := e.index.CandidatesFor(update.Location)
	newSet := make(map[string]struct{}, len(candidates))

	for _, id := range candidates {
		gf, ok := e.catalog.Get(id)
		if !ok || !gf.IsActive {
			continue
		}
		// ジオフェンスは所有ユーザーのデバイスに対してのみ評価する
		if update.UserID != "" && gf.UserID != update.UserID {
			continue
		}
		inside, err := e.geometry.Contains(gf.Geometry, update.Location)
		if err != nil {
			log.Printf("⚠️  ジオフェンス%sの包含判定エラー（スキップ）: %v", id, err)
			continue
		}
		if inside {
			newSet[id] = struct{}{}
		}
	}
	return newSet
}
