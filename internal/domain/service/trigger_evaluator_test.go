package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GeoInsight-App/internal/domain/model"
)

// newEvaluatorFixture 評価エンジン一式をアクティブなジオフェンス付きで組み立てる
func newEvaluatorFixture(t *testing.T, geofences ...*model.Geofence) *TriggerEvaluator {
	t.Helper()

	geometry := NewGeometryService()
	index := NewSpatialIndex()
	catalog := NewGeofenceCatalog()
	states := NewDeviceStateStore()

	for _, gf := range geofences {
		catalog.Upsert(gf)
		bound, err := geometry.BoundingBox(gf.Geometry)
		require.NoError(t, err)
		index.Upsert(gf.ID, bound)
	}

	return NewTriggerEvaluator(index, geometry, catalog, states)
}

func testGeofence(id string, triggerType model.TriggerType, geom *model.Geometry) *model.Geofence {
	return &model.Geofence{
		ID:          id,
		UserID:      "user-1",
		Name:        "テスト用ジオフェンス " + id,
		Geometry:    geom,
		TriggerType: triggerType,
		IsActive:    true,
	}
}

func locationUpdate(deviceID string, lat, lon float64, ts time.Time) *model.DeviceLocationUpdate {
	return &model.DeviceLocationUpdate{
		DeviceID:  deviceID,
		UserID:    "user-1",
		Location:  model.Coordinates{Latitude: lat, Longitude: lon},
		Timestamp: ts,
	}
}

func TestTriggerEvaluatorEnterExit(t *testing.T) {
	berlin := testGeofence("berlin-office", model.TriggerBoth, circleGeom(52.52, 13.40, 500))
	evaluator := newEvaluatorFixture(t, berlin)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("初回観測で内側ならEnterが発火する", func(t *testing.T) {
		events, err := evaluator.Evaluate(ctx, locationUpdate("dev-1", 52.52, 13.40, base))
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, model.TransitionEnter, events[0].Kind)
		assert.Equal(t, "berlin-office", events[0].GeofenceID)
		assert.Equal(t, "dev-1", events[0].DeviceID)
		assert.NotEmpty(t, events[0].IdempotencyKey)
	})

	t.Run("内側に留まる更新はイベントを生成しない", func(t *testing.T) {
		events, err := evaluator.Evaluate(ctx, locationUpdate("dev-1", 52.521, 13.401, base.Add(time.Minute)))
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("外側へ移動するとExitが発火する", func(t *testing.T) {
		events, err := evaluator.Evaluate(ctx, locationUpdate("dev-1", 52.60, 13.40, base.Add(2*time.Minute)))
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, model.TransitionExit, events[0].Kind)
	})

	t.Run("初回観測で外側ならイベントは発生しない", func(t *testing.T) {
		events, err := evaluator.Evaluate(ctx, locationUpdate("dev-new", 0, 0, base))
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestTriggerEvaluatorPolygon(t *testing.T) {
	zone := testGeofence("downtown", model.TriggerEnter, polygonGeom([][]float64{
		{13.3, 52.5}, {13.5, 52.5}, {13.5, 52.6}, {13.3, 52.6}, {13.3, 52.5},
	}))
	evaluator := newEvaluatorFixture(t, zone)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	events, err := evaluator.Evaluate(ctx, locationUpdate("dev-1", 52.55, 13.4, base))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.TransitionEnter, events[0].Kind)

	// TriggerEnterのジオフェンスではExitは発火しない（状態遷移自体は起こる）
	events, err = evaluator.Evaluate(ctx, locationUpdate("dev-1", 52.7, 13.4, base.Add(time.Minute)))
	require.NoError(t, err)
	assert.Empty(t, events)

	// 再入場でEnterが再び発火する（Exitが抑制されても状態は追跡されている）
	events, err = evaluator.Evaluate(ctx, locationUpdate("dev-1", 52.55, 13.4, base.Add(2*time.Minute)))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.TransitionEnter, events[0].Kind)
}

func TestTriggerEvaluatorStaleUpdate(t *testing.T) {
	berlin := testGeofence("berlin-office", model.TriggerBoth, circleGeom(52.52, 13.40, 500))
	evaluator := newEvaluatorFixture(t, berlin)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// 内側の状態を確立
	events, err := evaluator.Evaluate(ctx, locationUpdate("dev-1", 52.52, 13.40, base))
	require.NoError(t, err)
	require.Len(t, events, 1)

	t.Run("過去のタイムスタンプの更新はイベントを生成しない", func(t *testing.T) {
		// 外側の座標でも、タイムスタンプが古ければ幻のExitを作らない
		events, err := evaluator.Evaluate(ctx, locationUpdate("dev-1", 52.60, 13.40, base.Add(-time.Minute)))
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("同一タイムスタンプの再送もイベントを生成しない", func(t *testing.T) {
		events, err := evaluator.Evaluate(ctx, locationUpdate("dev-1", 52.52, 13.40, base))
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("古い更新は状態を変更していない", func(t *testing.T) {
		// 新しいタイムスタンプで外側へ移動すればExitが発火する
		// （古い更新で状態が壊れていればExitは出ない）
		events, err := evaluator.Evaluate(ctx, locationUpdate("dev-1", 52.60, 13.40, base.Add(time.Minute)))
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, model.TransitionExit, events[0].Kind)
	})
}

func TestTriggerEvaluatorEventOrdering(t *testing.T) {
	// 同じ場所に重なる2つのジオフェンスと、離れた場所の2つのジオフェンス
	gfB := testGeofence("b-zone", model.TriggerBoth, circleGeom(52.52, 13.40, 500))
	gfA := testGeofence("a-zone", model.TriggerBoth, circleGeom(52.52, 13.40, 600))
	gfD := testGeofence("d-zone", model.TriggerBoth, circleGeom(35.01, 135.77, 500))
	gfC := testGeofence("c-zone", model.TriggerBoth, circleGeom(35.01, 135.77, 600))
	evaluator := newEvaluatorFixture(t, gfB, gfA, gfD, gfC)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// ベルリン側2つに入る
	events, err := evaluator.Evaluate(ctx, locationUpdate("dev-1", 52.52, 13.40, base))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a-zone", events[0].GeofenceID, "EnterはジオフェンスID昇順")
	assert.Equal(t, "b-zone", events[1].GeofenceID)

	// 京都側へテレポート：Enter2件が先、Exit2件が後、それぞれID昇順
	events, err = evaluator.Evaluate(ctx, locationUpdate("dev-1", 35.01, 135.77, base.Add(time.Minute)))
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, model.TransitionEnter, events[0].Kind)
	assert.Equal(t, "c-zone", events[0].GeofenceID)
	assert.Equal(t, model.TransitionEnter, events[1].Kind)
	assert.Equal(t, "d-zone", events[1].GeofenceID)
	assert.Equal(t, model.TransitionExit, events[2].Kind)
	assert.Equal(t, "a-zone", events[2].GeofenceID)
	assert.Equal(t, model.TransitionExit, events[3].Kind)
	assert.Equal(t, "b-zone", events[3].GeofenceID)
}

func TestTriggerEvaluatorOwnerScoping(t *testing.T) {
	mine := testGeofence("mine", model.TriggerBoth, circleGeom(52.52, 13.40, 500))
	other := testGeofence("other", model.TriggerBoth, circleGeom(52.52, 13.40, 500))
	other.UserID = "user-2"
	evaluator := newEvaluatorFixture(t, mine, other)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	events, err := evaluator.Evaluate(ctx, locationUpdate("dev-1", 52.52, 13.40, base))
	require.NoError(t, err)
	require.Len(t, events, 1, "他ユーザーのジオフェンスは評価対象外")
	assert.Equal(t, "mine", events[0].GeofenceID)
}

func TestTriggerEvaluatorInactiveGeofence(t *testing.T) {
	inactive := testGeofence("paused", model.TriggerBoth, circleGeom(52.52, 13.40, 500))
	inactive.IsActive = false
	evaluator := newEvaluatorFixture(t, inactive)
	ctx := context.Background()

	events, err := evaluator.Evaluate(ctx, locationUpdate("dev-1", 52.52, 13.40, time.Now()))
	require.NoError(t, err)
	assert.Empty(t, events, "非アクティブなジオフェンスはイベントを発火しない")
}

func TestTriggerEvaluatorInvalidUpdate(t *testing.T) {
	evaluator := newEvaluatorFixture(t)
	ctx := context.Background()

	_, err := evaluator.Evaluate(ctx, &model.DeviceLocationUpdate{
		DeviceID:  "",
		Location:  model.Coordinates{Latitude: 52.52, Longitude: 13.40},
		Timestamp: time.Now(),
	})
	assert.Error(t, err)
}

func TestTriggerEvaluatorConcurrentSameDevice(t *testing.T) {
	// 同一デバイスへの並行更新でも、直列化によりEnter/Exitは必ず交互になる
	berlin := testGeofence("berlin-office", model.TriggerBoth, circleGeom(52.52, 13.40, 500))
	evaluator := newEvaluatorFixture(t, berlin)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	const updates = 40
	var enters, exits int64
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < updates; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// 偶数は内側、奇数は外側。タイムスタンプは昇順に割り当てる
			lat := 52.52
			if i%2 == 1 {
				lat = 52.60
			}
			events, err := evaluator.Evaluate(ctx, locationUpdate("dev-1", lat, 13.40, base.Add(time.Duration(i)*time.Second)))
			if err != nil {
				// ロック競合のタイムアウトは並行テストでは起こり得る
				assert.ErrorIs(t, err, ErrEvaluationTimeout)
				return
			}
			mu.Lock()
			for _, ev := range events {
				if ev.Kind == model.TransitionEnter {
					enters++
				} else {
					exits++
				}
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	// コミットされた状態列の中では遷移は必ず交互になるため、
	// Enter数とExit数の差は高々1（Enterが先行する）
	diff := enters - exits
	assert.True(t, diff == 0 || diff == 1,
		fmt.Sprintf("Enter/Exitの交互性が崩れている (enter=%d, exit=%d)", enters, exits))
}
