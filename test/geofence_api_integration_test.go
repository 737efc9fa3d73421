package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GeoInsight-App/internal/domain/model"
	"GeoInsight-App/internal/domain/service"
	"GeoInsight-App/internal/handler"
	"GeoInsight-App/internal/usecase"
)

// memoryGeofencesRepository 統合テスト用のインメモリジオフェンスリポジトリ
type memoryGeofencesRepository struct {
	mu        sync.Mutex
	geofences map[string]*model.Geofence
}

func (r *memoryGeofencesRepository) Create(ctx context.Context, geofence *model.Geofence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.geofences[geofence.ID] = geofence
	return nil
}

func (r *memoryGeofencesRepository) GetByID(ctx context.Context, userID, geofenceID string) (*model.Geofence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	gf, ok := r.geofences[geofenceID]
	if !ok || gf.UserID != userID {
		return nil, fmt.Errorf("ジオフェンスが見つかりません: %s", geofenceID)
	}
	return gf, nil
}

func (r *memoryGeofencesRepository) List(ctx context.Context, userID string, isActive *bool, limit, offset int) ([]*model.Geofence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Geofence
	for _, gf := range r.geofences {
		if gf.UserID != userID {
			continue
		}
		if isActive != nil && gf.IsActive != *isActive {
			continue
		}
		out = append(out, gf)
	}
	return out, nil
}

func (r *memoryGeofencesRepository) Update(ctx context.Context, geofence *model.Geofence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.geofences[geofence.ID] = geofence
	return nil
}

func (r *memoryGeofencesRepository) Delete(ctx context.Context, userID, geofenceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.geofences, geofenceID)
	return nil
}

func (r *memoryGeofencesRepository) LoadActiveGeofences(ctx context.Context) ([]*model.Geofence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Geofence
	for _, gf := range r.geofences {
		if gf.IsActive {
			out = append(out, gf)
		}
	}
	return out, nil
}

func (r *memoryGeofencesRepository) CountByUser(ctx context.Context, userID string) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total, active := 0, 0
	for _, gf := range r.geofences {
		if gf.UserID != userID {
			continue
		}
		total++
		if gf.IsActive {
			active++
		}
	}
	return total, active, nil
}

// memoryWebhooksRepository 統合テスト用のインメモリWebhook設定リポジトリ
type memoryWebhooksRepository struct {
	mu      sync.Mutex
	configs map[string]*model.WebhookConfig
}

func webhookKey(userID, geofenceID string) string {
	return userID + ":" + geofenceID
}

func (r *memoryWebhooksRepository) Register(ctx context.Context, userID, geofenceID string, config *model.WebhookConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[webhookKey(userID, geofenceID)] = config
	return nil
}

func (r *memoryWebhooksRepository) Get(ctx context.Context, userID, geofenceID string) (*model.WebhookConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.configs[webhookKey(userID, geofenceID)], nil
}

func (r *memoryWebhooksRepository) Remove(ctx context.Context, userID, geofenceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.configs, webhookKey(userID, geofenceID))
	return nil
}

// capturingSender 配信されたイベントを記録するWebhookSender
type capturingSender struct {
	mu     sync.Mutex
	events []*model.TransitionEvent
}

func (s *capturingSender) Send(ctx context.Context, config *model.WebhookConfig, event *model.TransitionEvent) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return http.StatusOK, nil
}

func (s *capturingSender) delivered() []*model.TransitionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.TransitionEvent, len(s.events))
	copy(out, s.events)
	return out
}

type apiFixture struct {
	router     *gin.Engine
	dispatcher *service.EventDispatcher
	sender     *capturingSender
}

// setupAPIRouterForIntegration はAPIサーバーのルーターを設定する（統合テスト用）
// 外部サービスの代わりにインメモリリポジトリを使用する
func setupAPIRouterForIntegration() *apiFixture {
	gin.SetMode(gin.TestMode)

	geofencesRepo := &memoryGeofencesRepository{geofences: map[string]*model.Geofence{}}
	webhooksRepo := &memoryWebhooksRepository{configs: map[string]*model.WebhookConfig{}}
	sender := &capturingSender{}

	geometryService := service.NewGeometryService()
	spatialIndex := service.NewSpatialIndex()
	catalog := service.NewGeofenceCatalog()
	stateStore := service.NewDeviceStateStore()
	evaluator := service.NewTriggerEvaluator(spatialIndex, geometryService, catalog, stateStore)

	dispatcher := service.NewEventDispatcher(webhooksRepo, nil, sender)
	dispatcher.Start()

	// Dependency injection
	geofenceUseCase := usecase.NewGeofenceUseCase(geofencesRepo, catalog, spatialIndex, geometryService)
	locationUseCase := usecase.NewLocationUseCase(evaluator, dispatcher, nil)
	webhookUseCase := usecase.NewWebhookUseCase(webhooksRepo, geofencesRepo)

	geofenceHandler := handler.NewGeofenceHandler(geofenceUseCase)
	locationHandler := handler.NewLocationHandler(locationUseCase)
	webhookHandler := handler.NewWebhookHandler(webhookUseCase)

	r := gin.New()

	geofences := r.Group("/geofences")
	{
		geofences.POST("", geofenceHandler.CreateGeofence)
		geofences.GET("", geofenceHandler.ListGeofences)
		geofences.POST("/check", geofenceHandler.CheckPoint)
		geofences.GET("/stats", geofenceHandler.GetStats)
		geofences.GET("/:id", geofenceHandler.GetGeofence)
		geofences.PUT("/:id", geofenceHandler.UpdateGeofence)
		geofences.DELETE("/:id", geofenceHandler.DeleteGeofence)
		geofences.POST("/:id/webhook", webhookHandler.RegisterWebhook)
		geofences.GET("/:id/webhook", webhookHandler.GetWebhook)
		geofences.DELETE("/:id/webhook", webhookHandler.RemoveWebhook)
	}

	devices := r.Group("/devices")
	{
		devices.POST("/:id/location", locationHandler.SubmitLocation)
	}

	return &apiFixture{router: r, dispatcher: dispatcher, sender: sender}
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, path, buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-1")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestGeofenceAPIIntegration は作成から評価・配信までの一連の流れを検証する
func TestGeofenceAPIIntegration(t *testing.T) {
	log.Printf("🧪 ジオフェンスAPI統合テスト開始")

	f := setupAPIRouterForIntegration()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		f.dispatcher.Stop(ctx)
	}()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var geofenceID string

	t.Run("円形ジオフェンスの作成", func(t *testing.T) {
		w := doJSON(t, f.router, "POST", "/geofences", model.CreateGeofenceRequest{
			Name: "ベルリンオフィス",
			Geometry: &model.Geometry{
				Type:         model.GeometryCircle,
				Center:       &model.Coordinates{Latitude: 52.52, Longitude: 13.40},
				RadiusMeters: 500,
			},
			TriggerType: model.TriggerBoth,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var created model.Geofence
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
		require.NotEmpty(t, created.ID)
		geofenceID = created.ID
		log.Printf("✅ ジオフェンス作成完了: %s", geofenceID)
	})

	t.Run("Webhook設定の登録", func(t *testing.T) {
		w := doJSON(t, f.router, "POST", "/geofences/"+geofenceID+"/webhook", model.WebhookConfig{
			URL:      "https://example.com/hooks/geofence",
			Events:   []string{"enter", "exit"},
			IsActive: true,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	})

	t.Run("内側への移動でEnterイベント", func(t *testing.T) {
		w := doJSON(t, f.router, "POST", "/devices/dev-1/location", model.LocationUpdateRequest{
			Location:  model.Coordinates{Latitude: 52.52, Longitude: 13.40},
			Timestamp: base,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp model.LocationUpdateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Events, 1)
		assert.Equal(t, model.TransitionEnter, resp.Events[0].Kind)
		assert.Equal(t, geofenceID, resp.Events[0].GeofenceID)
	})

	t.Run("外側への移動でExitイベント", func(t *testing.T) {
		w := doJSON(t, f.router, "POST", "/devices/dev-1/location", model.LocationUpdateRequest{
			Location:  model.Coordinates{Latitude: 52.60, Longitude: 13.40},
			Timestamp: base.Add(time.Minute),
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp model.LocationUpdateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Events, 1)
		assert.Equal(t, model.TransitionExit, resp.Events[0].Kind)
	})

	t.Run("古いタイムスタンプの再送はイベントなし", func(t *testing.T) {
		w := doJSON(t, f.router, "POST", "/devices/dev-1/location", model.LocationUpdateRequest{
			Location:  model.Coordinates{Latitude: 52.52, Longitude: 13.40},
			Timestamp: base,
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp model.LocationUpdateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Empty(t, resp.Events)
	})

	t.Run("Webhookへ両イベントが配信される", func(t *testing.T) {
		// 配信はワーカープール上で非同期に行われる
		require.Eventually(t, func() bool {
			return len(f.sender.delivered()) == 2
		}, 3*time.Second, 20*time.Millisecond, "Enter/Exitの2件が配信されること")

		delivered := f.sender.delivered()
		kinds := []model.TransitionKind{delivered[0].Kind, delivered[1].Kind}
		assert.ElementsMatch(t, []model.TransitionKind{model.TransitionEnter, model.TransitionExit}, kinds)
		assert.NotEqual(t, delivered[0].IdempotencyKey, delivered[1].IdempotencyKey)
		log.Printf("✅ Webhook配信確認完了: %d件", len(delivered))
	})

	t.Run("点の包含チェック", func(t *testing.T) {
		w := doJSON(t, f.router, "POST", "/geofences/check", model.CheckPointRequest{
			Location: model.Coordinates{Latitude: 52.52, Longitude: 13.40},
		})
		require.Equal(t, http.StatusOK, w.Code)

		var result model.CheckPointResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.Equal(t, []string{geofenceID}, result.InsideGeofences)
	})

	t.Run("削除後は評価対象から外れる", func(t *testing.T) {
		w := doJSON(t, f.router, "DELETE", "/geofences/"+geofenceID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = doJSON(t, f.router, "POST", "/devices/dev-2/location", model.LocationUpdateRequest{
			Location:  model.Coordinates{Latitude: 52.52, Longitude: 13.40},
			Timestamp: base.Add(2 * time.Minute),
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp model.LocationUpdateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Empty(t, resp.Events)
	})
}

// TestGeofenceAPIPolygonScenario はポリゴンジオフェンスのEnter限定トリガーを検証する
func TestGeofenceAPIPolygonScenario(t *testing.T) {
	f := setupAPIRouterForIntegration()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		f.dispatcher.Stop(ctx)
	}()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	w := doJSON(t, f.router, "POST", "/geofences", model.CreateGeofenceRequest{
		Name: "中心地区",
		Geometry: &model.Geometry{
			Type: model.GeometryPolygon,
			Coordinates: [][][]float64{{
				{13.3, 52.5}, {13.3, 52.55}, {13.45, 52.55}, {13.45, 52.5}, {13.3, 52.5},
			}},
		},
		TriggerType: model.TriggerEnter,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created model.Geofence
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	// 外側から内側へ
	w = doJSON(t, f.router, "POST", "/devices/dev-1/location", model.LocationUpdateRequest{
		Location:  model.Coordinates{Latitude: 52.525, Longitude: 13.375},
		Timestamp: base,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.LocationUpdateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, model.TransitionEnter, resp.Events[0].Kind)

	// 外へ戻ってもExitはトリガーされない（Enter限定）
	w = doJSON(t, f.router, "POST", "/devices/dev-1/location", model.LocationUpdateRequest{
		Location:  model.Coordinates{Latitude: 52.6, Longitude: 13.375},
		Timestamp: base.Add(time.Minute),
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp = model.LocationUpdateResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Events)
}
