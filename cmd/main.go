package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	domainRepository "GeoInsight-App/internal/domain/repository"
	"GeoInsight-App/internal/domain/service"
	"GeoInsight-App/internal/handler"
	"GeoInsight-App/internal/infrastructure/database"
	"GeoInsight-App/internal/infrastructure/firestore"
	"GeoInsight-App/internal/infrastructure/webhook"
	"GeoInsight-App/internal/repository"
	"GeoInsight-App/internal/usecase"
)

const (
	shutdownTimeout = 10 * time.Second
	drainTimeout    = 20 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using system environment variables")
	}

	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseAnonKey := os.Getenv("SUPABASE_ANON_KEY")

	if supabaseURL == "" || supabaseAnonKey == "" {
		fmt.Println("⚠️  環境変数が設定されていません:")
		fmt.Println("必要な環境変数: SUPABASE_URL, SUPABASE_ANON_KEY")
		fmt.Println("\n.envファイルを作成するか、環境変数を設定してください")
		log.Fatal("Environment variables not set")
	}

	fmt.Println("Initializing Supabase client...")
	supabaseClient, err := database.NewSupabaseClient()
	if err != nil {
		log.Fatalf("Supabaseクライアント初期化失敗: %v", err)
	}

	fmt.Println("Performing Supabase health check...")
	if err := supabaseClient.HealthCheck(); err != nil {
		log.Fatalf("Supabaseヘルスチェック失敗: %v", err)
	}
	fmt.Println("✅ Supabase connection successful!")

	fmt.Println("Initializing Redis client...")
	redisClient, err := database.NewRedisClient()
	if err != nil {
		log.Fatalf("Redisクライアント初期化失敗: %v", err)
	}
	defer redisClient.Close()
	fmt.Println("✅ Redis connection successful!")

	ctx := context.Background()

	// Firestoreは配信履歴の記録にのみ使用するため、未設定なら記録なしで動作する
	var firestoreClient *firestore.FirestoreClient
	if projectID := os.Getenv("FIRESTORE_PROJECT_ID"); projectID != "" {
		firestoreClient, err = firestore.NewFirestoreClient(ctx, projectID)
		if err != nil {
			log.Printf("⚠️  Firestore初期化失敗（配信履歴の記録なしで継続）: %v", err)
			firestoreClient = nil
		} else {
			defer firestoreClient.Close()
		}
	} else {
		log.Println("⚠️  FIRESTORE_PROJECT_ID未設定のため配信履歴の記録は無効です")
	}

	// Repositories
	geofencesRepo := repository.NewSupabaseGeofencesRepository(supabaseClient)
	webhooksRepo := repository.NewRedisWebhooksRepository(redisClient)
	deviceCache := repository.NewRedisDeviceCacheRepository(redisClient)
	var historyRepo domainRepository.EventHistoryRepository
	if firestoreClient != nil {
		historyRepo = repository.NewFirestoreEventHistoryRepository(firestoreClient)
	}

	// 評価エンジンのコア
	geometryService := service.NewGeometryService()
	spatialIndex := service.NewSpatialIndex()
	catalog := service.NewGeofenceCatalog()
	stateStore := service.NewDeviceStateStore()
	evaluator := service.NewTriggerEvaluator(spatialIndex, geometryService, catalog, stateStore)

	dispatcher := service.NewEventDispatcher(webhooksRepo, historyRepo, webhook.NewHTTPSender())
	dispatcher.Start()

	// Dependency injection
	geofenceUseCase := usecase.NewGeofenceUseCase(geofencesRepo, catalog, spatialIndex, geometryService)
	locationUseCase := usecase.NewLocationUseCase(evaluator, dispatcher, deviceCache)
	webhookUseCase := usecase.NewWebhookUseCase(webhooksRepo, geofencesRepo)

	geofenceHandler := handler.NewGeofenceHandler(geofenceUseCase)
	locationHandler := handler.NewLocationHandler(locationUseCase)
	webhookHandler := handler.NewWebhookHandler(webhookUseCase)

	// 起動時にアクティブなジオフェンスをインデックスへロード
	// SUPABASE_DB_PASSWORDが設定されていればPostgreSQL直接続で一括ロードする
	if err := loadInitialIndex(ctx, geofenceUseCase, catalog, spatialIndex, geometryService); err != nil {
		log.Fatalf("起動時のインデックス構築失敗: %v", err)
	}

	// Ginルーターのセットアップ
	r := gin.Default()

	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":            "healthy",
			"service":           "GeoInsight-App",
			"indexed_geofences": spatialIndex.Len(),
			"dispatcher":        dispatcher.Stats(),
		})
	})

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
		devices.POST("/:id/location/async", locationHandler.IngestLocation)
		devices.GET("/:id/location", locationHandler.GetLastLocation)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		fmt.Printf("GeoInsight-App server starting on :%s...\n", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTPサーバー起動失敗: %v", err)
		}
	}()

	// シグナル受信でグレースフルシャットダウン
	// HTTPを先に閉じて新規投入を止め、その後ディスパッチャのキューを排出する
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 シャットダウンシグナル受信")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  HTTPサーバーのシャットダウン失敗: %v", err)
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), drainTimeout)
	defer cancelDrain()
	dispatcher.Stop(drainCtx)

	log.Println("✅ GeoInsight-App server stopped")
}

// loadInitialIndex 起動時にアクティブなジオフェンスをカタログとインデックスへロードする
// PostgreSQL直接続が使える場合はプールされた一括ロードを使い、
// 使えない場合はSupabase REST経由のRefreshIndexへフォールバックする
func loadInitialIndex(
	ctx context.Context,
	geofenceUseCase usecase.GeofenceUseCase,
	catalog *service.GeofenceCatalog,
	spatialIndex *service.SpatialIndex,
	geometryService *service.GeometryService,
) error {
	if os.Getenv("SUPABASE_DB_PASSWORD") != "" {
		postgresClient, pgErr := database.NewPostgreSQLClientWithRetry(3, 2*time.Second)
		if pgErr == nil {
			defer postgresClient.Close()
			pgRepo := repository.NewPostgresGeofencesRepository(postgresClient)
			geofences, loadErr := pgRepo.LoadActiveGeofences(ctx)
			if loadErr == nil {
				catalog.ReplaceAll(geofences)
				if err := spatialIndex.Rebuild(geofences, geometryService); err != nil {
					return err
				}
				log.Printf("✅ アクティブなジオフェンス %d 件をロードしました (PostgreSQL)", len(geofences))
				return nil
			}
			log.Printf("⚠️  PostgreSQL一括ロード失敗、Supabase REST経由へフォールバック: %v", loadErr)
		} else {
			log.Printf("⚠️  PostgreSQL接続失敗、Supabase REST経由へフォールバック: %v", pgErr)
		}
	}

	count, err := geofenceUseCase.RefreshIndex(ctx)
	if err != nil {
		return err
	}
	log.Printf("✅ アクティブなジオフェンス %d 件をロードしました (Supabase REST)", count)
	return nil
}
