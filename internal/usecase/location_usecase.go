package usecase

import (
	"context"
	"log"
	"time"

	"GeoInsight-App/internal/domain/model"
	"GeoInsight-App/internal/domain/repository"
	"GeoInsight-App/internal/domain/service"
)

// ingestTimeout 非同期インジェスト1件あたりの処理上限
const ingestTimeout = 10 * time.Second

// LocationUseCase 位置情報更新の受け付けと評価・通知の配線を担うユースケース
type LocationUseCase interface {
	// SubmitLocationUpdate 位置情報更新を同期的に評価し、遷移集合を返す
	// 戻り値は「計算された遷移集合（空もあり得る）」か「リトライ可能な
	// タイムアウトエラー」のどちらかで、部分的な結果は返さない
	SubmitLocationUpdate(ctx context.Context, update *model.DeviceLocationUpdate) ([]*model.TransitionEvent, error)

	// IngestLocationUpdate 位置情報更新をfire-and-forgetで取り込む
	// （ストリーミング・バルク投入向けの経路）
	IngestLocationUpdate(update *model.DeviceLocationUpdate)

	// GetLastLocation デバイスの最終位置をキャッシュから取得する
	GetLastLocation(ctx context.Context, deviceID string) (*model.DeviceLocationUpdate, error)
}

// locationUseCaseImpl LocationUseCaseの実装
type locationUseCaseImpl struct {
	evaluator   *service.TriggerEvaluator
	dispatcher  *service.EventDispatcher
	deviceCache repository.DeviceLocationCache
}

// NewLocationUseCase 新しいLocationUseCaseインスタンスを作成
func NewLocationUseCase(
	evaluator *service.TriggerEvaluator,
	dispatcher *service.EventDispatcher,
	deviceCache repository.DeviceLocationCache,
) LocationUseCase {
	return &locationUseCaseImpl{
		evaluator:   evaluator,
		dispatcher:  dispatcher,
		deviceCache: deviceCache,
	}
}

// SubmitLocationUpdate 位置情報更新を同期的に評価し、遷移集合を返す
func (u *locationUseCaseImpl) SubmitLocationUpdate(ctx context.Context, update *model.DeviceLocationUpdate) ([]*model.TransitionEvent, error) {
	events, err := u.evaluator.Evaluate(ctx, update)
	if err != nil {
		return nil, err
	}

	// 配信は評価から切り離されており、その失敗は呼び出し側エラーにならない
	// （キュー満杯のタイムアウトもログで報告するのみ）
	for _, event := range events {
		if enqueueErr := u.dispatcher.Enqueue(ctx, event); enqueueErr != nil {
			log.Printf("❌ イベント投入失敗 (key=%s): %v", event.IdempotencyKey, enqueueErr)
		}
	}

	// 最終位置キャッシュはベストエフォート（パススルー項目の参照用）
	if u.deviceCache != nil {
		if cacheErr := u.deviceCache.StoreLastLocation(ctx, update); cacheErr != nil {
			log.Printf("⚠️  最終位置キャッシュの更新失敗 (device=%s): %v", update.DeviceID, cacheErr)
		}
	}

	return events, nil
}

// IngestLocationUpdate 位置情報更新をfire-and-forgetで取り込む
// 評価タイムアウト等のエラーはログで報告する（黙殺しない）
func (u *locationUseCaseImpl) IngestLocationUpdate(update *model.DeviceLocationUpdate) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
		defer cancel()

		if _, err := u.SubmitLocationUpdate(ctx, update); err != nil {
			log.Printf("⚠️  非同期インジェストの評価失敗 (device=%s): %v", update.DeviceID, err)
		}
	}()
}

// GetLastLocation デバイスの最終位置をキャッシュから取得する
func (u *locationUseCaseImpl) GetLastLocation(ctx context.Context, deviceID string) (*model.DeviceLocationUpdate, error) {
	if u.deviceCache == nil {
		return nil, nil
	}
	return u.deviceCache.GetLastLocation(ctx, deviceID)
}
