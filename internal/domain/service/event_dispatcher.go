package service

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"GeoInsight-App/internal/domain/model"
	"GeoInsight-App/internal/domain/repository"
)

const (
	defaultQueueCapacity  = 256
	defaultWorkerCount    = 4
	defaultEnqueueTimeout = 2 * time.Second
)

// defaultRetryDelays 一時的な配信失敗時のリトライ間隔
// 初回試行 + リトライ3回で打ち切り、デッドレターへ退避する
var defaultRetryDelays = []time.Duration{1 * time.Second, 5 * time.Second, 15 * time.Second}

// WebhookSender Webhook受信側への1回分のHTTP配信
// 戻り値はHTTPステータスコード（接続自体に失敗した場合は0とエラー）
type WebhookSender interface {
	Send(ctx context.Context, config *model.WebhookConfig, event *model.TransitionEvent) (int, error)
}

// DispatcherStats ディスパッチャの配信統計（監視用カウンタ）
type DispatcherStats struct {
	Delivered    uint64 `json:"delivered"`
	Skipped      uint64 `json:"skipped"`
	DeadLettered uint64 `json:"dead_lettered"`
	Abandoned    uint64 `json:"abandoned"`
}

// EventDispatcher 遷移イベントのWebhook配信を担う非同期ディスパッチャ
//
// 配信は専用のワーカープール上で行われ、遅い・壊れたWebhook受信側が
// 評価ホットパスをブロックすることはない。キューは有界で、満杯時の
// Enqueueはタイムアウト付きでブロックする（古いイベントは落とさず、
// タイムアウトを報告可能なエラーとして呼び出し側へ返す）。
// 配信保証はat-least-once：受信側は冪等キーで重複を検知・無視する
type EventDispatcher struct {
	webhooks repository.WebhooksRepository
	history  repository.EventHistoryRepository
	sender   WebhookSender

	queue          chan *model.TransitionEvent
	workerCount    int
	enqueueTimeout time.Duration
	retryDelays    []time.Duration

	mu      sync.Mutex
	started bool
	stopped bool

	// sendMu Enqueueの送信とStopのclose(queue)を排他する
	// 送信中のゴルーチンが残っている間はキューを閉じられない
	sendMu sync.RWMutex

	wg         sync.WaitGroup
	drainCtx   context.Context
	drainAbort context.CancelFunc

	delivered    atomic.Uint64
	skipped      atomic.Uint64
	deadLettered atomic.Uint64
	abandoned    atomic.Uint64
}

// DispatcherOptions EventDispatcherのチューニングパラメータ
type DispatcherOptions struct {
	QueueCapacity  int
	WorkerCount    int
	EnqueueTimeout time.Duration
	RetryDelays    []time.Duration
}

// NewEventDispatcher デフォルト設定で新しいEventDispatcherを作成
func NewEventDispatcher(
	webhooks repository.WebhooksRepository,
	history repository.EventHistoryRepository,
	sender WebhookSender,
) *EventDispatcher {
	return NewEventDispatcherWithOptions(webhooks, history, sender, DispatcherOptions{})
}

// NewEventDispatcherWithOptions 設定を指定してEventDispatcherを作成
func NewEventDispatcherWithOptions(
	webhooks repository.WebhooksRepository,
	history repository.EventHistoryRepository,
	sender WebhookSender,
	opts DispatcherOptions,
) *EventDispatcher {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = defaultQueueCapacity
	}
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = defaultWorkerCount
	}
	if opts.EnqueueTimeout <= 0 {
		opts.EnqueueTimeout = defaultEnqueueTimeout
	}
	if len(opts.RetryDelays) == 0 {
		opts.RetryDelays = defaultRetryDelays
	}
	drainCtx, drainAbort := context.WithCancel(context.Background())
	return &EventDispatcher{
		webhooks:       webhooks,
		history:        history,
		sender:         sender,
		queue:          make(chan *model.TransitionEvent, opts.QueueCapacity),
		workerCount:    opts.WorkerCount,
		enqueueTimeout: opts.EnqueueTimeout,
		retryDelays:    opts.RetryDelays,
		drainCtx:       drainCtx,
		drainAbort:     drainAbort,
	}
}

// Start 配信ワーカープールを起動する
func (d *EventDispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	for i := 0; i < d.workerCount; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	log.Printf("🚀 イベントディスパッチャ起動 (ワーカー数: %d, キュー容量: %d)", d.workerCount, cap(d.queue))
}

// Enqueue 遷移イベントを配信キューへ投入する
// キュー満杯時はタイムアウトまでブロックし、ErrEnqueueTimeoutを返す
// （データ消失ではなく報告可能なエラーとして扱う）
func (d *EventDispatcher) Enqueue(ctx context.Context, event *model.TransitionEvent) error {
	d.sendMu.RLock()
	defer d.sendMu.RUnlock()

	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return ErrDispatcherStopped
	}

	timer := time.NewTimer(d.enqueueTimeout)
	defer timer.Stop()

	select {
	case d.queue <- event:
		return nil
	case <-timer.C:
		return ErrEnqueueTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop 新規投入を止め、猶予期間内でキューを排出してから停止する
// 猶予期間を超えた場合、残りのリトライは放棄としてログに記録する（黙殺しない）
func (d *EventDispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	// 滞留中のEnqueueがすべて抜ける（送信完了かタイムアウト）のを待ってから
	// キューを閉じる。以降のEnqueueはstoppedフラグで弾かれる
	d.sendMu.Lock()
	close(d.queue)
	d.sendMu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("✅ イベントディスパッチャ停止完了 (配信: %d, デッドレター: %d)",
			d.delivered.Load(), d.deadLettered.Load())
	case <-ctx.Done():
		// 猶予期間超過：進行中のリトライ待機を中断させる
		d.drainAbort()
		<-done
		log.Printf("⚠️  イベントディスパッチャを猶予期間超過で停止 (放棄: %d)", d.abandoned.Load())
	}
}

// Stats 現在の配信統計を取得する
func (d *EventDispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Delivered:    d.delivered.Load(),
		Skipped:      d.skipped.Load(),
		DeadLettered: d.deadLettered.Load(),
		Abandoned:    d.abandoned.Load(),
	}
}

// worker キューからイベントを取り出して配信するワーカー
func (d *EventDispatcher) worker() {
	defer d.wg.Done()
	for event := range d.queue {
		d.deliver(event)
	}
}

// deliver 1イベントをリトライ付きで配信する
// 一時的な失敗（接続エラー・5xx）のみリトライし、それ以外の失敗は
// 即座にデッドレターへ退避する。配信失敗が評価側へ伝播することはない
func (d *EventDispatcher) deliver(event *model.TransitionEvent) {
	config, err := d.webhooks.Get(d.drainCtx, event.UserID, event.GeofenceID)
	if err != nil {
		log.Printf("⚠️  Webhook設定の取得失敗 (geofence=%s): %v", event.GeofenceID, err)
		d.recordDeadLetter(event, "", 0, 0)
		return
	}
	if config == nil || !config.IsActive || !config.SubscribedTo(event.Kind) {
		// 購読されていないイベント種別はスキップ（正常系）
		d.skipped.Add(1)
		return
	}

	maxAttempts := len(d.retryDelays) + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		statusCode, sendErr := d.sender.Send(d.drainCtx, config, event)

		if isDeliverySuccess(statusCode) {
			d.delivered.Add(1)
			d.recordHistory(event, config.URL, model.DeliveryDelivered, attempt, statusCode)
			return
		}

		transient := sendErr != nil || statusCode >= 500
		if !transient {
			// 4xx等の恒久的な失敗はリトライしても無駄なので即退避
			log.Printf("❌ Webhook配信の恒久的失敗 (url=%s, status=%d)", config.URL, statusCode)
			d.recordDeadLetter(event, config.URL, attempt, statusCode)
			return
		}

		if attempt == maxAttempts {
			break
		}

		delay := d.retryDelays[attempt-1]
		log.Printf("⚠️  Webhook配信失敗 (試行%d/%d, url=%s, status=%d): %v — %v後にリトライ",
			attempt, maxAttempts, config.URL, statusCode, sendErr, delay)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-d.drainCtx.Done():
			timer.Stop()
			d.abandoned.Add(1)
			log.Printf("⚠️  シャットダウンによりWebhookリトライを放棄 (key=%s)", event.IdempotencyKey)
			d.recordHistory(event, config.URL, model.DeliveryAbandoned, attempt, statusCode)
			return
		}
	}

	log.Printf("❌ Webhook配信のリトライ回数を使い切りました (url=%s, key=%s)", config.URL, event.IdempotencyKey)
	d.recordDeadLetter(event, config.URL, maxAttempts, 0)
}

// recordDeadLetter イベントをデッドレターとして記録する（黙って失わない）
func (d *EventDispatcher) recordDeadLetter(event *model.TransitionEvent, url string, attempts, statusCode int) {
	d.deadLettered.Add(1)
	d.recordHistory(event, url, model.DeliveryDeadLetter, attempts, statusCode)
}

// recordHistory 配信結果を履歴リポジトリへ記録する
// 記録の失敗自体はログに留める（観測用の記録が配信処理を壊さないため）
func (d *EventDispatcher) recordHistory(event *model.TransitionEvent, url string, status model.DeliveryStatus, attempts, statusCode int) {
	if d.history == nil {
		return
	}
	record := &model.DeliveryRecord{
		IdempotencyKey: event.IdempotencyKey,
		DeviceID:       event.DeviceID,
		GeofenceID:     event.GeofenceID,
		EventType:      string(event.Kind),
		WebhookURL:     url,
		Status:         status,
		Attempts:       attempts,
		StatusCode:     statusCode,
		RecordedAt:     time.Now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.history.Record(ctx, record); err != nil {
		log.Printf("⚠️  配信履歴の記録失敗 (key=%s): %v", event.IdempotencyKey, err)
	}
}

// isDeliverySuccess Webhook受信側が受理したとみなすステータスコード
func isDeliverySuccess(statusCode int) bool {
	switch statusCode {
	case 200, 201, 202, 204:
		return true
	}
	return false
}
