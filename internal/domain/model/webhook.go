package model

import (
	"fmt"
	"strings"
)

// WebhookConfig ジオフェンスごとのWebhook通知設定
// 再送先URL・署名・配信済みキーの永続化は受信側コラボレータの責務
type WebhookConfig struct {
	URL      string            `json:"url"`
	Events   []string          `json:"events"`
	Headers  map[string]string `json:"headers,omitempty"`
	IsActive bool              `json:"is_active"`
}

// Validate Webhook設定のバリデーション
func (w *WebhookConfig) Validate() error {
	if !strings.HasPrefix(w.URL, "http://") && !strings.HasPrefix(w.URL, "https://") {
		return fmt.Errorf("Webhook URLはhttpまたはhttpsで始まる必要があります: %s", w.URL)
	}
	if len(w.Events) == 0 {
		return fmt.Errorf("通知対象イベントは最低1つ必要です")
	}
	for _, ev := range w.Events {
		if ev != string(TransitionEnter) && ev != string(TransitionExit) {
			return fmt.Errorf("無効なイベント種別です: %s（enter/exitのみ有効）", ev)
		}
	}
	return nil
}

// SubscribedTo 指定された遷移種別を購読しているかどうか
func (w *WebhookConfig) SubscribedTo(kind TransitionKind) bool {
	for _, ev := range w.Events {
		if ev == string(kind) {
			return true
		}
	}
	return false
}

// WebhookPayload Webhook受信側へ送信するイベントペイロード
type WebhookPayload struct {
	EventType      string             `json:"event_type"`
	DeviceID       string             `json:"device_id"`
	GeofenceID     string             `json:"geofence_id"`
	Location       map[string]float64 `json:"location"`
	Timestamp      string             `json:"timestamp"`
	IdempotencyKey string             `json:"idempotency_key"`
}

// NewWebhookPayload TransitionEventから配信用ペイロードを作成する
func NewWebhookPayload(ev *TransitionEvent) *WebhookPayload {
	return &WebhookPayload{
		EventType:  string(ev.Kind),
		DeviceID:   ev.DeviceID,
		GeofenceID: ev.GeofenceID,
		Location: map[string]float64{
			"latitude":  ev.Location.Latitude,
			"longitude": ev.Location.Longitude,
		},
		Timestamp:      ev.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		IdempotencyKey: ev.IdempotencyKey,
	}
}
