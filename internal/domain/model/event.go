package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// TransitionKind 包含状態の遷移種別
type TransitionKind string

const (
	TransitionEnter TransitionKind = "enter"
	TransitionExit  TransitionKind = "exit"
)

// TransitionEvent (デバイス, ジオフェンス)ペアの包含状態遷移イベント
// TriggerEvaluatorのみが生成し、EventDispatcherが配信後に破棄する
type TransitionEvent struct {
	DeviceID       string         `json:"device_id"`
	UserID         string         `json:"user_id"`
	GeofenceID     string         `json:"geofence_id"`
	Kind           TransitionKind `json:"event_type"`
	Location       Coordinates    `json:"location"`
	Timestamp      time.Time      `json:"timestamp"`
	IdempotencyKey string         `json:"idempotency_key"`
}

// NewTransitionEvent 冪等キー付きの遷移イベントを作成する
func NewTransitionEvent(update *DeviceLocationUpdate, geofenceID string, kind TransitionKind) *TransitionEvent {
	return &TransitionEvent{
		DeviceID:       update.DeviceID,
		UserID:         update.UserID,
		GeofenceID:     geofenceID,
		Kind:           kind,
		Location:       update.Location,
		Timestamp:      update.Timestamp,
		IdempotencyKey: NewIdempotencyKey(update.DeviceID, geofenceID, kind, update.Timestamp),
	}
}

// NewIdempotencyKey 同一の論理イベントに対して常に同じ値になる決定的なキーを生成する
// 再配信されたイベントを受信側が検知・無視するために使用する
func NewIdempotencyKey(deviceID, geofenceID string, kind TransitionKind, ts time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", deviceID, geofenceID, kind, ts.UnixNano())))
	return hex.EncodeToString(sum[:])
}
