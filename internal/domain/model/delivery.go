package model

import "time"

// DeliveryStatus Webhook配信試行の最終結果
type DeliveryStatus string

const (
	DeliveryDelivered  DeliveryStatus = "delivered"
	DeliveryDeadLetter DeliveryStatus = "dead_letter"
	DeliveryAbandoned  DeliveryStatus = "abandoned"
)

// DeliveryRecord Webhook配信の履歴レコード
// 配信済み・デッドレター化したイベントの監査証跡として永続化する
type DeliveryRecord struct {
	IdempotencyKey string         `json:"idempotency_key" firestore:"idempotency_key"`
	DeviceID       string         `json:"device_id" firestore:"device_id"`
	GeofenceID     string         `json:"geofence_id" firestore:"geofence_id"`
	EventType      string         `json:"event_type" firestore:"event_type"`
	WebhookURL     string         `json:"webhook_url" firestore:"webhook_url"`
	Status         DeliveryStatus `json:"status" firestore:"status"`
	Attempts       int            `json:"attempts" firestore:"attempts"`
	StatusCode     int            `json:"status_code,omitempty" firestore:"status_code"`
	RecordedAt     time.Time      `json:"recorded_at" firestore:"recorded_at"`
}
