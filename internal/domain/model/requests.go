package model

import "time"

// CreateGeofenceRequest ジオフェンス作成リクエスト
type CreateGeofenceRequest struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Geometry    *Geometry              `json:"geometry"`
	TriggerType TriggerType            `json:"trigger_type"`
	IsActive    *bool                  `json:"is_active,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// UpdateGeofenceRequest ジオフェンス更新リクエスト（指定された項目のみ更新）
type UpdateGeofenceRequest struct {
	Name        *string                `json:"name,omitempty"`
	Description *string                `json:"description,omitempty"`
	Geometry    *Geometry              `json:"geometry,omitempty"`
	TriggerType *TriggerType           `json:"trigger_type,omitempty"`
	IsActive    *bool                  `json:"is_active,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// LocationUpdateRequest 位置情報更新リクエスト
type LocationUpdateRequest struct {
	Location  Coordinates `json:"location"`
	Timestamp time.Time   `json:"timestamp"`
	Accuracy  *float64    `json:"accuracy,omitempty"`
	Speed     *float64    `json:"speed,omitempty"`
	Heading   *float64    `json:"heading,omitempty"`
	Altitude  *float64    `json:"altitude,omitempty"`
}

// ToUpdate リクエストをDeviceLocationUpdateに変換する
func (r *LocationUpdateRequest) ToUpdate(deviceID, userID string) *DeviceLocationUpdate {
	return &DeviceLocationUpdate{
		DeviceID:  deviceID,
		UserID:    userID,
		Location:  r.Location,
		Timestamp: r.Timestamp,
		Accuracy:  r.Accuracy,
		Speed:     r.Speed,
		Heading:   r.Heading,
		Altitude:  r.Altitude,
	}
}

// LocationUpdateResponse 位置情報更新レスポンス（計算された遷移集合）
type LocationUpdateResponse struct {
	DeviceID string             `json:"device_id"`
	Events   []*TransitionEvent `json:"events"`
}

// CheckPointRequest 点の包含チェックリクエスト
// GeofenceIDsがnilの場合はユーザーの全アクティブジオフェンスをチェックする
type CheckPointRequest struct {
	Location    Coordinates `json:"location"`
	GeofenceIDs []string    `json:"geofence_ids,omitempty"`
}

// CheckPointResult 点の包含チェック結果
type CheckPointResult struct {
	Location         Coordinates `json:"location"`
	InsideGeofences  []string    `json:"inside_geofences"`
	OutsideGeofences []string    `json:"outside_geofences"`
	TotalChecked     int         `json:"total_checked"`
}

// GeofenceStatsResponse ユーザーのジオフェンス統計
type GeofenceStatsResponse struct {
	TotalGeofences    int `json:"total_geofences"`
	ActiveGeofences   int `json:"active_geofences"`
	InactiveGeofences int `json:"inactive_geofences"`
}
