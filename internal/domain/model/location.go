package model

import (
	"fmt"
	"time"
)

// Coordinates 緯度経度を表す基本的な型（WGS84）
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewCoordinates 範囲チェック付きでCoordinatesを作成する
// 範囲外の値は丸めずにエラーとして拒否する
func NewCoordinates(lat, lon float64) (Coordinates, error) {
	c := Coordinates{Latitude: lat, Longitude: lon}
	if err := c.Validate(); err != nil {
		return Coordinates{}, err
	}
	return c, nil
}

// Validate 緯度経度が有効範囲内かチェックする
func (c Coordinates) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("緯度は-90から90の範囲内である必要があります: %f", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("経度は-180から180の範囲内である必要があります: %f", c.Longitude)
	}
	return nil
}

// DeviceLocationUpdate デバイスからの位置情報更新
// タイムスタンプはデバイスごとに単調増加である保証はない（順序の入れ替わりあり）
type DeviceLocationUpdate struct {
	DeviceID  string      `json:"device_id"`
	UserID    string      `json:"user_id"`
	Location  Coordinates `json:"location"`
	Timestamp time.Time   `json:"timestamp"`

	// 以下は評価エンジンでは使用しないパススルー項目
	Accuracy *float64 `json:"accuracy,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`
	Heading  *float64 `json:"heading,omitempty"`
	Altitude *float64 `json:"altitude,omitempty"`
}

// Validate 位置情報更新のバリデーション
func (u *DeviceLocationUpdate) Validate() error {
	if u.DeviceID == "" {
		return fmt.Errorf("デバイスIDは必須です")
	}
	if u.Timestamp.IsZero() {
		return fmt.Errorf("タイムスタンプは必須です")
	}
	if err := u.Location.Validate(); err != nil {
		return fmt.Errorf("位置情報の検証失敗: %w", err)
	}
	return nil
}
