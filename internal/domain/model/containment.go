package model

import "time"

// ContainmentState デバイスが現在「内側」にいるジオフェンスIDの集合と、
// その集合を生成した更新のタイムスタンプ
// DeviceStateStoreのみが所有し、評価器は読み取り・計算・書き戻しをデバイス単位で行う
type ContainmentState struct {
	Inside    map[string]struct{}
	Timestamp time.Time
}

// NewContainmentState 空の包含状態を作成する（初回観測時のデフォルト）
func NewContainmentState() ContainmentState {
	return ContainmentState{Inside: map[string]struct{}{}}
}

// Contains 指定ジオフェンスの内側にいるかどうか
func (s ContainmentState) Contains(geofenceID string) bool {
	_, ok := s.Inside[geofenceID]
	return ok
}

// Clone 包含状態の独立したコピーを作成する
// 評価器が長期間参照を保持しないようにするための防御的コピー
func (s ContainmentState) Clone() ContainmentState {
	inside := make(map[string]struct{}, len(s.Inside))
	for id := range s.Inside {
		inside[id] = struct{}{}
	}
	return ContainmentState{Inside: inside, Timestamp: s.Timestamp}
}

// IDs 内側にいるジオフェンスIDの一覧を取得する
func (s ContainmentState) IDs() []string {
	ids := make([]string, 0, len(s.Inside))
	for id := range s.Inside {
		ids = append(ids, id)
	}
	return ids
}
