package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"GeoInsight-App/internal/domain/model"
)

const (
	// deviceStoreShardCount デバイスIDで振り分けるシャード数
	// シャード分割により異なるデバイスの評価は互いにブロックしない
	deviceStoreShardCount = 64

	// defaultLockTimeout 同一デバイスの先行評価の完了を待つ上限
	defaultLockTimeout = 3 * time.Second
)

// deviceEntry デバイス1台分の包含状態と評価スロット
// slotは容量1のチャネルで「同一デバイスの同時評価は最大1つ」を保証する
type deviceEntry struct {
	slot  chan struct{}
	mu    sync.Mutex
	state model.ContainmentState
}

type deviceStoreShard struct {
	mu      sync.Mutex
	devices map[string]*deviceEntry
}

// DeviceStateStore デバイスごとの最終既知包含状態の正本
//
// GetAndLockで評価スロットを獲得した呼び出しだけが状態を読み書きできる。
// 同一デバイスへの2つ目の評価は先行評価のCommit（またはRelease）まで
// ブロックし、タイムアウトした場合はErrEvaluationTimeoutを返す。
// この直列化が同一デバイスの並行更新による更新消失・二重Enterを防ぐ
type DeviceStateStore struct {
	shards      [deviceStoreShardCount]*deviceStoreShard
	lockTimeout time.Duration
}

// DeviceStateHandle 評価スロットの解放ハンドル
// Commitで新しい状態を書き込んで解放する。Commitせずに
// Releaseした場合は状態を変更せずに解放する
type DeviceStateHandle struct {
	entry    *deviceEntry
	released bool
}

// NewDeviceStateStore 新しいDeviceStateStoreを作成
func NewDeviceStateStore() *DeviceStateStore {
	return NewDeviceStateStoreWithTimeout(defaultLockTimeout)
}

// NewDeviceStateStoreWithTimeout ロックタイムアウトを指定してストアを作成
func NewDeviceStateStoreWithTimeout(lockTimeout time.Duration) *DeviceStateStore {
	s := &DeviceStateStore{lockTimeout: lockTimeout}
	for i := range s.shards {
		s.shards[i] = &deviceStoreShard{devices: map[string]*deviceEntry{}}
	}
	return s
}

// GetAndLock デバイスの評価スロットを獲得し、現在の包含状態のコピーを返す
// 先行評価が進行中の場合はタイムアウトまで待機する
func (s *DeviceStateStore) GetAndLock(ctx context.Context, deviceID string) (model.ContainmentState, *DeviceStateHandle, error) {
	entry := s.entryFor(deviceID)

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case entry.slot <- struct{}{}:
	case <-timer.C:
		return model.ContainmentState{}, nil, ErrEvaluationTimeout
	case <-ctx.Done():
		return model.ContainmentState{}, nil, ctx.Err()
	}

	entry.mu.Lock()
	state := entry.state.Clone()
	entry.mu.Unlock()

	return state, &DeviceStateHandle{entry: entry}, nil
}

// Commit 新しい包含状態を書き込み、評価スロットを解放する
func (s *DeviceStateStore) Commit(handle *DeviceStateHandle, newState model.ContainmentState) {
	if handle == nil || handle.released {
		return
	}
	handle.entry.mu.Lock()
	handle.entry.state = newState.Clone()
	handle.entry.mu.Unlock()
	handle.release()
}

// Release 状態を変更せずに評価スロットを解放する
// （タイムスタンプ順序により書き込みを破棄する場合に使用）
func (s *DeviceStateStore) Release(handle *DeviceStateHandle) {
	if handle == nil || handle.released {
		return
	}
	handle.release()
}

func (h *DeviceStateHandle) release() {
	h.released = true
	<-h.entry.slot
}

// Peek ロックを取らずに現在の包含状態のコピーを取得する（参照系API用）
func (s *DeviceStateStore) Peek(deviceID string) model.ContainmentState {
	entry := s.entryFor(deviceID)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state.Clone()
}

// entryFor デバイスのエントリを取得する（なければ作成）
func (s *DeviceStateStore) entryFor(deviceID string) *deviceEntry {
	shard := s.shards[shardIndexOf(deviceID)]

	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.devices[deviceID]
	if !ok {
		entry = &deviceEntry{
			slot:  make(chan struct{}, 1),
			state: model.NewContainmentState(),
		}
		shard.devices[deviceID] = entry
	}
	return entry
}

func shardIndexOf(deviceID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(deviceID))
	return h.Sum32() % deviceStoreShardCount
}
