package service

import "errors"

var (
	// ErrEvaluationTimeout デバイスの評価スロットを制限時間内に取得できなかった
	// 呼び出し側が再送すべきリトライ可能エラー（更新は黙って捨てない）
	ErrEvaluationTimeout = errors.New("デバイス評価スロットの取得がタイムアウトしました")

	// ErrEnqueueTimeout 配信キューが満杯のままタイムアウトした
	// 古いイベントを落とすのではなく、新規投入側へ報告する
	ErrEnqueueTimeout = errors.New("イベントキューへの投入がタイムアウトしました")

	// ErrDispatcherStopped 停止済みのディスパッチャへの投入
	ErrDispatcherStopped = errors.New("イベントディスパッチャは停止しています")
)
