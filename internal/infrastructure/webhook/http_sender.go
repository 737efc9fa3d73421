package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"GeoInsight-App/internal/domain/model"
)

// userAgent Webhook配信時のUser-Agentヘッダ
const userAgent = "GeoInsight-API/1.0"

// HTTPSender Webhook受信側へイベントをHTTP POSTで配信する実装
type HTTPSender struct {
	httpClient *http.Client
}

// NewHTTPSender 新しいHTTPSenderを作成
func NewHTTPSender() *HTTPSender {
	return &HTTPSender{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Send イベントペイロードをWebhook URLへPOSTする
// 戻り値はHTTPステータスコード（接続自体に失敗した場合は0とエラー）
// リトライの判断は呼び出し側（EventDispatcher）が行う
func (s *HTTPSender) Send(ctx context.Context, config *model.WebhookConfig, event *model.TransitionEvent) (int, error) {
	payload := model.NewWebhookPayload(event)
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("ペイロードのJSONマーシャル失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("リクエストの作成に失敗: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Idempotency-Key", event.IdempotencyKey)
	for k, v := range config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("Webhookリクエストに失敗: %w", err)
	}
	defer resp.Body.Close()

	// レスポンスボディは読み捨ててコネクションを再利用可能にする
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode, nil
}
