package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"GeoInsight-App/internal/domain/model"
	"GeoInsight-App/internal/usecase"
)

// WebhookHandler Webhook設定に関するHTTPハンドラー
type WebhookHandler struct {
	webhookUseCase usecase.WebhookUseCase
}

// NewWebhookHandler WebhookHandlerの新しいインスタンスを作成
func NewWebhookHandler(webhookUseCase usecase.WebhookUseCase) *WebhookHandler {
	return &WebhookHandler{
		webhookUseCase: webhookUseCase,
	}
}

// RegisterWebhook POST /geofences/:id/webhook - Webhook設定の登録
func (h *WebhookHandler) RegisterWebhook(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var config model.WebhookConfig
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON format: " + err.Error(),
		})
		return
	}

	if err := h.webhookUseCase.RegisterWebhook(c.Request.Context(), userID, c.Param("id"), &config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "register_failed",
			"message": "Failed to register webhook: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "registered"})
}

// GetWebhook GET /geofences/:id/webhook - Webhook設定の取得
func (h *WebhookHandler) GetWebhook(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	config, err := h.webhookUseCase.GetWebhook(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to get webhook: " + err.Error(),
		})
		return
	}
	if config == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No webhook registered for geofence",
		})
		return
	}

	c.JSON(http.StatusOK, config)
}

// RemoveWebhook DELETE /geofences/:id/webhook - Webhook設定の削除
func (h *WebhookHandler) RemoveWebhook(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	if err := h.webhookUseCase.RemoveWebhook(c.Request.Context(), userID, c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "remove_failed",
			"message": "Failed to remove webhook: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
