package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"GeoInsight-App/internal/domain/model"
	"GeoInsight-App/internal/usecase"
)

// userIDHeader 認証は外部コラボレータの責務のため、
// ユーザーIDはヘッダから受け取る
const userIDHeader = "X-User-ID"

// GeofenceHandler ジオフェンスCRUDに関するHTTPハンドラー
type GeofenceHandler struct {
	geofenceUseCase usecase.GeofenceUseCase
}

// NewGeofenceHandler GeofenceHandlerの新しいインスタンスを作成
func NewGeofenceHandler(geofenceUseCase usecase.GeofenceUseCase) *GeofenceHandler {
	return &GeofenceHandler{
		geofenceUseCase: geofenceUseCase,
	}
}

// requireUserID リクエストからユーザーIDを取得する（なければ400を返す）
func requireUserID(c *gin.Context) (string, bool) {
	userID := c.GetHeader(userIDHeader)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_user",
			"message": "X-User-ID header is required",
		})
		return "", false
	}
	return userID, true
}

// CreateGeofence POST /geofences - ジオフェンスの作成
func (h *GeofenceHandler) CreateGeofence(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req model.CreateGeofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON format: " + err.Error(),
		})
		return
	}

	geofence, err := h.geofenceUseCase.CreateGeofence(c.Request.Context(), userID, &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": "Failed to create geofence: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, geofence)
}

// ListGeofences GET /geofences - ジオフェンス一覧の取得
func (h *GeofenceHandler) ListGeofences(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	offset := 0
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	var isActive *bool
	if v := c.Query("is_active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_parameter",
				"message": "is_active must be true or false",
			})
			return
		}
		isActive = &b
	}

	geofences, err := h.geofenceUseCase.ListGeofences(c.Request.Context(), userID, isActive, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list geofences: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"geofences": geofences})
}

// GetGeofence GET /geofences/:id - ジオフェンスの取得
func (h *GeofenceHandler) GetGeofence(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	geofence, err := h.geofenceUseCase.GetGeofence(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Failed to get geofence: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, geofence)
}

// UpdateGeofence PUT /geofences/:id - ジオフェンスの更新
func (h *GeofenceHandler) UpdateGeofence(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req model.UpdateGeofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON format: " + err.Error(),
		})
		return
	}

	geofence, err := h.geofenceUseCase.UpdateGeofence(c.Request.Context(), userID, c.Param("id"), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "update_failed",
			"message": "Failed to update geofence: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, geofence)
}

// DeleteGeofence DELETE /geofences/:id - ジオフェンスの削除
func (h *GeofenceHandler) DeleteGeofence(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	if err := h.geofenceUseCase.DeleteGeofence(c.Request.Context(), userID, c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "delete_failed",
			"message": "Failed to delete geofence: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// CheckPoint POST /geofences/check - 点の包含チェック
func (h *GeofenceHandler) CheckPoint(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req model.CheckPointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON format: " + err.Error(),
		})
		return
	}

	result, err := h.geofenceUseCase.CheckPoint(c.Request.Context(), userID, &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "check_failed",
			"message": "Failed to check point: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetStats GET /geofences/stats - ジオフェンス統計の取得
func (h *GeofenceHandler) GetStats(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	stats, err := h.geofenceUseCase.GetStats(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to get stats: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}
