package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"GeoInsight-App/internal/domain/model"
	"GeoInsight-App/internal/domain/service"
	"GeoInsight-App/internal/usecase"
)

// LocationHandler 位置情報更新の受け付けに関するHTTPハンドラー
type LocationHandler struct {
	locationUseCase usecase.LocationUseCase
}

// NewLocationHandler LocationHandlerの新しいインスタンスを作成
func NewLocationHandler(locationUseCase usecase.LocationUseCase) *LocationHandler {
	return &LocationHandler{
		locationUseCase: locationUseCase,
	}
}

// bindLocationUpdate リクエストからDeviceLocationUpdateを構築する
func bindLocationUpdate(c *gin.Context) (*model.DeviceLocationUpdate, bool) {
	userID, ok := requireUserID(c)
	if !ok {
		return nil, false
	}

	deviceID := c.Param("id")
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_parameter",
			"message": "Device ID is required",
		})
		return nil, false
	}

	var req model.LocationUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON format: " + err.Error(),
		})
		return nil, false
	}

	update := req.ToUpdate(deviceID, userID)
	if err := update.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": "Invalid location update: " + err.Error(),
		})
		return nil, false
	}

	return update, true
}

// SubmitLocation POST /devices/:id/location - 位置情報更新の同期評価
// 計算された遷移集合を返すか、リトライ可能なタイムアウトエラー(503)を返す
func (h *LocationHandler) SubmitLocation(c *gin.Context) {
	update, ok := bindLocationUpdate(c)
	if !ok {
		return
	}

	events, err := h.locationUseCase.SubmitLocationUpdate(c.Request.Context(), update)
	if err != nil {
		if errors.Is(err, service.ErrEvaluationTimeout) {
			// 更新は適用されていない：呼び出し側は再送すればよい
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "evaluation_timeout",
				"message": "Evaluation slot busy, please retry",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "evaluation_failed",
			"message": "Failed to evaluate location update: " + err.Error(),
		})
		return
	}

	if events == nil {
		events = []*model.TransitionEvent{}
	}
	c.JSON(http.StatusOK, model.LocationUpdateResponse{
		DeviceID: update.DeviceID,
		Events:   events,
	})
}

// IngestLocation POST /devices/:id/location/async - fire-and-forget取り込み
func (h *LocationHandler) IngestLocation(c *gin.Context) {
	update, ok := bindLocationUpdate(c)
	if !ok {
		return
	}

	h.locationUseCase.IngestLocationUpdate(update)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// GetLastLocation GET /devices/:id/location - 最終位置の取得
func (h *LocationHandler) GetLastLocation(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	update, err := h.locationUseCase.GetLastLocation(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to get last location: " + err.Error(),
		})
		return
	}
	if update == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No cached location for device",
		})
		return
	}

	c.JSON(http.StatusOK, update)
}
