package patient

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/deepmed-api/internal/handler"
	"github.com/jwalitptl/deepmed-api/internal/middleware"
	"github.com/jwalitptl/deepmed-api/internal/model"
	"github.com/jwalitptl/deepmed-api/internal/service/patient"
	"github.com/jwalitptl/deepmed-api/pkg/httputil"
)

const (
	msgPredictionFailed = "Prediction failed"
	msgHistoryFailed    = "Failed to fetch history"
	msgListFailed       = "Failed to list patients"
	msgDeleteFailed     = "Failed to delete patient"
)

// Service is the patient workflow the handler drives.
type Service interface {
	Submit(ctx context.Context, req model.PredictRequest) (*patient.Result, error)
	History(ctx context.Context, name, phone string) ([]*model.PatientRecord, error)
	List(ctx context.Context, p model.Pagination) ([]*model.PatientRecord, int, error)
	Delete(ctx context.Context, phone, deletedBy string) error
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the public patient routes. limit, when given, guards
// the predict route.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, limit ...gin.HandlerFunc) {
	patients := r.Group("/patients")
	{
		patients.POST("/predict", append(limit, h.Predict)...)
		patients.GET("/history", h.History)
	}
}

func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.GET("", h.List)
		patients.DELETE("/:phone", h.Delete)
	}
}

// Predict stores the submission and answers with its prediction.
func (h *Handler) Predict(c *gin.Context) {
	var req model.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondWithBindError(c, err, patient.MsgFieldsRequired)
		return
	}

	result, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		handler.RespondWithAppError(c, err, http.StatusInternalServerError, msgPredictionFailed)
		return
	}

	c.Header(middleware.HeaderPredictionSource, result.Source)
	c.JSON(http.StatusOK, result.Prediction)
}

func (h *Handler) History(c *gin.Context) {
	var q model.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		handler.RespondWithError(c, http.StatusBadRequest, patient.MsgHistoryRequired, err)
		return
	}

	records, err := h.service.History(c.Request.Context(), q.Name, q.Phone)
	if err != nil {
		handler.RespondWithAppError(c, err, http.StatusInternalServerError, msgHistoryFailed)
		return
	}

	c.JSON(http.StatusOK, records)
}

func (h *Handler) List(c *gin.Context) {
	var p model.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		handler.RespondWithError(c, http.StatusBadRequest, "page and page_size must be numbers", err)
		return
	}
	p.Normalize()

	records, total, err := h.service.List(c.Request.Context(), p)
	if err != nil {
		handler.RespondWithAppError(c, err, http.StatusInternalServerError, msgListFailed)
		return
	}

	httputil.RespondWithPagination(c, records, p.Page, p.PageSize, total)
}

func (h *Handler) Delete(c *gin.Context) {
	phone := c.Param("phone")
	if err := h.service.Delete(c.Request.Context(), phone, c.GetString(middleware.ContextAdminSubject)); err != nil {
		handler.RespondWithAppError(c, err, http.StatusInternalServerError, msgDeleteFailed)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Patient deleted", "phone": phone})
}
