package places

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/deepmed-api/internal/handler"
	"github.com/jwalitptl/deepmed-api/internal/model"
	"github.com/jwalitptl/deepmed-api/internal/service/places"
)

const (
	msgRoot       = "Places API root. Use POST /api/places/nearby-free for Overpass lookup."
	msgDeprecated = "Deprecated. Use /api/places/nearby-free (POST) for Overpass queries."
	msgLookup     = "Failed to fetch nearby places from Overpass API"
)

// Service runs validated nearby lookups.
type Service interface {
	Nearby(ctx context.Context, q model.NearbyQuery) (*model.NearbyResponse, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	p := r.Group("/places")
	{
		p.GET("", h.Root)
		p.POST("/nearby", h.Deprecated)
		p.POST("/nearby-free", h.NearbyFree)
	}
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": msgRoot})
}

func (h *Handler) Deprecated(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, handler.NewErrorResponse(c, msgDeprecated))
}

// NearbyFree looks up hospitals and pharmacies around the posted point.
func (h *Handler) NearbyFree(c *gin.Context) {
	var req model.NearbyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondWithBindError(c, err, places.MsgMissingCoordinates)
		return
	}

	q, err := places.ParseRequest(req)
	if err != nil {
		handler.RespondWithAppError(c, err, http.StatusBadRequest, places.MsgInvalidCoordinates)
		return
	}

	resp, err := h.service.Nearby(c.Request.Context(), q)
	if err != nil {
		handler.RespondWithError(c, http.StatusInternalServerError, msgLookup, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
