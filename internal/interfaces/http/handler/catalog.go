package handler

import (
	"github.com/gin-gonic/gin"

	catalogapp "github.com/selkies/backend/internal/application/catalog"
)

// CatalogHandler serves the product catalog
type CatalogHandler struct {
	BaseHandler
	catalog *catalogapp.Service
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalog *catalogapp.Service) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// RegisterRoutes registers the catalog routes
func (h *CatalogHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/catalog/products", h.ListProducts)
}

// ListProducts returns the products on sale grouped by category, optionally
// filtered by diet type and category. An outage is reported in the body with
// available=false rather than as an error.
//
//	GET /api/v1/catalog/products?diet=veg&category=Savouries
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	var filter catalogapp.ListFilter
	if !h.BindQuery(c, &filter) {
		return
	}
	resp, err := h.catalog.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
