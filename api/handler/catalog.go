package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/hustle/internal/catalog"
)

type CatalogHandler struct {
	baseHandler
	catalog *catalog.Catalog
}

func NewCatalogHandler(c *catalog.Catalog, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		baseHandler: newBaseHandler(nil, logger),
		catalog:     c,
	}
}

// @Summary Suggested colleges
// @Tags catalog
// @Param grouped query bool false "return the regional groups"
// @Router /api/v1/colleges [get]
func (h *CatalogHandler) Colleges(ctx *fasthttp.RequestCtx) {
	if ctx.QueryArgs().GetBool("grouped") {
		h.respondSuccess(ctx, http.StatusOK, h.catalog.Groups)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, h.catalog.Names())
}
