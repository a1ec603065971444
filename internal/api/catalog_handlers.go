package api

import (
	"net/http"

	"atelier-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listProducts(c *gin.Context) {
	var q service.ProductQuery
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.Catalog.ListProducts(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, page)
}

// curatedProducts serves the cached featured, new and sale lists
func (h *Handler) curatedProducts(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		products, err := h.Catalog.Curated(c.Request.Context(), kind, queryInt(c, "limit"))
		if err != nil {
			respondError(c, err)
			return
		}
		respond(c, http.StatusOK, products)
	}
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.Catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, product)
}

func (h *Handler) addReview(c *gin.Context) {
	var req service.ReviewInput
	if !bindJSON(c, &req) {
		return
	}
	review, err := h.Catalog.AddReview(c.Request.Context(), actor(c).UserID, c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, review)
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.Catalog.ListCategories(c.Request.Context(), false)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, categories)
}

func (h *Handler) categoryTree(c *gin.Context) {
	tree, err := h.Catalog.CategoryTree(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, tree)
}

func (h *Handler) getCategory(c *gin.Context) {
	category, err := h.Catalog.GetCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, category)
}
