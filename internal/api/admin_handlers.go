package api

import (
	"encoding/json"
	"net/http"

	"atelier-service/internal/service"

	"github.com/gin-gonic/gin"
)

type settingRequest struct {
	Value json.RawMessage `json:"value" binding:"required"`
}

func (h *Handler) dashboard(c *gin.Context) {
	stats, err := h.Admin.Dashboard(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, stats)
}

func (h *Handler) adminListProducts(c *gin.Context) {
	var q service.AdminProductQuery
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.Catalog.AdminListProducts(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, page)
}

func (h *Handler) adminGetProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	product, err := h.Catalog.AdminGetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, product)
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.ProductInput
	if !bindJSON(c, &req) {
		return
	}
	product, err := h.Catalog.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req service.ProductPatch
	if !bindJSON(c, &req) {
		return
	}
	product, err := h.Catalog.UpdateProduct(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}

func (h *Handler) adminListCategories(c *gin.Context) {
	categories, err := h.Catalog.ListCategories(c.Request.Context(), true)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, categories)
}

func (h *Handler) createCategory(c *gin.Context) {
	var req service.CategoryInput
	if !bindJSON(c, &req) {
		return
	}
	category, err := h.Catalog.CreateCategory(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, category)
}

func (h *Handler) updateCategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req service.CategoryPatch
	if !bindJSON(c, &req) {
		return
	}
	category, err := h.Catalog.UpdateCategory(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, category)
}

func (h *Handler) deleteCategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Catalog.DeleteCategory(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}

func (h *Handler) listUsers(c *gin.Context) {
	var q service.UserQuery
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.Admin.ListUsers(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, page)
}

func (h *Handler) updateUser(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req service.UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.Admin.UpdateUser(c.Request.Context(), actor(c), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, user)
}

func (h *Handler) deleteUser(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Admin.DeleteUser(c.Request.Context(), actor(c), id); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}

func (h *Handler) listSettings(c *gin.Context) {
	settings, err := h.Admin.ListSettings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, settings)
}

func (h *Handler) upsertSetting(c *gin.Context) {
	var req settingRequest
	if !bindJSON(c, &req) {
		return
	}
	setting, err := h.Admin.UpsertSetting(c.Request.Context(), c.Param("key"), req.Value)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, setting)
}
