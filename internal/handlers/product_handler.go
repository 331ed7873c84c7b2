package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go-pos-register/internal/catalog"

	"github.com/gin-gonic/gin"
)

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true}

// GET /api/products?q=&category_id=&all=true
func (h *Handler) GetProducts(c *gin.Context) {
	categoryID, ok := queryID(c, "category_id")
	if !ok {
		h.badRequest(c, "Invalid category_id")
		return
	}
	filter := catalog.ProductFilter{
		Query:           c.Query("q"),
		CategoryID:      categoryID,
		IncludeInactive: c.Query("all") == "true",
	}
	products, err := h.Catalog.ListProducts(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) GetProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Product ID")
		return
	}
	p, err := h.Catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ScanProduct is the barcode lookup used by the cashier screen.
func (h *Handler) ScanProduct(c *gin.Context) {
	p, err := h.Catalog.FindBySKU(c.Request.Context(), c.Param("sku"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) AddProduct(c *gin.Context) {
	var in catalog.NewProduct
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "Invalid input")
		return
	}
	p, err := h.Catalog.CreateProduct(c.Request.Context(), in, currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// UpdateProduct changes anything but stock; stock goes through the stock routes.
func (h *Handler) UpdateProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Product ID")
		return
	}
	var patch catalog.ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.badRequest(c, "Invalid input")
		return
	}
	p, err := h.Catalog.UpdateProduct(c.Request.Context(), id, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DeleteProduct deactivates; sales history keeps referencing the product.
func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Product ID")
		return
	}
	if err := h.Catalog.Deactivate(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deactivated"})
}

type stockRequest struct {
	Delta    *int   `json:"delta"`
	Quantity *int   `json:"quantity"`
	Note     string `json:"note"`
}

// POST /api/products/:id/stock adjusts by delta, PUT sets an absolute count.
func (h *Handler) ChangeStock(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Product ID")
		return
	}
	var req stockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid input")
		return
	}

	ctx := c.Request.Context()
	if c.Request.Method == http.MethodPut {
		if req.Quantity == nil {
			h.badRequest(c, "quantity is required")
			return
		}
		p, err := h.Inventory.SetStock(ctx, id, *req.Quantity, req.Note, currentUser(c))
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
		return
	}

	if req.Delta == nil {
		h.badRequest(c, "delta is required")
		return
	}
	p, err := h.Inventory.AdjustStock(ctx, id, *req.Delta, req.Note, currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) GetMovements(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Product ID")
		return
	}
	moves, err := h.Inventory.Movements(c.Request.Context(), id, queryInt(c, "limit", 100))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, moves)
}

func (h *Handler) GetCategories(c *gin.Context) {
	cats, err := h.Catalog.ListCategories(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cats)
}

func (h *Handler) AddCategory(c *gin.Context) {
	var in struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "Invalid input")
		return
	}
	cat, err := h.Catalog.CreateCategory(c.Request.Context(), in.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

func (h *Handler) DeleteCategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		h.badRequest(c, "Invalid Category ID")
		return
	}
	if err := h.Catalog.DeleteCategory(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadImage stores a product picture and returns its public URL.
func (h *Handler) UploadImage(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		h.badRequest(c, "No file uploaded")
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !imageExtensions[ext] {
		h.badRequest(c, "Only image files are allowed")
		return
	}

	// e.g. "167890123_42.jpg"; the client name is never used on disk
	filename := fmt.Sprintf("%d_%s%s", time.Now().UnixNano(), strconv.FormatUint(uint64(currentUser(c)), 10), ext)
	if err := c.SaveUploadedFile(file, filepath.Join(h.UploadDir, filename)); err != nil {
		h.Log.Error().Err(err).Msg("saving upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file", "code": "internal"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "File uploaded successfully",
		"url":     strings.TrimRight(h.BaseURL, "/") + "/uploads/" + filename,
	})
}
