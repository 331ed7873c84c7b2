package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go-pos-register/internal/auth"
	"go-pos-register/internal/catalog"
	"go-pos-register/internal/checkout"
	"go-pos-register/internal/errs"
	"go-pos-register/internal/heldorder"
	"go-pos-register/internal/inventory"
	"go-pos-register/internal/middleware"
	"go-pos-register/internal/shift"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Assistant answers admin questions; *ai.Agent implements it.
type Assistant interface {
	Ask(ctx context.Context, message string, actorID uint) (string, error)
}

// Deps wires the handlers to the register services.
type Deps struct {
	DB        *gorm.DB
	Users     *auth.Users
	Tokens    *auth.TokenManager
	Catalog   *catalog.Service
	Inventory *inventory.Ledger
	Checkout  *checkout.Engine
	Shifts    *shift.Manager
	Held      *heldorder.Store
	Assistant Assistant // nil when no API key is configured
	UploadDir string
	BaseURL   string
	Log       zerolog.Logger
}

type Handler struct {
	Deps
}

func New(deps Deps) *Handler {
	if deps.UploadDir == "" {
		deps.UploadDir = "./uploads"
	}
	if deps.BaseURL == "" {
		deps.BaseURL = "http://localhost:8080"
	}
	return &Handler{Deps: deps}
}

// respondError turns a core error into the JSON error body.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	body := gin.H{"error": err.Error(), "code": kind, "retryable": errs.Retryable(err)}

	status := http.StatusInternalServerError
	switch kind {
	case errs.KindValidation:
		status = http.StatusBadRequest
		var v *errs.ValidationError
		if errors.As(err, &v) && v.Field != "" {
			body["field"] = v.Field
		}
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindInsufficientStock:
		status = http.StatusConflict
		var s *errs.InsufficientStockError
		if errors.As(err, &s) {
			body["product_id"] = s.ProductID
			body["product_name"] = s.ProductName
			body["requested"] = s.Requested
			body["available"] = s.Available
		}
	case errs.KindRegisterInUse:
		status = http.StatusConflict
		var r *errs.RegisterInUseError
		if errors.As(err, &r) {
			body["shift_id"] = r.ShiftID
			body["holder_id"] = r.HolderID
			body["holder_name"] = r.HolderName
		}
	case errs.KindConflict:
		status = http.StatusConflict
	case errs.KindUnauthorized:
		status = http.StatusForbidden
	case errs.KindLockTimeout:
		status = http.StatusServiceUnavailable
		c.Header("Retry-After", "1")
		body["error"] = "the register is busy, please retry"
	case errs.KindTransactionFailed:
		body["error"] = "the transaction could not be completed, please retry"
	default:
		body["error"] = "internal error"
		body["code"] = "internal"
	}

	if status >= http.StatusInternalServerError {
		h.Log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, body)
}

func (h *Handler) badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": errs.KindValidation, "retryable": false})
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func currentUser(c *gin.Context) uint {
	id, _ := middleware.UserID(c)
	return id
}

// queryID reads an optional id filter. Absent means 0 (no filter); anything
// that is not a non-negative integer is rejected.
func queryID(c *gin.Context, name string) (uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}
