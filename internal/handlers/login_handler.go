package handlers

import (
	"net/http"

	"go-pos-register/internal/errs"

	"github.com/gin-gonic/gin"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

func (h *Handler) Login(c *gin.Context) {
	var input LoginRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, "username and password are required")
		return
	}

	user, err := h.Users.Authenticate(c.Request.Context(), input.Username, input.Password)
	if errs.KindOf(err) == errs.KindUnauthorized {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials", "code": "unauthenticated"})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	token, expires, err := h.Tokens.Generate(user.ID, user.Username, user.Role)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expires,
		"user_id":    user.ID,
		"role":       user.Role,
		"username":   user.Username,
	})
}

// Register is only routed when ALLOW_REGISTRATION is set. The role field is
// ignored here; the first account becomes admin, the rest cashiers.
func (h *Handler) Register(c *gin.Context) {
	var input RegisterRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, "username and password are required")
		return
	}

	user, err := h.Users.Register(c.Request.Context(), input.Username, input.Password, "")
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// CreateUser lets an admin add staff with an explicit role.
func (h *Handler) CreateUser(c *gin.Context) {
	var input RegisterRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, "username and password are required")
		return
	}

	user, err := h.Users.Register(c.Request.Context(), input.Username, input.Password, input.Role)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}
