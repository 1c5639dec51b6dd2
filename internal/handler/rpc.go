package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pet-care-marketplace/internal/middleware"
	"github.com/iliyamo/pet-care-marketplace/internal/repository"
)

// RPCHandler exposes stored-procedure style calls.
type RPCHandler struct {
	Admins *repository.AdminRepo
}

func NewRPCHandler(a *repository.AdminRepo) *RPCHandler { return &RPCHandler{Admins: a} }

// IsAdmin handles POST /v1/rpc/is_admin {"user_id": "..."} and answers a bare
// JSON boolean. Callers may only ask about themselves.
func (h *RPCHandler) IsAdmin(c echo.Context) error {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.Bind(&req); err != nil || req.UserID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id required"})
	}
	if req.UserID != middleware.UserID(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	uid, err := parseID(req.UserID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user_id"})
	}
	ok, err := h.Admins.IsAdmin(c.Request().Context(), uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, ok)
}
