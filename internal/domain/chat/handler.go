package chat

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/organlink/organlink/internal/domain/matching"
	"github.com/organlink/organlink/internal/platform/auth"
	"github.com/organlink/organlink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/conversations", h.Start)
	api.GET("/conversations", h.ListMine)
	api.GET("/conversations/:id", h.Get)
	api.GET("/conversations/:id/messages", h.Messages)
	api.POST("/conversations/:id/messages", h.Post)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotParticipant):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, matching.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "match not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// CallerFrom builds a Caller from the authenticated request context.
func CallerFrom(c echo.Context) Caller {
	return CallerFromContext(c.Request().Context())
}

// CallerFromContext reads the authenticated user placed on ctx by the auth
// middleware.
func CallerFromContext(ctx context.Context) Caller {
	return Caller{
		ID:    auth.UserIDFromContext(ctx),
		Staff: auth.HasRole(ctx, auth.RoleDoctor),
		Admin: auth.IsAdmin(ctx),
	}
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

type startRequest struct {
	Participants []uuid.UUID `json:"participants"`
	MatchID      *uuid.UUID  `json:"matchId"`
}

// Start answers 201 for a new conversation and 200 when the match already
// has one.
func (h *Handler) Start(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	conv, created, err := h.svc.Start(c.Request().Context(), CallerFrom(c), req.Participants, req.MatchID)
	if err != nil {
		return httpError(err)
	}
	if created {
		return c.JSON(http.StatusCreated, conv)
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *Handler) ListMine(c echo.Context) error {
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListMine(c.Request().Context(), CallerFrom(c), p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	conv, err := h.svc.Get(c.Request().Context(), CallerFrom(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *Handler) Messages(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.Messages(c.Request().Context(), CallerFrom(c), id, p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) Post(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.Post(c.Request().Context(), CallerFrom(c), id, req.Body)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, m)
}
