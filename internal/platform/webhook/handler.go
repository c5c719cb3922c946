package webhook

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/organlink/organlink/internal/platform/auth"
	"github.com/organlink/organlink/pkg/pagination"
)

type Handler struct {
	m *Manager
}

func NewHandler(m *Manager) *Handler {
	return &Handler{m: m}
}

// RegisterRoutes mounts the admin API. g must already be restricted to admins.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/webhooks", h.Create)
	g.GET("/webhooks", h.List)
	g.GET("/webhooks/:id", h.Get)
	g.DELETE("/webhooks/:id", h.Delete)
	g.POST("/webhooks/:id/pause", h.Pause)
	g.POST("/webhooks/:id/resume", h.Resume)
	g.POST("/webhooks/:id/test", h.Test)
	g.GET("/webhooks/:id/deliveries", h.Deliveries)
}

type createRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "webhook endpoint not found")
	case errors.Is(err, ErrInvalidURL), errors.Is(err, ErrInvalidPattern):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "webhook store unavailable")
	}
}

func paramID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// Create responds with the signing secret; later reads never include it.
func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	ep, err := h.m.Register(ctx, req.URL, req.Events, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, ep)
}

func (h *Handler) List(c echo.Context) error {
	eps, err := h.m.List(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	out := make([]*Endpoint, len(eps))
	for i, ep := range eps {
		out[i] = ep.Redacted()
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	ep, err := h.m.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ep.Redacted())
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	if err := h.m.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Pause(c echo.Context) error {
	return h.setActive(c, false)
}

func (h *Handler) Resume(c echo.Context) error {
	return h.setActive(c, true)
}

func (h *Handler) setActive(c echo.Context, active bool) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	ep, err := h.m.SetActive(c.Request().Context(), id, active)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ep.Redacted())
}

func (h *Handler) Test(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	d, err := h.m.Test(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Deliveries(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.m.Deliveries(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
