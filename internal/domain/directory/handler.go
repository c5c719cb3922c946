package directory

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/organlink/organlink/internal/platform/auth"
	"github.com/organlink/organlink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the verbatim GET /users listing on root and the
// directory API on api. The listing is admin only; in development the dev
// auth middleware makes unauthenticated callers admins.
func (h *Handler) RegisterRoutes(root, api *echo.Group) {
	root.GET("/users", h.ListAll, auth.RequireRole(auth.RoleAdmin))

	api.GET("/users/me", h.GetMe)
	api.PUT("/users/me", h.UpdateMe)
	api.GET("/users/:id", h.GetUser)
	api.PUT("/users/:id", h.UpdateUser)

	staff := api.Group("", auth.RequireRole(auth.RoleDoctor))
	staff.GET("/users", h.ListUsers)
	staff.POST("/users/:id/verify", h.VerifyUser)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/users", h.CreateUser)
	admin.DELETE("/users/:id", h.DeleteUser)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	case errors.Is(err, ErrDuplicateEmail):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// callerID resolves the authenticated user to a directory id.
func callerID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusNotFound, "no directory record for caller")
	}
	return id, nil
}

// ListAll returns every record as stored. 500 carries {"error": ...}.
func (h *Handler) ListAll(c echo.Context) error {
	users, err := h.svc.All(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, users)
}

func (h *Handler) ListUsers(c echo.Context) error {
	p := pagination.FromContext(c)
	f := Filter{
		Role:       c.QueryParam("role"),
		BloodGroup: c.QueryParam("bloodGroup"),
		OrganType:  c.QueryParam("organType"),
		Query:      c.QueryParam("q"),
	}
	if v := c.QueryParam("verified"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "verified must be true or false")
		}
		f.Verified = &b
	}
	users, total, err := h.svc.List(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, p.Limit, p.Offset))
}

func (h *Handler) CreateUser(c echo.Context) error {
	var u UserRecord
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u.ID = uuid.Nil
	if err := h.svc.Create(c.Request().Context(), &u); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) GetMe(c echo.Context) error {
	id, err := callerID(c)
	if err != nil {
		return err
	}
	u, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdateMe(c echo.Context) error {
	id, err := callerID(c)
	if err != nil {
		return err
	}
	var p Patch
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.Update(c.Request().Context(), id, p, auth.IsAdmin(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

// canAccess lets doctors and admins see any record and everyone else only
// their own.
func canAccess(c echo.Context, id uuid.UUID) bool {
	ctx := c.Request().Context()
	return auth.HasRole(ctx, auth.RoleDoctor) || auth.UserIDFromContext(ctx) == id.String()
}

func (h *Handler) GetUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if !canAccess(c, id) {
		return echo.NewHTTPError(http.StatusForbidden, "not your record")
	}
	u, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdateUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	admin := auth.IsAdmin(ctx)
	if !admin && auth.UserIDFromContext(ctx) != id.String() {
		return echo.NewHTTPError(http.StatusForbidden, "not your record")
	}
	var p Patch
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.Update(ctx, id, p, admin)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) VerifyUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	body := struct {
		Verified *bool `json:"verified"`
	}{}
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	verified := true
	if body.Verified != nil {
		verified = *body.Verified
	}
	u, err := h.svc.SetVerified(c.Request().Context(), id, verified)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) DeleteUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
