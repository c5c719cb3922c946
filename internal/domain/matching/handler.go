package matching

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/organlink/organlink/internal/domain/directory"
	"github.com/organlink/organlink/internal/platform/auth"
	"github.com/organlink/organlink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts POST /run-match on root and the match API on api.
func (h *Handler) RegisterRoutes(root, api *echo.Group) {
	root.POST("/run-match", h.RunMatch)

	api.GET("/matches/mine", h.ListMine)
	api.GET("/matches/:id", h.GetMatch)

	staff := api.Group("", auth.RequireRole(auth.RoleDoctor))
	staff.GET("/matches", h.ListMatches)
	staff.POST("/matches/run", h.Run)
	staff.POST("/matches/:id/approve", h.Approve)
	staff.POST("/matches/:id/reject", h.Reject)
	staff.PUT("/matches/:id/tracking", h.UpdateTracking)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "match not found")
	case errors.Is(err, directory.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "recipient not found")
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

type runMatchResponse struct {
	Success bool           `json:"success"`
	Matches []*MatchRecord `json:"matches"`
}

type runMatchError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// RunMatch keeps the {success, matches} / {success:false, error} envelope
// that existing callers of /run-match parse.
func (h *Handler) RunMatch(c echo.Context) error {
	res, err := h.svc.Run(c.Request().Context(), "http:/run-match")
	if err != nil {
		return c.JSON(http.StatusInternalServerError, runMatchError{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, runMatchResponse{Success: true, Matches: res.Matches})
}

// Run triggers a generator pass; ?recipientId limits it to one recipient.
func (h *Handler) Run(c echo.Context) error {
	ctx := c.Request().Context()
	trigger := "api:" + auth.UserIDFromContext(ctx)

	var (
		res *RunResult
		err error
	)
	if raw := c.QueryParam("recipientId"); raw != "" {
		id, perr := uuid.Parse(raw)
		if perr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid recipientId")
		}
		res, err = h.svc.RunForRecipient(ctx, trigger, id)
	} else {
		res, err = h.svc.Run(ctx, trigger)
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func parseOptionalID(c echo.Context, name string) (*uuid.UUID, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &id, nil
}

func (h *Handler) ListMatches(c echo.Context) error {
	p := pagination.FromContext(c)
	f := Filter{
		Status:     Status(c.QueryParam("status")),
		OrganType:  c.QueryParam("organType"),
		BloodGroup: c.QueryParam("bloodGroup"),
	}
	switch f.Status {
	case "", StatusPending, StatusApproved, StatusRejected:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "status must be Pending, Approved or Rejected")
	}
	var err error
	if f.DonorID, err = parseOptionalID(c, "donorId"); err != nil {
		return err
	}
	if f.RecipientID, err = parseOptionalID(c, "recipientId"); err != nil {
		return err
	}

	matches, total, err := h.svc.List(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(matches, total, p.Limit, p.Offset))
}

func (h *Handler) ListMine(c echo.Context) error {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "no directory record for caller")
	}
	p := pagination.FromContext(c)
	matches, total, err := h.svc.ForUser(c.Request().Context(), id, p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(matches, total, p.Limit, p.Offset))
}

// GetMatch is open to staff and to the two parties of the match.
func (h *Handler) GetMatch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	m, err := h.svc.Get(ctx, id)
	if err != nil {
		return httpError(err)
	}
	if !auth.HasRole(ctx, auth.RoleDoctor) {
		caller, perr := uuid.Parse(auth.UserIDFromContext(ctx))
		if perr != nil || !m.Involves(caller) {
			return echo.NewHTTPError(http.StatusForbidden, "not a party to this match")
		}
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) Approve(c echo.Context) error {
	return h.decide(c, h.svc.Approve)
}

func (h *Handler) Reject(c echo.Context) error {
	return h.decide(c, h.svc.Reject)
}

func (h *Handler) decide(c echo.Context, fn func(ctx context.Context, id uuid.UUID, by string) (*MatchRecord, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	m, err := fn(ctx, id, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) UpdateTracking(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var patch TrackingPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	m, err := h.svc.UpdateTracking(ctx, id, patch, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}
