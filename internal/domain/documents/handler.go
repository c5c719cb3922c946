package documents

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/organlink/organlink/internal/platform/auth"
	"github.com/organlink/organlink/internal/platform/blobstore"
	"github.com/organlink/organlink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/documents", h.Upload)
	api.GET("/documents/mine", h.ListMine)
	api.GET("/documents/:id", h.Get)
	api.GET("/documents/:id/content", h.Download)
	api.DELETE("/documents/:id", h.Delete)

	staff := api.Group("", auth.RequireRole(auth.RoleDoctor))
	staff.GET("/documents", h.List)
	staff.POST("/documents/:id/review", h.Review)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyReviewed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func callerID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusNotFound, "no directory record for caller")
	}
	return id, nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// load fetches the document and checks that the caller owns it or is staff.
func (h *Handler) load(c echo.Context) (*Document, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return nil, httpError(err)
	}
	ctx := c.Request().Context()
	if !auth.HasRole(ctx, auth.RoleDoctor) && auth.UserIDFromContext(ctx) != d.OwnerID.String() {
		return nil, echo.NewHTTPError(http.StatusForbidden, "not your document")
	}
	return d, nil
}

// Upload takes a multipart form with "file" and an optional "kind".
func (h *Handler) Upload(c echo.Context) error {
	owner, err := callerID(c)
	if err != nil {
		return err
	}
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file")
	}
	defer src.Close()

	d, err := h.svc.Upload(c.Request().Context(), owner, c.FormValue("kind"), file.Filename, file.Header.Get("Content-Type"), src)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) ListMine(c echo.Context) error {
	owner, err := callerID(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListMine(c.Request().Context(), owner, p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

// List returns documents by status, pending unless ?status says otherwise.
func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListByStatus(c.Request().Context(), c.QueryParam("status"), p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	d, err := h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Download(c echo.Context) error {
	d, err := h.load(c)
	if err != nil {
		return err
	}
	_, rc, err := h.svc.Open(c.Request().Context(), d.ID)
	if err != nil {
		return httpError(err)
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, d.FileName))
	return c.Stream(http.StatusOK, d.ContentType, rc)
}

type reviewRequest struct {
	Decision string `json:"decision"`
	Note     string `json:"note"`
}

func (h *Handler) Review(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var approve bool
	switch req.Decision {
	case "approve", StatusApproved:
		approve = true
	case "reject", StatusRejected:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "decision must be approve or reject")
	}

	var reviewer *uuid.UUID
	if rid, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context())); err == nil {
		reviewer = &rid
	}
	d, err := h.svc.Review(c.Request().Context(), id, approve, reviewer, req.Note)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

// Delete lets owners withdraw a pending document. Admins may delete any.
func (h *Handler) Delete(c echo.Context) error {
	d, err := h.load(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if !auth.IsAdmin(ctx) {
		if auth.UserIDFromContext(ctx) != d.OwnerID.String() {
			return echo.NewHTTPError(http.StatusForbidden, "not your document")
		}
		if d.Status != StatusPending {
			return echo.NewHTTPError(http.StatusConflict, "reviewed documents cannot be withdrawn")
		}
	}
	if err := h.svc.Delete(ctx, d.ID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
