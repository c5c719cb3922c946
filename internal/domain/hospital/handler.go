package hospital

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

// RegisterRoutes expects api to sit behind the auth middleware: every
// authenticated role may read, only admins write.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/hospitals", h.ListHospitals)
	api.GET("/hospitals/:id", h.GetHospital)
	api.GET("/hospitals/:id/departments", h.ListDepartments)
	api.GET("/departments/:id", h.GetDepartment)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	writeGroup.POST("/hospitals", h.CreateHospital)
	writeGroup.PUT("/hospitals/:id", h.UpdateHospital)
	writeGroup.DELETE("/hospitals/:id", h.DeleteHospital)
	writeGroup.POST("/hospitals/:id/departments", h.CreateDepartment)
	writeGroup.PUT("/departments/:id", h.UpdateDepartment)
	writeGroup.DELETE("/departments/:id", h.DeleteDepartment)
}

func httpError(err error, what string) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, what+" not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func paramID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Hospital Handlers --

func (h *Handler) CreateHospital(c echo.Context) error {
	var hosp Hospital
	if err := c.Bind(&hosp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	hosp.ID = uuid.Nil
	if err := h.svc.CreateHospital(c.Request().Context(), &hosp); err != nil {
		return httpError(err, "hospital")
	}
	return c.JSON(http.StatusCreated, hosp)
}

func (h *Handler) GetHospital(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	hosp, err := h.svc.GetHospital(c.Request().Context(), id)
	if err != nil {
		return httpError(err, "hospital")
	}
	return c.JSON(http.StatusOK, hosp)
}

func (h *Handler) ListHospitals(c echo.Context) error {
	p := pagination.FromContext(c)
	f := Filter{Query: c.QueryParam("q"), City: c.QueryParam("city")}
	if v := c.QueryParam("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "active must be true or false")
		}
		f.ActiveOnly = active
	}
	hospitals, total, err := h.svc.ListHospitals(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return httpError(err, "hospital")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(hospitals, total, p.Limit, p.Offset))
}

// UpdateHospital decodes the body over the stored record, so omitted fields
// keep their values.
func (h *Handler) UpdateHospital(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	hosp, err := h.svc.GetHospital(ctx, id)
	if err != nil {
		return httpError(err, "hospital")
	}
	if err := c.Bind(hosp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	hosp.ID = id
	if err := h.svc.UpdateHospital(ctx, hosp); err != nil {
		return httpError(err, "hospital")
	}
	return c.JSON(http.StatusOK, hosp)
}

func (h *Handler) DeleteHospital(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteHospital(c.Request().Context(), id); err != nil {
		return httpError(err, "hospital")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Department Handlers --

func (h *Handler) CreateDepartment(c echo.Context) error {
	hospitalID, err := paramID(c)
	if err != nil {
		return err
	}
	var dept Department
	if err := c.Bind(&dept); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	dept.ID = uuid.Nil
	dept.HospitalID = hospitalID
	if err := h.svc.CreateDepartment(c.Request().Context(), &dept); err != nil {
		return httpError(err, "hospital")
	}
	return c.JSON(http.StatusCreated, dept)
}

func (h *Handler) GetDepartment(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	dept, err := h.svc.GetDepartment(c.Request().Context(), id)
	if err != nil {
		return httpError(err, "department")
	}
	return c.JSON(http.StatusOK, dept)
}

func (h *Handler) ListDepartments(c echo.Context) error {
	hospitalID, err := paramID(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	depts, total, err := h.svc.ListDepartments(c.Request().Context(), hospitalID, p.Limit, p.Offset)
	if err != nil {
		return httpError(err, "department")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(depts, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateDepartment(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	dept, err := h.svc.GetDepartment(ctx, id)
	if err != nil {
		return httpError(err, "department")
	}
	hospitalID := dept.HospitalID
	if err := c.Bind(dept); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	dept.ID, dept.HospitalID = id, hospitalID
	if err := h.svc.UpdateDepartment(ctx, dept); err != nil {
		return httpError(err, "department")
	}
	return c.JSON(http.StatusOK, dept)
}

func (h *Handler) DeleteDepartment(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDepartment(c.Request().Context(), id); err != nil {
		return httpError(err, "department")
	}
	return c.NoContent(http.StatusNoContent)
}
