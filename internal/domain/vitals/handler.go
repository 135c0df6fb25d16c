package vitals

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hfm/hfm/internal/platform/api"
	"github.com/hfm/hfm/internal/platform/auth"
	"github.com/hfm/hfm/internal/platform/telemetry"
	"github.com/hfm/hfm/pkg/pagination"
)

var (
	submitters = auth.Roles(auth.RolePatient)
	readers    = auth.Roles(auth.RolePatient, auth.RoleDoctor)
)

type Handler struct {
	svc     *Service
	metrics *telemetry.Metrics
}

func NewHandler(svc *Service, metrics *telemetry.Metrics) *Handler {
	return &Handler{svc: svc, metrics: metrics}
}

func (h *Handler) RegisterRoutes(v1 *echo.Group) {
	v1.POST("/vitals", h.Submit, auth.RequireRoles(h.metrics, submitters))
	v1.GET("/vitals", h.ListMeasurements, auth.RequireRoles(h.metrics, readers))
	v1.GET("/alerts", h.ListAlerts, auth.RequireRoles(h.metrics, readers))
}

func httpError(err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Message)
	case errors.Is(err, auth.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, auth.MsgForbidden).SetInternal(err)
	}
	return err
}

func principal(c echo.Context) *auth.Principal {
	return auth.PrincipalFromContext(c.Request().Context())
}

func (h *Handler) Submit(c echo.Context) error {
	var in Submission
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.Submit(c.Request().Context(), principal(c), in)
	if err != nil {
		return httpError(err)
	}
	return api.OK(c, http.StatusCreated, res)
}

func patientParam(c echo.Context) (uuid.UUID, error) {
	raw := c.QueryParam("patientId")
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patientId")
	}
	return id, nil
}

func (h *Handler) ListMeasurements(c echo.Context) error {
	pid, err := patientParam(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMeasurements(c.Request().Context(), principal(c), pid, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return api.OK(c, http.StatusOK, pagination.NewPage(items, total, pg).WithLinks(c.Request().URL.Path, c.QueryParams()))
}

func (h *Handler) ListAlerts(c echo.Context) error {
	pid, err := patientParam(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAlerts(c.Request().Context(), principal(c), pid, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return api.OK(c, http.StatusOK, pagination.NewPage(items, total, pg).WithLinks(c.Request().URL.Path, c.QueryParams()))
}
