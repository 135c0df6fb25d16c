package facility

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
	userAdmins  = auth.Roles(auth.RoleSuperAdmin, auth.RoleMOHAdmin, auth.RoleHospitalAdmin, auth.RoleRegionAdmin)
	globalAdmin = auth.Roles(auth.RoleSuperAdmin, auth.RoleMOHAdmin)
	orgAdmins   = auth.Roles(auth.RoleSuperAdmin, auth.RoleMOHAdmin, auth.RoleRegionAdmin)
)

type Handler struct {
	svc     *Service
	metrics *telemetry.Metrics
}

func NewHandler(svc *Service, metrics *telemetry.Metrics) *Handler {
	return &Handler{svc: svc, metrics: metrics}
}

func (h *Handler) RegisterRoutes(v1 *echo.Group) {
	admin := v1.Group("/admin")

	users := admin.Group("/users", auth.RequireRoles(h.metrics, userAdmins))
	users.POST("", h.CreateUser)
	users.GET("", h.ListUsers)
	users.GET("/:id", h.GetUser)

	admin.PATCH("/users/:id/active", h.SetActive, auth.RequireRoles(h.metrics, globalAdmin))

	orgs := admin.Group("", auth.RequireRoles(h.metrics, orgAdmins))
	orgs.POST("/hospitals", h.CreateHospital)
	orgs.GET("/hospitals", h.ListHospitals)
	orgs.POST("/pharmacies", h.CreatePharmacy)
	orgs.GET("/pharmacies", h.ListPharmacies)
}

// httpError maps service errors to responses. Anything unrecognised is
// returned as-is and rendered as a 500.
func httpError(err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Message)
	case errors.Is(err, auth.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, auth.MsgForbidden).SetInternal(err)
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "email already registered")
	}
	return err
}

func principal(c echo.Context) *auth.Principal {
	return auth.PrincipalFromContext(c.Request().Context())
}

func (h *Handler) CreateUser(c echo.Context) error {
	var in NewUser
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, err := h.svc.CreateUser(c.Request().Context(), principal(c), in)
	if err != nil {
		return httpError(err)
	}
	return api.OK(c, http.StatusCreated, u)
}

func (h *Handler) GetUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.svc.GetUser(c.Request().Context(), principal(c), id)
	if err != nil {
		return httpError(err)
	}
	return api.OK(c, http.StatusOK, u)
}

func (h *Handler) ListUsers(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f UserFilter
	if r := c.QueryParam("role"); r != "" {
		role, err := auth.ParseRole(r)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown role")
		}
		f.Role = role
	}
	if hid := c.QueryParam("hospitalId"); hid != "" {
		id, err := uuid.Parse(hid)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid hospitalId")
		}
		f.HospitalID = id
	}
	f.Region = c.QueryParam("region")

	users, total, err := h.svc.ListUsers(c.Request().Context(), principal(c), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return api.OK(c, http.StatusOK, pagination.NewPage(users, total, pg).WithLinks(c.Request().URL.Path, c.QueryParams()))
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

func (h *Handler) SetActive(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req setActiveRequest
	if err := c.Bind(&req); err != nil || req.Active == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "active is required")
	}
	u, err := h.svc.SetActive(c.Request().Context(), principal(c), id, *req.Active)
	if err != nil {
		return httpError(err)
	}
	return api.OK(c, http.StatusOK, u)
}

func (h *Handler) CreateHospital(c echo.Context) error {
	var in Hospital
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	in.ID = uuid.Nil
	if err := h.svc.CreateHospital(c.Request().Context(), principal(c), &in); err != nil {
		return httpError(err)
	}
	return api.OK(c, http.StatusCreated, in)
}

func (h *Handler) ListHospitals(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListHospitals(c.Request().Context(), principal(c), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return api.OK(c, http.StatusOK, pagination.NewPage(items, total, pg))
}

func (h *Handler) CreatePharmacy(c echo.Context) error {
	var in Pharmacy
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	in.ID = uuid.Nil
	if err := h.svc.CreatePharmacy(c.Request().Context(), principal(c), &in); err != nil {
		return httpError(err)
	}
	return api.OK(c, http.StatusCreated, in)
}

func (h *Handler) ListPharmacies(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPharmacies(c.Request().Context(), principal(c), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return api.OK(c, http.StatusOK, pagination.NewPage(items, total, pg))
}
