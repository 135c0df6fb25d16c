package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hfm/hfm/internal/platform/api"
	"github.com/hfm/hfm/internal/platform/telemetry"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Handler serves the session endpoints.
type Handler struct {
	sessions *SessionService
	metrics  *telemetry.Metrics
	logger   zerolog.Logger
}

func NewHandler(sessions *SessionService, metrics *telemetry.Metrics, logger zerolog.Logger) *Handler {
	return &Handler{sessions: sessions, metrics: metrics, logger: logger}
}

// RegisterRoutes mounts /auth under v1. login and refresh are public (see
// AuthSkipper); logout and me need an access token.
func (h *Handler) RegisterRoutes(v1 *echo.Group) {
	g := v1.Group("/auth")
	g.POST("/login", h.Login)
	g.POST("/refresh", h.Refresh)

	authed := g.Group("", RequireRoles(h.metrics, Roles(AllRoles()...)))
	authed.POST("/logout", h.Logout)
	authed.GET("/me", h.Me)
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sess, err := h.sessions.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.metrics.AuthFailed(failureReason(ErrInvalidCredentials))
			h.logger.Warn().Err(err).Str("remote_ip", c.RealIP()).Msg("login rejected")
			return echo.NewHTTPError(http.StatusUnauthorized, MsgInvalidCredentials).SetInternal(err)
		}
		return err
	}
	return api.OK(c, http.StatusOK, sess)
}

func (h *Handler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.RefreshToken == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, MsgAccessTokenRequired)
	}
	sess, err := h.sessions.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		if IsSessionError(err) {
			h.metrics.AuthFailed(failureReason(err))
			h.logger.Warn().Err(err).Str("remote_ip", c.RealIP()).Msg("refresh rejected")
			return echo.NewHTTPError(http.StatusUnauthorized, MsgInvalidToken).SetInternal(err)
		}
		return err
	}
	return api.OK(c, http.StatusOK, sess)
}

func (h *Handler) Logout(c echo.Context) error {
	var req refreshRequest
	_ = c.Bind(&req)

	ctx := c.Request().Context()
	if err := h.sessions.Logout(ctx, ClaimsFromContext(ctx), req.RefreshToken); err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return echo.NewHTTPError(http.StatusBadRequest, "refresh token does not belong to this session")
		}
		return err
	}
	return api.OK(c, http.StatusOK, map[string]bool{"revoked": h.sessions.DenylistEnabled()})
}

func (h *Handler) Me(c echo.Context) error {
	return api.OK(c, http.StatusOK, PrincipalFromContext(c.Request().Context()))
}
