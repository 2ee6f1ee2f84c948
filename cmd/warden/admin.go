package main

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/guildwarden/warden/automod/admin"
	"github.com/guildwarden/warden/automod/auditlog"
	"github.com/guildwarden/warden/automod/settings"
	"github.com/guildwarden/warden/automod/verdict"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
)

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

type adminAPI struct {
	svc    *admin.Service
	logger *slog.Logger
}

// Builds the HTTP router for health checks and the admin API. Admin routes require HTTP Basic auth with username "admin"; if password is empty they are not mounted at all.
func newRouter(svc *admin.Service, password string, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		errorHandler(logger, err, c)
	}

	e.GET("/_health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "warden"})
	})

	if password == "" {
		logger.Warn("no admin password configured, admin API disabled")
		return e
	}
	api := &adminAPI{svc: svc, logger: logger}
	g := e.Group("/admin", adminAuthMiddleware(password, logger))
	g.GET("/workspaces/:ws", api.getSettings)
	g.POST("/workspaces/:ws/enable", api.enable)
	g.POST("/workspaces/:ws/disable", api.disable)
	g.PUT("/workspaces/:ws/rule-actions", api.configureRuleAction)
	g.PUT("/workspaces/:ws/ignored-channels", api.setIgnoredChannel)
	g.PUT("/workspaces/:ws/ignored-roles", api.setIgnoredRole)
	g.PUT("/workspaces/:ws/prompt", api.setPrompt)
	g.PUT("/workspaces/:ws/log-channels/:type", api.setLogChannel)
	g.GET("/workspaces/:ws/violations", api.listViolations)
	g.GET("/workspaces/:ws/actions", api.listActions)
	g.POST("/workspaces/:ws/actions", api.recordAction)
	g.GET("/workspaces/:ws/stats", api.getStats)
	g.GET("/workspaces/:ws/members/:user", api.getMember)
	g.DELETE("/workspaces/:ws/members/:user/flags/:flag", api.clearMemberFlag)
	return e
}

func adminAuthMiddleware(password string, logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.BasicAuthWithConfig(middleware.BasicAuthConfig{
		Validator: func(username, pw string, c echo.Context) (bool, error) {
			// "Be careful to use constant time comparison to prevent timing attacks"
			if subtle.ConstantTimeCompare([]byte(username), []byte("admin")) == 1 &&
				subtle.ConstantTimeCompare([]byte(pw), []byte(password)) == 1 {
				return true, nil
			}
			logger.Warn("admin auth failed", "username", username)
			return false, nil
		},
		Realm: "warden",
	})
}

// configuration errors are the caller's fault; everything else is ours
func errorHandler(logger *slog.Logger, err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := "internal error"
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		code = he.Code
		msg = fmt.Sprint(he.Message)
	case errors.Is(err, settings.ErrInvalidConfig):
		code = http.StatusBadRequest
		msg = err.Error()
	case errors.Is(err, settings.ErrNotFound):
		code = http.StatusNotFound
		msg = err.Error()
	}
	if code >= 500 {
		logger.Warn("warden-http-internal-error", "err", err)
	}
	if c.Response().Committed {
		return
	}
	c.JSON(code, GenericStatus{Status: "error", Daemon: "warden", Message: msg})
}

func badRequest(err error) error {
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func (a *adminAPI) getSettings(c echo.Context) error {
	ms, err := a.svc.Settings(c.Request().Context(), c.Param("ws"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ms)
}

type enableRequest struct {
	Rules []string `json:"rules"`
	By    string   `json:"by"`
}

func (a *adminAPI) enable(c echo.Context) error {
	var req enableRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	ms, err := a.svc.Enable(c.Request().Context(), c.Param("ws"), req.Rules, req.By)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ms)
}

func (a *adminAPI) disable(c echo.Context) error {
	var req enableRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	ms, err := a.svc.Disable(c.Request().Context(), c.Param("ws"), req.By)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ms)
}

type ruleActionRequest struct {
	Rule   string         `json:"rule"`
	Action verdict.Action `json:"action"`
}

func (a *adminAPI) configureRuleAction(c echo.Context) error {
	var req ruleActionRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	ms, err := a.svc.ConfigureRuleAction(c.Request().Context(), c.Param("ws"), req.Rule, req.Action)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ms)
}

type ignoreRequest struct {
	ChannelID string `json:"channelId"`
	RoleID    string `json:"roleId"`
	Ignored   bool   `json:"ignored"`
}

func (a *adminAPI) setIgnoredChannel(c echo.Context) error {
	var req ignoreRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	ms, err := a.svc.SetIgnoredChannel(c.Request().Context(), c.Param("ws"), req.ChannelID, req.Ignored)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ms)
}

func (a *adminAPI) setIgnoredRole(c echo.Context) error {
	var req ignoreRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	ms, err := a.svc.SetIgnoredRole(c.Request().Context(), c.Param("ws"), req.RoleID, req.Ignored)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ms)
}

type promptRequest struct {
	Template string `json:"template"`
}

func (a *adminAPI) setPrompt(c echo.Context) error {
	var req promptRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	ms, err := a.svc.SetPromptTemplate(c.Request().Context(), c.Param("ws"), req.Template)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ms)
}

type logChannelRequest struct {
	ChannelID string `json:"channelId"`
	Enabled   bool   `json:"enabled"`
}

func (a *adminAPI) setLogChannel(c echo.Context) error {
	var req logChannelRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	ms, err := a.svc.SetLogChannel(c.Request().Context(), c.Param("ws"), c.Param("type"), req.ChannelID, req.Enabled)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ms)
}

func queryFilter(c echo.Context) (auditlog.Filter, int, error) {
	f := auditlog.Filter{UserID: c.QueryParam("user")}
	if raw := c.QueryParam("action"); raw != "" {
		a, err := verdict.ParseManualAction(raw)
		if err != nil {
			return f, 0, badRequest(err)
		}
		f.Action = a
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, 0, badRequest(fmt.Errorf("invalid limit: %q", raw))
		}
		limit = n
	}
	return f, limit, nil
}

func (a *adminAPI) listViolations(c echo.Context) error {
	f, limit, err := queryFilter(c)
	if err != nil {
		return err
	}
	out, err := a.svc.Violations(c.Request().Context(), c.Param("ws"), f, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (a *adminAPI) listActions(c echo.Context) error {
	f, limit, err := queryFilter(c)
	if err != nil {
		return err
	}
	out, err := a.svc.Actions(c.Request().Context(), c.Param("ws"), f, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

type manualActionRequest struct {
	TargetUserID    string         `json:"targetUserId"`
	ModeratorID     string         `json:"moderatorId"`
	Action          verdict.Action `json:"action"`
	Reason          string         `json:"reason"`
	DurationMinutes *int           `json:"durationMinutes"`
	Count           *int           `json:"count"`
}

func (a *adminAPI) recordAction(c echo.Context) error {
	var req manualActionRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	entry := &auditlog.ModerationActionLogEntry{
		WorkspaceID:     c.Param("ws"),
		TargetUserID:    req.TargetUserID,
		ModeratorID:     req.ModeratorID,
		Action:          req.Action,
		Reason:          req.Reason,
		DurationMinutes: req.DurationMinutes,
		Count:           req.Count,
	}
	if err := a.svc.RecordManualAction(c.Request().Context(), entry); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, entry)
}

func (a *adminAPI) getStats(c echo.Context) error {
	st, err := a.svc.Stats(c.Request().Context(), c.Param("ws"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (a *adminAPI) getMember(c echo.Context) error {
	rep, err := a.svc.Member(c.Request().Context(), c.Param("ws"), c.Param("user"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

func (a *adminAPI) clearMemberFlag(c echo.Context) error {
	ctx := c.Request().Context()
	if err := a.svc.ClearMemberFlags(ctx, c.Param("ws"), c.Param("user"), []string{c.Param("flag")}); err != nil {
		return err
	}
	rep, err := a.svc.Member(ctx, c.Param("ws"), c.Param("user"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}
