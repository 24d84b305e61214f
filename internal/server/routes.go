package server

import (
	"context"
	"net/http"
	"time"

	gate "github.com/agroconnect/gate-go"
	"github.com/agroconnect/gate-go/middleware/ginmw"
	"github.com/agroconnect/gate-go/profile"
	"github.com/agroconnect/gate-go/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	farmers      = []gate.Role{gate.RoleFarmer}
	buyers       = []gate.Role{gate.RoleBuyer}
	transporters = []gate.Role{gate.RoleTransporter}
)

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(ginmw.RequestID())
	router.Use(accessLog(s.logger.Named("http")))
	if s.config.Limit.Enabled {
		router.Use(rateLimit(s.config.Limit.RPS, s.config.Limit.Burst))
	}

	router.GET("/health", s.health)
	router.GET("/ready", s.ready)
	if s.config.Metrics.Enabled {
		router.GET(s.config.Metrics.Path, gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	pages := router.Group("")
	pages.Use(ginmw.Session(meteredSource{store: s.store, metrics: s.metrics}, ginmw.WithLogger(s.logger)))

	loginPath := s.guard.LoginPath()
	pages.GET(loginPath, s.loginPage)
	pages.POST(loginPath, s.login)
	pages.POST("/logout", s.logout)
	pages.GET("/logout", s.logout)

	mwOpts := []ginmw.Option{ginmw.WithLogger(s.logger)}
	profileGate := func(roles []gate.Role) gin.HandlerFunc {
		return ginmw.RequireProfile(s.guard, roles, mwOpts...)
	}
	roleGate := func(roles []gate.Role) gin.HandlerFunc {
		return ginmw.RequireRole(s.guard, roles, mwOpts...)
	}

	// Profile creation only needs the role; requiring the profile would loop.
	for _, r := range []gate.Role{gate.RoleFarmer, gate.RoleBuyer, gate.RoleTransporter} {
		path := s.guard.ProfileCreationPath(r)
		pages.GET(path, roleGate([]gate.Role{r}), view(path))
	}

	farmer := pages.Group("", profileGate(farmers))
	{
		farmer.GET("/farmer-dashboard", view("farmer-dashboard"))
		farmer.GET("/farmer-profile", view("farmer-profile"))
		farmer.GET("/update-farm", view("update-farm"))
		farmer.GET("/add-product", view("add-product"))
		farmer.GET("/my-products", view("my-products"))
	}

	buyer := pages.Group("", profileGate(buyers))
	{
		buyer.GET("/buyer-dashboard", view("buyer-dashboard"))
		buyer.GET("/buyer-profile", view("buyer-profile"))
		buyer.GET("/marketplace", view("marketplace"))
	}

	transporter := pages.Group("", profileGate(transporters))
	{
		transporter.GET("/transporter-dashboard", view("transporter-dashboard"))
		transporter.GET("/transporter-profile", view("transporter-profile"))
	}

	return router
}

// view renders a placeholder for a protected page. The real markup lives in
// the web client; the gate only decides whether it may be shown.
func view(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"view":    name,
			"user_id": ginmw.GetUserID(c),
			"role":    string(ginmw.GetRole(c)),
		})
	}
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if pc, ok := s.lookup.(*profile.Client); ok {
		body["profile_breaker"] = pc.BreakerState()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) ready(c *gin.Context) {
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) loginPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"view": "login"})
}

type loginRequest struct {
	Token string     `json:"token" binding:"required"`
	User  *gate.User `json:"user"`
}

// login stores the token and user record issued by the marketplace backend
// and sets the session cookie.
func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if req.User != nil {
		req.User.Role = gate.NormalizeRole(string(req.User.Role))
	}

	id, expiresAt, err := s.store.Create(c.Request.Context(), req.Token, req.User)
	if err != nil {
		s.metrics.RecordSession("create", "error")
		s.logger.Error("session create failed",
			zap.String("request_id", ginmw.GetRequestID(c)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session_unavailable"})
		return
	}
	s.metrics.RecordSession("create", "ok")

	session.SetCookie(c.Writer, id, expiresAt, s.cookieOptions())
	c.JSON(http.StatusOK, gin.H{"expires_at": expiresAt.UTC().Format(time.RFC3339)})
}

func (s *Server) logout(c *gin.Context) {
	if id := session.IDFromRequest(c.Request); id != "" {
		result := "ok"
		if err := s.store.Destroy(c.Request.Context(), id); err != nil {
			result = "error"
			s.logger.Warn("session destroy failed",
				zap.String("request_id", ginmw.GetRequestID(c)),
				zap.Error(err),
			)
		}
		s.metrics.RecordSession("destroy", result)
	}
	session.ClearCookie(c.Writer, s.cookieOptions())

	if c.Request.Method == http.MethodGet {
		c.Redirect(http.StatusSeeOther, s.guard.LoginPath())
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) cookieOptions() session.CookieOptions {
	return session.CookieOptions{Secure: s.config.Session.CookieSecure}
}
