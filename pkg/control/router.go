// Package control is the authenticated HTTP API for starting, stopping and
// inspecting the supervised apps of a camera host.
package control

import (
	"crypto/rand"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"text/template"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/wachiwi/rpi-webstream/pkg/logger"
	"github.com/wachiwi/rpi-webstream/pkg/supervisor"
)

//go:embed templates/*
var templateFS embed.FS

var loginTemplate = template.Must(template.ParseFS(templateFS, "templates/login.html"))

var ErrNoCredentials = errors.New("operator user and password must be set")

// Options configures the control router.
type Options struct {
	User     string
	Password string
	// SessionSecret signs the session cookie. A random key is used when
	// empty, which logs everyone out on restart.
	SessionSecret []byte
}

// NewRouter builds the control API around sup.
func NewRouter(opts Options, sup *supervisor.Supervisor) (*gin.Engine, error) {
	if opts.User == "" || opts.Password == "" {
		return nil, ErrNoCredentials
	}
	secret := opts.SessionSecret
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
	}

	store := cookie.NewStore(secret)
	store.Options(sessions.Options{Path: "/", MaxAge: 12 * 60 * 60, HttpOnly: true})

	router := gin.New()
	if err := router.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		return nil, fmt.Errorf("set trusted proxies: %w", err)
	}
	router.Use(gin.Recovery(), logger.Middleware(slog.Default()))
	router.Use(sessions.Sessions("streamctl", store))

	auth := &AuthHandler{User: opts.User, Password: opts.Password}
	router.GET("/login", auth.LoginPage)
	router.POST("/login", auth.Login)
	router.GET("/logout", auth.Logout)

	apps := &AppsHandler{Supervisor: sup}
	authorized := router.Group("/", AuthRequired)
	authorized.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/api/apps")
	})
	authorized.GET("/api/apps", apps.List)
	authorized.GET("/api/apps/:name", apps.Status)
	authorized.POST("/api/apps/:name/start", apps.Start)
	authorized.POST("/api/apps/:name/stop", apps.Stop)
	authorized.GET("/api/logs/:name", apps.Logs)

	return router, nil
}
