package control

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const sessionUserKey = "user"

// AuthHandler logs the single operator account in and out.
type AuthHandler struct {
	User     string
	Password string
}

func (h *AuthHandler) valid(user, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.User)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(h.Password)) == 1
	return userOK && passOK
}

func (h *AuthHandler) LoginPage(c *gin.Context) {
	renderLogin(c, http.StatusOK, nil)
}

func (h *AuthHandler) Login(c *gin.Context) {
	session := sessions.Default(c)
	formUser := c.PostForm("username")
	formPassword := c.PostForm("password")

	if !h.valid(formUser, formPassword) {
		slog.Warn("Failed login", "remote", c.ClientIP())
		renderLogin(c, http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	session.Set(sessionUserKey, h.User)
	if err := session.Save(); err != nil {
		slog.Error("Failed to save session", "error", err)
		c.String(http.StatusInternalServerError, "Failed to save session")
		return
	}
	if c.GetHeader("HX-Request") == "true" {
		c.Header("HX-Redirect", "/api/apps")
		return
	}
	c.Redirect(http.StatusFound, "/api/apps")
}

func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		slog.Error("Failed to clear session", "error", err)
	}
	c.Redirect(http.StatusFound, "/login")
}

func renderLogin(c *gin.Context, status int, data gin.H) {
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := loginTemplate.Execute(c.Writer, data); err != nil {
		slog.Error("Template execution error", "error", err)
	}
}

// AuthRequired rejects requests without a logged-in session. API calls get a
// JSON 401, browsers are sent to the login page.
func AuthRequired(c *gin.Context) {
	session := sessions.Default(c)
	if session.Get(sessionUserKey) != nil {
		c.Next()
		return
	}

	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
		return
	}
	// If the request is from HTMX, trigger a client-side redirect.
	if c.GetHeader("HX-Request") == "true" {
		c.Header("HX-Redirect", "/login")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.Redirect(http.StatusFound, "/login")
	c.Abort()
}
