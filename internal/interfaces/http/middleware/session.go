package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"

	"github.com/selkies/backend/internal/infrastructure/logger"
	"github.com/selkies/backend/internal/interfaces/http/dto"
)

const (
	// SessionHeader carries the signed plan session token for clients without cookies
	SessionHeader = "X-Plan-Session"
	// SessionIDKey is the gin context key holding the plan session ID as a string
	SessionIDKey = "session_id"
	// DefaultSessionCookieName is used when no cookie name is configured
	DefaultSessionCookieName = "bakery_plan"

	planSessionKey = "plan_session"
	sessionValue   = "sid"
)

// SessionCookieConfig configures the signed plan session cookie
type SessionCookieConfig struct {
	Name     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration // Also bounds how old a token may be
	HashKey  []byte        // Random per process when empty
	BlockKey []byte        // Optional, encrypts the token
}

// SessionCookie signs plan session IDs into cookies and reads them back
type SessionCookie struct {
	codec *securecookie.SecureCookie
	cfg   SessionCookieConfig
}

// NewSessionCookie creates the cookie codec
func NewSessionCookie(cfg SessionCookieConfig) *SessionCookie {
	if cfg.Name == "" {
		cfg.Name = DefaultSessionCookieName
	}
	if len(cfg.HashKey) == 0 {
		cfg.HashKey = securecookie.GenerateRandomKey(64)
	}
	if len(cfg.BlockKey) == 0 {
		cfg.BlockKey = nil
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteLaxMode
	}

	codec := securecookie.New(cfg.HashKey, cfg.BlockKey)
	if cfg.MaxAge > 0 {
		codec.MaxAge(int(cfg.MaxAge.Seconds()))
	}
	return &SessionCookie{codec: codec, cfg: cfg}
}

// ParseSameSite maps a config value (strict, lax, none) to http.SameSite
func ParseSameSite(value string) http.SameSite {
	switch strings.ToLower(value) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// Issue writes the signed session token as a cookie and in the SessionHeader
// response header
func (s *SessionCookie) Issue(c *gin.Context, sessionID uuid.UUID) error {
	token, err := s.codec.Encode(s.cfg.Name, map[string]string{sessionValue: sessionID.String()})
	if err != nil {
		return err
	}
	http.SetCookie(c.Writer, s.cookie(token, int(s.cfg.MaxAge.Seconds())))
	c.Header(SessionHeader, token)
	return nil
}

// Clear expires the session cookie
func (s *SessionCookie) Clear(c *gin.Context) {
	http.SetCookie(c.Writer, s.cookie("", -1))
}

// Read returns the session ID from the cookie, falling back to the SessionHeader
// request header. Tampered, expired or malformed tokens are rejected.
func (s *SessionCookie) Read(c *gin.Context) (uuid.UUID, bool) {
	token := ""
	if cookie, err := c.Request.Cookie(s.cfg.Name); err == nil {
		token = cookie.Value
	}
	if token == "" {
		token = c.GetHeader(SessionHeader)
	}
	if token == "" {
		return uuid.Nil, false
	}

	value := map[string]string{}
	if err := s.codec.Decode(s.cfg.Name, token, &value); err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(value[sessionValue])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Require rejects requests without a valid plan session. On success it stores the
// session ID in the gin and request contexts and re-issues the token so its
// lifetime slides with activity.
func (s *SessionCookie) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := s.Read(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeSessionRequired,
				"Start a plan first",
				GetRequestID(c),
			))
			return
		}

		c.Set(planSessionKey, id)
		c.Set(SessionIDKey, id.String())
		ctx := c.Request.Context()
		ctx, _ = logger.WithSessionID(ctx, logger.FromContext(ctx), id.String())
		c.Request = c.Request.WithContext(ctx)

		// A failed refresh leaves the client's current token in place
		_ = s.Issue(c, id)
		c.Next()
	}
}

// GetSessionID returns the plan session ID stored by Require
func GetSessionID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(planSessionKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func (s *SessionCookie) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.Name,
		Value:    value,
		Path:     "/",
		Domain:   s.cfg.Domain,
		MaxAge:   maxAge,
		Secure:   s.cfg.Secure,
		HttpOnly: true,
		SameSite: s.cfg.SameSite,
	}
}
