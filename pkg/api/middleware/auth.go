package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"macagent/pkg/auth"
)

const (
	AuthHeaderKey   = "Authorization"
	APIKeyHeaderKey = "X-API-Key"

	ContextPrincipalKey = "principal"
	ContextRequestIDKey = "request_id"
)

// AuthConfig holds authentication middleware configuration
type AuthConfig struct {
	KeyStore   auth.KeyStore
	JWTService *auth.JWTService // optional
	SkipPaths  []string         // exact paths, or prefixes ending in "*"
}

// Principal is the authenticated caller. Empty Points means every point.
type Principal struct {
	Client string
	Via    string // "api_key" or "jwt"
	Points []string
}

// AuthMiddleware accepts "Authorization: Bearer <api key or JWT>" or an
// X-API-Key header. Anything else is rejected with 401 before the body is read.
func AuthMiddleware(config AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if slices.ContainsFunc(config.SkipPaths, func(p string) bool { return matchPath(c.Request.URL.Path, p) }) {
			c.Next()
			return
		}

		p, ok := authenticate(c, config)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
				"hint":  "provide Bearer token or X-API-Key header",
			})
			return
		}
		c.Set(ContextPrincipalKey, p)
		c.Next()
	}
}

// authenticate tries the key store first: a Bearer value is far more often
// the configured API key than a JWT. JWTs are only accepted as Bearer tokens.
func authenticate(c *gin.Context, config AuthConfig) (*Principal, bool) {
	ctx := c.Request.Context()
	bearer := bearerToken(c.GetHeader(AuthHeaderKey))

	if config.KeyStore != nil {
		for _, credential := range []string{bearer, c.GetHeader(APIKeyHeaderKey)} {
			if credential == "" {
				continue
			}
			if info, err := config.KeyStore.ValidateKey(ctx, credential); err == nil {
				return &Principal{Client: info.Name, Via: "api_key"}, true
			}
		}
	}

	if bearer != "" && config.JWTService != nil {
		if claims, err := config.JWTService.ValidateToken(bearer); err == nil {
			return &Principal{Client: claims.Client, Via: "jwt", Points: claims.Points}, true
		}
	}
	return nil, false
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// GetPrincipal returns the authenticated caller, if any.
func GetPrincipal(c *gin.Context) (*Principal, bool) {
	value, exists := c.Get(ContextPrincipalKey)
	if !exists {
		return nil, false
	}
	p, ok := value.(*Principal)
	return p, ok
}

// GetClientFromContext returns the authenticated caller name
func GetClientFromContext(c *gin.Context) (string, bool) {
	p, ok := GetPrincipal(c)
	if !ok {
		return "", false
	}
	return p.Client, true
}

// PointAllowed reports whether the caller may invoke point. Requests that
// skipped authentication have no principal and are not allowed any point.
func PointAllowed(c *gin.Context, point string) bool {
	p, ok := GetPrincipal(c)
	if !ok {
		return false
	}
	return len(p.Points) == 0 || slices.Contains(p.Points, point)
}

// matchPath supports a trailing wildcard: /api/* matches /api/anything
func matchPath(path, pattern string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(path, prefix)
	}
	return path == pattern
}
