package authorization

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	jwt "github.com/appleboy/gin-jwt/v2"
	"github.com/gin-gonic/gin"
)

// APIKeyHeader carries the machine-to-machine key for ticket intake.
const APIKeyHeader = "X-Api-Key"

// Guard 封装 JWT 中间件以提供授权辅助方法。
type Guard struct {
	jwt    *jwt.GinJWTMiddleware
	apiKey string
}

// NewGuard builds a guard. An empty apiKey disables service authentication.
func NewGuard(jwtMiddleware *jwt.GinJWTMiddleware, apiKey string) *Guard {
	return &Guard{jwt: jwtMiddleware, apiKey: strings.TrimSpace(apiKey)}
}

// RequireAuthenticated 确保请求携带有效的 JWT。
func (g *Guard) RequireAuthenticated() gin.HandlerFunc {
	if g == nil || g.jwt == nil {
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		}
	}
	return g.jwt.MiddlewareFunc()
}

// RequireSessionOrAPIKey accepts either the service API key or a user JWT.
func (g *Guard) RequireSessionOrAPIKey() gin.HandlerFunc {
	authenticated := g.RequireAuthenticated()
	return func(c *gin.Context) {
		if g != nil && g.apiKey != "" {
			if provided := strings.TrimSpace(c.GetHeader(APIKeyHeader)); provided != "" {
				if subtle.ConstantTimeCompare([]byte(provided), []byte(g.apiKey)) == 1 {
					SetSession(c, Session{Username: "service", Role: RoleService})
					c.Next()
					return
				}
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
				return
			}
		}
		authenticated(c)
	}
}

// RequireAnyRole 要求请求至少具备指定角色之一。
func (g *Guard) RequireAnyRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		trimmed := strings.ToLower(strings.TrimSpace(role))
		if trimmed != "" {
			allowed[trimmed] = struct{}{}
			names = append(names, trimmed)
		}
	}

	message := "insufficient privileges"
	if len(names) == 1 {
		message = fmt.Sprintf("%s role required", names[0])
	} else if len(names) > 1 {
		message = fmt.Sprintf("one of [%s] roles required", strings.Join(names, ", "))
	}

	return func(c *gin.Context) {
		if len(allowed) == 0 {
			c.Next()
			return
		}
		session, ok := CurrentSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if _, ok := allowed[strings.ToLower(session.Role)]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": message})
			return
		}
		c.Next()
	}
}

// RequireRole 限定请求必须拥有给定角色。
func (g *Guard) RequireRole(role string) gin.HandlerFunc {
	return g.RequireAnyRole(role)
}
