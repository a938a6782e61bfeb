package authorization

import (
	"encoding/json"

	jwt "github.com/appleboy/gin-jwt/v2"
	"github.com/gin-gonic/gin"
)

const sessionContextKey = "supportdesk_session"

// Session is the caller identity derived from JWT claims or a service key.
// TenantID is empty for admins and service callers.
type Session struct {
	UserID   uint   `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	TenantID string `json:"clientId,omitempty"`
}

func (s Session) IsAdmin() bool   { return s.Role == RoleAdmin }
func (s Session) IsService() bool { return s.Role == RoleService }

// CurrentSession returns the session attached by one of the guard
// middlewares.
func CurrentSession(c *gin.Context) (Session, bool) {
	if value, ok := c.Get(sessionContextKey); ok {
		if session, ok := value.(Session); ok {
			return session, true
		}
	}
	claims := jwt.ExtractClaims(c)
	if len(claims) == 0 {
		return Session{}, false
	}
	session := sessionFromClaims(claims)
	if session.UserID == 0 || session.Role == "" {
		return Session{}, false
	}
	return session, true
}

// SetSession attaches a session to the request context.
func SetSession(c *gin.Context, session Session) {
	c.Set(sessionContextKey, session)
}

func sessionFromClaims(claims jwt.MapClaims) Session {
	username, _ := claims["username"].(string)
	role, _ := claims["role"].(string)
	tenant, _ := claims["tenant_id"].(string)
	return Session{
		UserID:   extractUserID(claims),
		Username: username,
		Role:     role,
		TenantID: tenant,
	}
}

func extractUserID(claims jwt.MapClaims) uint {
	switch v := claims[identityKey].(type) {
	case float64:
		return uint(v)
	case int64:
		return uint(v)
	case int:
		return uint(v)
	case uint:
		return v
	case json.Number:
		if parsed, err := v.Int64(); err == nil {
			return uint(parsed)
		}
	}
	return 0
}
