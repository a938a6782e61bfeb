package authorization

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/appleboy/gin-jwt/v2"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"supportdesk_back/apperr"
	"supportdesk_back/config"
)

const (
	identityKey      = "user_id"
	defaultTimeout   = time.Hour
	minPasswordChars = 8
)

var (
	ErrUsernameTaken = errors.New("authorization: username already exists")
	ErrWeakPassword  = errors.New("authorization: password must be at least 8 characters")
	ErrInvalidRole   = errors.New("authorization: role must be admin or client")
	ErrTenantMissing = errors.New("authorization: client users need a tenant")
)

// Module wires together the JWT middleware and backing services.
type Module struct {
	db            *gorm.DB
	users         *UserStore
	auth          *AuthService
	jwtMiddleware *jwt.GinJWTMiddleware
	guard         *Guard
}

// NewModuleFromEnv reads JWT_SECRET and SUPPORT_API_KEY.
func NewModuleFromEnv(db *gorm.DB) (*Module, error) {
	secret := config.String("JWT_SECRET", "")
	if secret == "" {
		return nil, errors.New("authorization: JWT_SECRET environment variable is required")
	}
	return NewModule(db, secret, config.String("SUPPORT_API_KEY", ""))
}

func NewModule(db *gorm.DB, secret string, apiKey string) (*Module, error) {
	if db == nil {
		return nil, errors.New("authorization: database connection is required")
	}
	users := &UserStore{db: db}
	auth := &AuthService{users: users}
	middleware, err := buildJWTMiddleware(auth, secret)
	if err != nil {
		return nil, err
	}
	return &Module{
		db:            db,
		users:         users,
		auth:          auth,
		jwtMiddleware: middleware,
		guard:         NewGuard(middleware, apiKey),
	}, nil
}

// AutoMigrate creates the users table.
func (m *Module) AutoMigrate() error {
	return AutoMigrate(m.db)
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}); err != nil {
		return fmt.Errorf("authorization: migrate models: %w", err)
	}
	return nil
}

func (m *Module) Guard() *Guard {
	if m == nil {
		return nil
	}
	return m.guard
}

func (m *Module) Auth() *AuthService {
	if m == nil {
		return nil
	}
	return m.auth
}

// Middleware exposes the raw JWT middleware.
func (m *Module) Middleware() *jwt.GinJWTMiddleware {
	if m == nil {
		return nil
	}
	return m.jwtMiddleware
}

// RegisterRoutes bootstraps the authentication endpoints under /auth.
func (m *Module) RegisterRoutes(router gin.IRouter) {
	authGroup := router.Group("/auth")
	authGroup.POST("/login", m.jwtMiddleware.LoginHandler)
	authGroup.POST("/refresh", m.jwtMiddleware.RefreshHandler)

	secured := authGroup.Group("")
	secured.Use(m.guard.RequireAuthenticated())
	secured.GET("/session", func(c *gin.Context) {
		session, ok := CurrentSession(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		user, err := m.users.FindByID(c.Request.Context(), session.UserID)
		if err != nil {
			c.JSON(apperr.HTTPStatus(err), gin.H{"error": "failed to load user"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": session, "user": buildUserPayload(user)})
	})
}

func buildJWTMiddleware(service *AuthService, secret string) (*jwt.GinJWTMiddleware, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("authorization: JWT secret is required")
	}

	return jwt.New(&jwt.GinJWTMiddleware{
		Realm:       "supportdesk",
		Key:         []byte(secret),
		Timeout:     defaultTimeout,
		MaxRefresh:  24 * time.Hour,
		IdentityKey: identityKey,
		PayloadFunc: func(data interface{}) jwt.MapClaims {
			if session, ok := data.(*Session); ok {
				claims := jwt.MapClaims{
					identityKey: session.UserID,
					"username":  session.Username,
					"role":      session.Role,
				}
				if session.TenantID != "" {
					claims["tenant_id"] = session.TenantID
				}
				return claims
			}
			return jwt.MapClaims{}
		},
		IdentityHandler: func(c *gin.Context) interface{} {
			session := sessionFromClaims(jwt.ExtractClaims(c))
			return &session
		},
		Authenticator: func(c *gin.Context) (interface{}, error) {
			var req LoginRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				return nil, jwt.ErrMissingLoginValues
			}
			return service.Authenticate(c.Request.Context(), req.Username, req.Password)
		},
		Authorizator: func(data interface{}, c *gin.Context) bool {
			session, ok := data.(*Session)
			if !ok || session.UserID == 0 {
				return false
			}
			switch session.Role {
			case RoleAdmin:
				return true
			case RoleClient:
				return session.TenantID != ""
			default:
				return false
			}
		},
		Unauthorized: func(c *gin.Context, code int, message string) {
			c.JSON(code, gin.H{"error": message})
		},
		TokenLookup:   "header: Authorization, cookie: jwt",
		TokenHeadName: "Bearer",
		TimeFunc:      time.Now,
	})
}

// LoginRequest represents the expected payload for the login endpoint.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthService handles authentication concerns.
type AuthService struct {
	users *UserStore
}

// Authenticate validates the given credentials and returns the session to
// encode in the token.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*Session, error) {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return nil, jwt.ErrMissingLoginValues
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, jwt.ErrFailedAuthentication
		}
		return nil, fmt.Errorf("authorization: authenticate user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, jwt.ErrFailedAuthentication
	}

	if err := s.users.TouchLogin(ctx, user.ID); err != nil {
		return nil, err
	}

	session := &Session{UserID: user.ID, Username: user.Username, Role: user.Role}
	if user.TenantID != nil {
		session.TenantID = *user.TenantID
	}
	return session, nil
}

// CreateUserParams describes a new account.
type CreateUserParams struct {
	Username    string
	Password    string
	DisplayName string
	Role        string
	TenantID    string
}

// CreateUser hashes the password and stores the account.
func (s *AuthService) CreateUser(ctx context.Context, params CreateUserParams) (*User, error) {
	username := strings.TrimSpace(params.Username)
	if username == "" || params.Password == "" {
		return nil, jwt.ErrMissingLoginValues
	}
	if len(params.Password) < minPasswordChars {
		return nil, ErrWeakPassword
	}

	role := strings.ToLower(strings.TrimSpace(params.Role))
	var tenant *string
	switch role {
	case RoleAdmin:
	case RoleClient:
		trimmed := strings.TrimSpace(params.TenantID)
		if trimmed == "" {
			return nil, ErrTenantMissing
		}
		tenant = &trimmed
	default:
		return nil, ErrInvalidRole
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("authorization: hash password: %w", err)
	}

	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" {
		displayName = username
	}
	user := &User{
		Username:     username,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		Role:         role,
		TenantID:     tenant,
		Status:       "active",
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UserStore provides data access helpers backed by GORM.
type UserStore struct {
	db *gorm.DB
}

// FindByID loads a user by primary key.
func (s *UserStore) FindByID(ctx context.Context, id uint) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, wrapLookup(err, "user")
	}
	return &user, nil
}

// FindByUsername loads a user by unique username.
func (s *UserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error; err != nil {
		return nil, wrapLookup(err, "user")
	}
	return &user, nil
}

// Create inserts a new user record.
func (s *UserStore) Create(ctx context.Context, user *User) error {
	var existing int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", user.Username).Count(&existing).Error; err != nil {
		return fmt.Errorf("authorization: check username: %w", err)
	}
	if existing > 0 {
		return ErrUsernameTaken
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("authorization: create user: %w", err)
	}
	return nil
}

func (s *UserStore) TouchLogin(ctx context.Context, id uint) error {
	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("last_login_at", now).Error; err != nil {
		return fmt.Errorf("authorization: record login: %w", err)
	}
	return nil
}

func wrapLookup(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("authorization: %s: %w", what, apperr.ErrNotFound)
	}
	return fmt.Errorf("authorization: load %s: %w", what, err)
}

func buildUserPayload(user *User) gin.H {
	if user == nil {
		return gin.H{}
	}
	var tenant interface{}
	if user.TenantID != nil {
		tenant = *user.TenantID
	}
	return gin.H{
		"id":            user.ID,
		"username":      user.Username,
		"display_name":  user.DisplayName,
		"role":          user.Role,
		"client_id":     tenant,
		"status":        user.Status,
		"last_login_at": user.LastLoginAt,
		"created_at":    user.CreatedAt,
	}
}
