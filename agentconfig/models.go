package agentconfig

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"supportdesk_back/apperr"
)

// SchemaVersion is the only stored config shape.
const SchemaVersion = 1

const (
	ToneFriendly = "friendly"
	ToneFormal   = "formal"
	ToneDirect   = "direct"

	DefaultCompanyName = "Company"
	DefaultSignature   = "Met vriendelijke groet,"
	DefaultLanguage    = "nl"
)

// Config is the per-tenant reply policy.
type Config struct {
	TenantID          string    `gorm:"primaryKey;size:64" json:"tenantId" validate:"required,max=64"`
	SchemaVersion     int       `gorm:"not null;default:1" json:"schemaVersion" validate:"eq=1"`
	CompanyName       string    `gorm:"size:200;not null" json:"companyName" validate:"max=200"`
	Tone              string    `gorm:"size:16;not null" json:"tone" validate:"oneof=friendly formal direct"`
	EmpathyEnabled    bool      `gorm:"not null" json:"empathyEnabled"`
	AllowDiscount     bool      `gorm:"not null" json:"allowDiscount"`
	MaxDiscountAmount float64   `gorm:"not null;default:0" json:"maxDiscountAmount" validate:"gte=0"`
	Signature         string    `gorm:"type:text" json:"signature" validate:"max=2000"`
	DefaultLanguage   string    `gorm:"size:8;not null" json:"defaultLanguage" validate:"oneof=nl en"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (Config) TableName() string {
	return "tenant_agent_configs"
}

var validate = validator.New()

// Defaults returns the policy used for fields a tenant never set.
func Defaults(tenantID string) Config {
	return Config{
		TenantID:        tenantID,
		SchemaVersion:   SchemaVersion,
		CompanyName:     DefaultCompanyName,
		Tone:            ToneFriendly,
		Signature:       DefaultSignature,
		DefaultLanguage: DefaultLanguage,
	}
}

// Normalize trims the free-text fields and fills blank ones with defaults.
func (c *Config) Normalize() {
	c.TenantID = strings.TrimSpace(c.TenantID)
	c.CompanyName = strings.TrimSpace(c.CompanyName)
	if c.CompanyName == "" {
		c.CompanyName = DefaultCompanyName
	}
	c.Tone = strings.ToLower(strings.TrimSpace(c.Tone))
	if c.Tone == "" {
		c.Tone = ToneFriendly
	}
	c.Signature = strings.TrimSpace(c.Signature)
	c.DefaultLanguage = strings.ToLower(strings.TrimSpace(c.DefaultLanguage))
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = DefaultLanguage
	}
	if c.SchemaVersion == 0 {
		c.SchemaVersion = SchemaVersion
	}
	if !c.AllowDiscount {
		c.MaxDiscountAmount = 0
	}
}

// Validate checks the config against the schema.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("agentconfig: %s: %w", describe(err), apperr.ErrValidation)
	}
	return nil
}

func describe(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s failed %s", lowerFirst(field.Field()), field.Tag()))
	}
	return strings.Join(parts, "; ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
