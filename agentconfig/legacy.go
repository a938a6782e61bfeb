package agentconfig

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"supportdesk_back/apperr"
)

// DecodeLegacy migrates a historical config document (JSON or YAML) into
// the versioned schema. Both the flat shape and the nested shape with a
// "rules" object are accepted, with camelCase or snake_case keys. Values
// under "rules" win over top-level ones.
func DecodeLegacy(data []byte, tenantID string) (*Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("agentconfig: parse legacy config: %v: %w", err, apperr.ErrValidation)
	}
	if raw == nil {
		return nil, fmt.Errorf("agentconfig: legacy config is empty: %w", apperr.ErrValidation)
	}

	layers := []map[string]interface{}{raw}
	if rules, ok := raw["rules"].(map[string]interface{}); ok {
		layers = append([]map[string]interface{}{rules}, layers...)
	}
	lookup := func(keys ...string) (interface{}, bool) {
		for _, layer := range layers {
			for _, key := range keys {
				if value, ok := layer[key]; ok && value != nil {
					return value, true
				}
			}
		}
		return nil, false
	}

	cfg := Defaults(tenantID)
	if tenantID == "" {
		if value, ok := lookup("tenantId", "tenant_id"); ok {
			cfg.TenantID = fmt.Sprint(value)
		}
	}
	if value, ok := lookup("companyName", "company_name"); ok {
		cfg.CompanyName = fmt.Sprint(value)
	}
	if value, ok := lookup("tone"); ok {
		cfg.Tone = fmt.Sprint(value)
	}
	if value, ok := lookup("signature"); ok {
		cfg.Signature = fmt.Sprint(value)
	}
	if value, ok := lookup("defaultLanguage", "default_language", "language"); ok {
		cfg.DefaultLanguage = fmt.Sprint(value)
	}

	var err error
	if value, ok := lookup("empathyEnabled", "empathy_enabled", "empathy"); ok {
		if cfg.EmpathyEnabled, err = toBool(value); err != nil {
			return nil, fmt.Errorf("agentconfig: empathyEnabled: %w", err)
		}
	}
	if value, ok := lookup("allowDiscount", "allow_discount"); ok {
		if cfg.AllowDiscount, err = toBool(value); err != nil {
			return nil, fmt.Errorf("agentconfig: allowDiscount: %w", err)
		}
	}
	if value, ok := lookup("maxDiscountAmount", "max_discount_amount", "maxDiscount"); ok {
		if cfg.MaxDiscountAmount, err = toFloat(value); err != nil {
			return nil, fmt.Errorf("agentconfig: maxDiscountAmount: %w", err)
		}
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func toBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("not a boolean %q: %w", v, apperr.ErrValidation)
		}
		return parsed, nil
	case int:
		return v != 0, nil
	default:
		return false, fmt.Errorf("not a boolean %v: %w", v, apperr.ErrValidation)
	}
}

func toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number %q: %w", v, apperr.ErrValidation)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("not a number %v: %w", v, apperr.ErrValidation)
	}
}
