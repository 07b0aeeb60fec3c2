// Package naming derives and validates the capability identifiers the agent
// advertises and accepts as task commands.
package naming

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// CapabilityRules defines the naming conventions for capabilities
type CapabilityRules struct {
	MinLength     int
	MaxLength     int
	Pattern       *regexp.Regexp
	ReservedNames map[string]bool
}

// ValidationResult represents the result of name validation
type ValidationResult struct {
	IsValid        bool     `json:"is_valid"`
	Errors         []string `json:"errors,omitempty"`
	NormalizedName string   `json:"normalized_name,omitempty"`
}

// Err joins the validation errors, or returns nil for a valid name.
func (r *ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return fmt.Errorf("invalid capability name %q: %s", r.NormalizedName, strings.Join(r.Errors, "; "))
}

// DefaultCapabilityRules accepts lower snake_case identifiers.
var DefaultCapabilityRules = &CapabilityRules{
	MinLength: 3,
	MaxLength: 64,
	Pattern:   regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$`),
	ReservedNames: map[string]bool{
		// task commands handled by the agent itself
		"help":      true,
		"price":     true,
		"market":    true,
		"sentiment": true,
		// protocol reserved
		"system":   true,
		"admin":    true,
		"teneo":    true,
		"protocol": true,
	},
}

// ValidateCapability validates a capability name against rules.
func ValidateCapability(name string, rules *CapabilityRules) *ValidationResult {
	if rules == nil {
		rules = DefaultCapabilityRules
	}

	normalized := strings.TrimSpace(name)
	result := &ValidationResult{IsValid: true, NormalizedName: normalized}
	fail := func(msg string) {
		result.IsValid = false
		result.Errors = append(result.Errors, msg)
	}

	if normalized == "" {
		fail("capability name cannot be empty")
		return result
	}
	if len(normalized) < rules.MinLength {
		fail(fmt.Sprintf("capability name must be at least %d characters long", rules.MinLength))
	}
	if len(normalized) > rules.MaxLength {
		fail(fmt.Sprintf("capability name must not exceed %d characters", rules.MaxLength))
	}
	if !rules.Pattern.MatchString(normalized) {
		fail("capability name must be lower snake_case")
	}
	if strings.Contains(normalized, "__") {
		fail("capability name cannot contain consecutive underscores")
	}
	if rules.ReservedNames[normalized] {
		fail(fmt.Sprintf("'%s' is a reserved name and cannot be used", normalized))
	}
	return result
}

// NormalizeCapability lowercases name and folds spaces, hyphens and other
// separators into single underscores.
func NormalizeCapability(name string, rules *CapabilityRules) string {
	if rules == nil {
		rules = DefaultCapabilityRules
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) && r < unicode.MaxASCII, unicode.IsDigit(r) && r < unicode.MaxASCII:
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}

	normalized := strings.TrimLeft(b.String(), "0123456789_")
	if len(normalized) > rules.MaxLength {
		normalized = strings.TrimRight(normalized[:rules.MaxLength], "_")
	}
	return normalized
}

// CapabilityName builds the capability id for an asset and purpose, for
// example ("Bitcoin", "sentiment analysis") -> "bitcoin_sentiment_analysis".
func CapabilityName(asset, purpose string) string {
	return NormalizeCapability(asset+" "+purpose, nil)
}
