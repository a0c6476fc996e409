package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"holdem-engine/engine"
	"holdem-engine/models"
)

// Common validation errors
var (
	ErrInvalidUsername    = errors.New("invalid username format")
	ErrInvalidRange       = errors.New("value out of valid range")
	ErrInvalidEnum        = errors.New("invalid enum value")
	ErrStringTooLong      = errors.New("string exceeds maximum length")
	ErrStringTooShort     = errors.New("string below minimum length")
	ErrContainsXSSPattern = errors.New("input contains suspicious XSS patterns")
)

const MaxChatLength = 200

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,20}$`)
	tableIDRegex  = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

	xssPatterns = []string{
		"<script", "</script", "javascript:", "onerror=", "onload=",
		"<iframe", "</iframe", "<object", "</object", "eval(",
	}
)

// ValidateUsername validates a display name.
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username is required")
	}
	if len(username) < 3 {
		return fmt.Errorf("%w: username must be >= 3 characters", ErrStringTooShort)
	}
	if len(username) > 20 {
		return fmt.Errorf("%w: username must be <= 20 characters", ErrStringTooLong)
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("%w: username can only contain letters, numbers, underscore, and hyphen", ErrInvalidUsername)
	}
	return nil
}

// ValidateTableID checks ids supplied by clients before they reach a lookup.
func ValidateTableID(id string) error {
	if !tableIDRegex.MatchString(id) {
		return fmt.Errorf("%w: table id", ErrInvalidEnum)
	}
	return nil
}

func ValidateIntRange(value, min, max int, fieldName string) error {
	if value < min || value > max {
		return fmt.Errorf("%w: %s must be between %d and %d", ErrInvalidRange, fieldName, min, max)
	}
	return nil
}

func ValidatePositiveInt(value int, fieldName string) error {
	if value <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidRange, fieldName)
	}
	return nil
}

// ValidateStringLength counts runes, not bytes.
func ValidateStringLength(value string, minLen, maxLen int, fieldName string) error {
	n := utf8.RuneCountInString(value)
	if n < minLen {
		return fmt.Errorf("%w: %s must be at least %d characters", ErrStringTooShort, fieldName, minLen)
	}
	if n > maxLen {
		return fmt.Errorf("%w: %s must be at most %d characters", ErrStringTooLong, fieldName, maxLen)
	}
	return nil
}

// SanitizeString strips null bytes and control characters and trims the edges.
func SanitizeString(input string) string {
	input = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, input)
	return strings.TrimSpace(input)
}

// CheckXSS checks for common XSS patterns
func CheckXSS(input string) error {
	lower := strings.ToLower(input)
	for _, pattern := range xssPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("%w: contains '%s'", ErrContainsXSSPattern, pattern)
		}
	}
	return nil
}

// ValidateSafeString validates and sanitizes a general string input
func ValidateSafeString(input string, minLen, maxLen int, fieldName string) (string, error) {
	sanitized := SanitizeString(input)
	if err := ValidateStringLength(sanitized, minLen, maxLen, fieldName); err != nil {
		return "", err
	}
	if err := CheckXSS(sanitized); err != nil {
		return "", fmt.Errorf("%s: %w", fieldName, err)
	}
	return sanitized, nil
}

// ChatMessage returns the text to broadcast for a table chat message.
func ChatMessage(text string) (string, error) {
	return ValidateSafeString(text, 1, MaxChatLength, "chat message")
}

func ValidateTableName(name string) error {
	sanitized, err := ValidateSafeString(name, 1, 100, "table name")
	if err != nil {
		return err
	}
	if sanitized != name {
		return errors.New("table name contains invalid characters")
	}
	return nil
}

// ValidateTableConfig checks a client supplied table name and returns the
// config with engine defaults filled in.
func ValidateTableConfig(name string, cfg models.TableConfig) (models.TableConfig, error) {
	if err := ValidateTableName(name); err != nil {
		return cfg, err
	}
	if cfg.SmallBlind > 1000000 || cfg.BigBlind > 1000000 {
		return cfg, fmt.Errorf("%w: blinds must be <= 1,000,000", ErrInvalidRange)
	}
	return engine.ValidateConfig(cfg)
}
