package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Request size limits (in bytes)
const (
	MaxMessageSize  = 16 * 1024  // 16KB - single chat message
	MaxCodeSize     = 100 * 1024 // 100KB - current code sent for editing
	MaxConversation = 50         // messages per generate request
	MaxIDLength     = 128
)

// Roles accepted in a conversation
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// SafeIDPattern allows alphanumeric, hyphens, underscores
var SafeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil // Optional field, empty is OK
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	// Check for null bytes (security issue)
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidateID validates an ID field
func ValidateID(id, fieldName string, required bool) error {
	if err := ValidateString(id, fieldName, 1, MaxIDLength, required); err != nil {
		return err
	}

	if id != "" && !SafeIDPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (only alphanumeric, hyphens, and underscores allowed)", fieldName)
	}

	return nil
}

// ValidateRole validates a conversation role
func ValidateRole(role string) error {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return nil
	default:
		return fmt.Errorf("unknown role %q", role)
	}
}

// ValidateMessage validates a chat message
func ValidateMessage(message string) error {
	if err := ValidateString(message, "message", 1, MaxMessageSize, true); err != nil {
		return err
	}

	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("message is blank")
	}

	return nil
}

// ValidateCode validates code sent along with an edit request. Size is
// measured in bytes to match the compiler cap.
func ValidateCode(code string) error {
	if len(code) > MaxCodeSize {
		return fmt.Errorf("code size %d bytes exceeds maximum %d bytes", len(code), MaxCodeSize)
	}
	if strings.Contains(code, "\x00") {
		return fmt.Errorf("code contains invalid characters")
	}
	return nil
}
