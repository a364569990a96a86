package security

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// deviceNameRegex validates device registry names
	// Allows: letters, numbers, underscores, hyphens
	// Length: 1-64 characters
	deviceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,62}[a-zA-Z0-9])?$`)

	// targetNameRegex validates test target names
	// Allows: letters, numbers, dots, underscores, hyphens
	// Length: 1-128 characters
	targetNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._-]{0,126}[a-zA-Z0-9])?$`)

	// unixUserRegex validates Unix usernames
	// Standard POSIX username rules
	// Length: 1-32 characters
	unixUserRegex = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

	// envKeyRegex validates environment variable keys
	envKeyRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	// remotePathRegex validates absolute paths on the device
	// Allows: alphanumeric, underscores, hyphens, dots, forward slashes
	remotePathRegex = regexp.MustCompile(`^/([a-zA-Z0-9_.-]+(/[a-zA-Z0-9_.-]+)*)?$`)

	// metaCharRegex matches characters the device shell would interpret
	// inside test binary flags
	metaCharRegex = regexp.MustCompile(`([()\[\]{}%!^"<>&|])`)

	// sensitiveLogPatterns used by SanitizeCommandForLog to mask secrets
	sensitiveLogPatterns = []string{
		"PASSWORD=",
		"TOKEN=",
		"SECRET=",
	}
)

// ValidateDeviceName validates a device registry name
func ValidateDeviceName(name string) error {
	if name == "" {
		return fmt.Errorf("device name cannot be empty")
	}
	if len(name) > 64 {
		return fmt.Errorf("device name too long (max 64 characters)")
	}
	if !deviceNameRegex.MatchString(name) {
		return fmt.Errorf("device name must contain only letters, numbers, underscores, and hyphens")
	}
	return nil
}

// ValidateTargetName validates a test target name.
// Target names become path components locally and on the device.
func ValidateTargetName(name string) error {
	if name == "" {
		return fmt.Errorf("target name cannot be empty")
	}
	if len(name) > 128 {
		return fmt.Errorf("target name too long (max 128 characters)")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("target name cannot contain '..'")
	}
	if !targetNameRegex.MatchString(name) {
		return fmt.Errorf("target name must contain only letters, numbers, dots, underscores, and hyphens")
	}
	return nil
}

// ValidateUnixUser validates a Unix username
func ValidateUnixUser(user string) error {
	if user == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if len(user) > 32 {
		return fmt.Errorf("username too long (max 32 characters)")
	}
	if !unixUserRegex.MatchString(user) {
		return fmt.Errorf("username must start with a lowercase letter or underscore, followed by lowercase letters, numbers, underscores, or hyphens")
	}
	return nil
}

// ValidateEnvKey validates an environment variable key
func ValidateEnvKey(key string) error {
	if key == "" {
		return fmt.Errorf("environment variable key cannot be empty")
	}
	if len(key) > 256 {
		return fmt.Errorf("environment variable key too long (max 256 characters)")
	}
	if !envKeyRegex.MatchString(key) {
		return fmt.Errorf("environment variable key must start with a letter or underscore, followed by letters, numbers, or underscores")
	}
	return nil
}

// ValidateRemotePath validates an absolute path on the device, such as the
// test result file that is touched before the first run.
func ValidateRemotePath(path string) error {
	if path == "" {
		return nil // Empty means no result file
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("device path must be absolute")
	}
	if len(path) > 4096 {
		return fmt.Errorf("device path too long (max 4096 characters)")
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("device path cannot contain path traversal (..) sequences")
	}
	if !remotePathRegex.MatchString(path) {
		return fmt.Errorf("device path contains invalid characters")
	}
	return nil
}

// ShellEscape escapes a string for safe use in shell commands by wrapping it
// in single quotes and escaping any internal single quotes using the POSIX
// pattern: ' → '\''
func ShellEscape(s string) string {
	// Replace single quotes with the POSIX escape sequence: end quote, escaped quote, start quote
	escaped := strings.ReplaceAll(s, "'", "'\\''")
	return "'" + escaped + "'"
}

// EscapeMetaChars backslash-escapes each of ()[]{}%!^"<>&| so test flags
// reach the binary verbatim instead of being interpreted by the device shell.
// Spaces are left alone; flags stay separate words.
func EscapeMetaChars(s string) string {
	return metaCharRegex.ReplaceAllString(s, `\$1`)
}

// SanitizeCommandForLog masks sensitive values in commands before logging.
// Each non-empty secret is replaced wherever it appears, and values assigned
// to *PASSWORD=, *TOKEN= or *SECRET= variables are masked.
func SanitizeCommandForLog(cmd string, secrets ...string) string {
	result := cmd

	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		result = strings.ReplaceAll(result, secret, "****")
	}

	// Mask sensitive environment variable values
	for _, pattern := range sensitiveLogPatterns {
		searchFrom := 0
		for {
			idx := strings.Index(result[searchFrom:], pattern)
			if idx == -1 {
				break
			}
			absIdx := searchFrom + idx
			// Find the end of the value (next space or end of string)
			valueStart := absIdx + len(pattern)
			valueEnd := findValueEnd(result, valueStart)
			masked := "****"
			result = result[:valueStart] + masked + result[valueEnd:]
			// Advance past the replacement to avoid infinite loop
			searchFrom = valueStart + len(masked)
		}
	}

	return result
}

// findValueEnd finds where a shell value ends (handles quoted and unquoted values)
func findValueEnd(s string, start int) int {
	if start >= len(s) {
		return start
	}

	// Handle single-quoted value
	if s[start] == '\'' {
		end := strings.Index(s[start+1:], "'")
		if end == -1 {
			return len(s)
		}
		return start + end + 2
	}

	// Handle double-quoted value
	if s[start] == '"' {
		end := strings.Index(s[start+1:], "\"")
		if end == -1 {
			return len(s)
		}
		return start + end + 2
	}

	// Unquoted: find next whitespace
	for i := start; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '\t' || s[i] == '\n' {
			return i
		}
	}
	return len(s)
}
