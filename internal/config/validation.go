package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yoanbernabeu/pilauncher/internal/security"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

var processNameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidateLauncherConfig validates the launcher configuration
func ValidateLauncherConfig(config *LauncherConfig) ValidationErrors {
	var errors ValidationErrors

	if config.TargetName == "" {
		errors = append(errors, ValidationError{
			Field:   "target",
			Message: "target name is required",
		})
	} else if err := security.ValidateTargetName(config.TargetName); err != nil {
		errors = append(errors, ValidationError{
			Field:   "target",
			Message: err.Error(),
		})
	}

	if config.OutDirectory == "" {
		errors = append(errors, ValidationError{
			Field:   "out_directory",
			Message: "output directory is required",
		})
	}

	for name := range config.EnvVariables {
		if err := security.ValidateEnvKey(name); err != nil {
			errors = append(errors, ValidationError{
				Field:   "env." + name,
				Message: err.Error(),
			})
		}
	}

	if err := security.ValidateRemotePath(config.TestResultXMLPath); err != nil {
		errors = append(errors, ValidationError{
			Field:   "result_xml",
			Message: err.Error(),
		})
	}

	if config.Username != "" {
		if err := security.ValidateUnixUser(config.Username); err != nil {
			errors = append(errors, ValidationError{
				Field:   "username",
				Message: err.Error(),
			})
		}
	}

	errors = append(errors, ValidateStaleProcesses(config.StaleProcesses)...)

	return errors
}

// ValidateStaleProcesses checks that each pattern is a plain process name.
// Patterns are embedded in a remote pkill command.
func ValidateStaleProcesses(patterns []string) ValidationErrors {
	var errors ValidationErrors
	for i, p := range patterns {
		if !processNameRe.MatchString(p) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("stale_processes[%d]", i),
				Message: fmt.Sprintf("invalid process name %q", p),
			})
		}
	}
	return errors
}

// ValidateDeviceConfig validates a device configuration
func ValidateDeviceConfig(config *DeviceConfig) ValidationErrors {
	var errors ValidationErrors

	if config.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "host",
			Message: "device host is required",
		})
	}

	if config.User == "" {
		errors = append(errors, ValidationError{
			Field:   "user",
			Message: "device user is required",
		})
	} else if err := security.ValidateUnixUser(config.User); err != nil {
		errors = append(errors, ValidationError{
			Field:   "user",
			Message: err.Error(),
		})
	}

	if config.Port < 1 || config.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "port",
			Message: "port must be between 1 and 65535",
		})
	}

	return errors
}
