package domain

import (
	"errors"
	"fmt"
	"strings"
)

type ConfigValidator struct{}

func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

func (v *ConfigValidator) Validate(cfg *RunConfig) error {
	if cfg == nil {
		return errors.New("run config cannot be nil")
	}

	if strings.TrimSpace(cfg.Port) == "" {
		return &ValidationError{Field: "port", Err: ErrEmptyPort}
	}

	if cfg.BaudRate <= 0 {
		return &ValidationError{Field: "baud", Err: fmt.Errorf("baud rate must be positive, got %d", cfg.BaudRate)}
	}

	if len(cfg.Commands) == 0 {
		return &ValidationError{Field: "commands", Err: ErrEmptyCommands}
	}

	for i, c := range cfg.Commands {
		if strings.TrimSpace(c) == "" {
			return &ValidationError{Field: "commands", Err: fmt.Errorf("command %d is blank", i+1)}
		}
	}

	if cfg.Cycles < 0 {
		return &ValidationError{Field: "cycles", Err: ErrNegativeCycles}
	}

	if cfg.Delay < 0 {
		return &ValidationError{Field: "delay", Err: errors.New("delay cannot be negative")}
	}

	if cfg.Profile.SuccessCode == cfg.Profile.TimeoutCode {
		return &ValidationError{Field: "profile", Err: ErrCodeClash}
	}

	if strings.TrimSpace(cfg.InstanceID) == "" {
		return &ValidationError{Field: "id", Err: errors.New("instance id cannot be empty")}
	}

	return nil
}
