package process

import (
	"fmt"
	"time"
)

// Config describes an external command that drafts responses.
type Config struct {
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Dir         string            `yaml:"dir" json:"dir"`
	Timeout     time.Duration     `yaml:"timeout" json:"timeout"`
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("process proposer: command is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("process proposer: timeout must not be negative")
	}
	return nil
}
