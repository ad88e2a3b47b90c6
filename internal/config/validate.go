package config

import (
	"fmt"
	"strings"
)

// Validate checks the settings the startup bootstrap cannot run without.
// The retention loop itself tolerates an incomplete cache section.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		cfg  SectionConfig
	}{
		{name: "media", cfg: c.Storage.Media},
		{name: "cache", cfg: c.Storage.Cache.SectionConfig},
	}

	for _, s := range sections {
		if strings.TrimSpace(s.cfg.ConnectionString) == "" {
			return fmt.Errorf("missing required setting 'storage.%s.connectionString'", s.name)
		}
		if strings.TrimSpace(s.cfg.ContainerName) == "" {
			return fmt.Errorf("missing required setting 'storage.%s.containerName'", s.name)
		}
	}

	for i, n := range c.Notifications {
		if strings.TrimSpace(n.Type) == "" {
			return fmt.Errorf("notifications[%d].type is required (webhook or email)", i)
		}
	}
	return nil
}
