package paths

import "github.com/matheus3301/huddle/internal/config"

const DefaultInstance = "main"

// Resolve picks the active instance: the flag value, then the config file's
// default_instance, then "main".
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultInstance != "" {
		return cfg.DefaultInstance
	}
	return DefaultInstance
}
