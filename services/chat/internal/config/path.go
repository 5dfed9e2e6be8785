package config

import "os"

// ConfigPath is the default config file location, relative to the service
// working directory. SCRIPTURECHAT_CONFIG overrides it.
var ConfigPath = defaultConfigPath()

func defaultConfigPath() string {
	if v := os.Getenv("SCRIPTURECHAT_CONFIG"); v != "" {
		return v
	}
	return "config.yaml"
}
