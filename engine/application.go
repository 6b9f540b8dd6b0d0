package engine

type ApplicationConfig struct {
	// The application name used in windowing, if applicable. Overrides the configured title.
	Name string
	// Path of the TOML device configuration. Empty means core.DEFAULT_CONFIG_FILE.
	ConfigPath string
	// Log level used until the configuration is loaded.
	LogLevel string
}
