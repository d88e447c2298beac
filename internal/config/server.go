package config

// GetServerPort returns the HTTP listen port.
func GetServerPort() string {
	return GetEnvOrDefault("PORT", "8080")
}
