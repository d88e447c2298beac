package config

// GetUpstreamAPIKey returns the server-side default API key for the upstream
// model provider. Requests may override it with their own key, which is never
// persisted.
func GetUpstreamAPIKey() string {
	return GetEnvOrDefault("UPSTREAM_API_KEY", "")
}

// GetUpstreamBaseURL returns the base URL of the upstream provider. The wire
// protocol is OpenAI-compatible; DeepSeek is the default.
func GetUpstreamBaseURL() string {
	return GetEnvOrDefault("UPSTREAM_BASE_URL", "https://api.deepseek.com/v1")
}

// GetUpstreamModel returns the default chat model.
func GetUpstreamModel() string {
	return GetEnvOrDefault("UPSTREAM_MODEL", "deepseek-chat")
}

// GetUpstreamReasonerModel returns the reasoning-capable model used when a
// request asks for reasoning output.
func GetUpstreamReasonerModel() string {
	return GetEnvOrDefault("UPSTREAM_REASONER_MODEL", "deepseek-reasoner")
}
