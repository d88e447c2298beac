package config

// GetContextTokenBudget returns the token budget for assembled history. When
// history exceeds it, the oldest complete non-pinned turns are dropped first.
func GetContextTokenBudget() int {
	budget := parseEnvInt("CONTEXT_TOKEN_BUDGET", 64000)
	if budget < 1 {
		return 64000
	}
	return budget
}
