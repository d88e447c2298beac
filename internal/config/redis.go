package config

import (
	"github.com/rs/zerolog/log"
)

// GetRedisURL returns the Redis address for the persistence collaborator.
// Empty means Redis is not configured and in-memory storage is used.
func GetRedisURL() string {
	value := GetEnvOrDefault("REDIS_URL", "")
	if value == "" {
		log.Debug().Msg("Redis URL not set - falling back to in-memory storage")
	}
	return value
}

func GetRedisPassword() string {
	return GetEnvOrDefault("REDIS_PASSWORD", "")
}
