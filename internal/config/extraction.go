package config

import "time"

// GetExtractionTimeout returns the per-extractor time bound. Exceeding it
// fails that attachment only, never the whole batch.
func GetExtractionTimeout() time.Duration {
	return parseEnvDuration("EXTRACTION_TIMEOUT", 30*time.Second)
}

// GetExtractionWorkers returns the concurrent worker limit for one upload
// batch.
func GetExtractionWorkers() int {
	workers := parseEnvInt("EXTRACTION_WORKERS", 4)
	if workers < 1 {
		return 1
	}
	return workers
}

// GetVisionCredentials returns the Google Cloud credentials reference used by
// the image OCR engine: either a path to a credentials file or inline JSON.
// Empty means the engine is unavailable.
func GetVisionCredentials() string {
	creds := GetEnvOrDefault("GOOGLE_APPLICATION_CREDENTIALS_JSON", "")
	if creds == "" {
		creds = GetEnvOrDefault("GOOGLE_APPLICATION_CREDENTIALS", "")
	}
	return creds
}
