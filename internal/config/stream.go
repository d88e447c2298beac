package config

import "time"

// GetStopGracePeriod returns how long a stop directive waits for the stream
// to settle into a terminal state after cancelling the upstream request.
func GetStopGracePeriod() time.Duration {
	return parseEnvDuration("STOP_GRACE_PERIOD", 5*time.Second)
}

// GetStreamKeepAliveInterval returns the spacing of SSE comment frames sent
// while a stream is quiet, so intermediaries keep the connection open during
// long reasoning gaps.
func GetStreamKeepAliveInterval() time.Duration {
	return parseEnvDuration("STREAM_KEEPALIVE_INTERVAL", 15*time.Second)
}
