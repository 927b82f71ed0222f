package app

import (
	"os"
	"strings"
)

const (
	envMetricsEnabled = "MCPBRIDGE_METRICS_ENABLED"
	envHealthzEnabled = "MCPBRIDGE_HEALTHZ_ENABLED"
)

// envBoolOptional parses a boolean environment variable. The second result
// is false when the variable is unset or not a recognized boolean.
func envBoolOptional(key string) (bool, bool) {
	val := strings.TrimSpace(os.Getenv(key))
	switch {
	case val == "":
		return false, false
	case val == "1" || strings.EqualFold(val, "true"):
		return true, true
	case val == "0" || strings.EqualFold(val, "false"):
		return false, true
	default:
		return false, false
	}
}
