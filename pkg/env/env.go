// Package env reads process settings that must be known before config.Load,
// such as the log format used while config itself is being parsed.
package env

import (
	"os"
	"strings"
)

const prefix = "MARKETPLACE_"

// Get returns MARKETPLACE_<key>, then <key>, then fallback. Blank values are
// treated as unset.
func Get(key, fallback string) string {
	for _, name := range []string{prefix + key, key} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return fallback
}
