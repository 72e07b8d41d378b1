// Package config loads capture settings from defaults, a YAML file and
// the environment.
package config

import (
	"os"
	"regexp"
)

// envRef matches ${VAR} and ${VAR:-fallback}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv substitutes ${VAR} and ${VAR:-fallback} references in a config
// document. A set, non-empty variable wins; otherwise the fallback is used,
// and an unset variable without one expands to "".
//
// Required values such as an adapter url fail later in Validate.
func ExpandEnv(input string) string {
	return envRef.ReplaceAllStringFunc(input, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		return m[2]
	})
}
