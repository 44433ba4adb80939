package util

import (
	"os"
	"strings"
)

// GetEnvironmentVariables snapshots the process environment as a map. Entries
// without an "=" are kept with an empty value.
func GetEnvironmentVariables() map[string]string {
	environmentVariables := map[string]string{}

	for _, variable := range os.Environ() {
		name, value, _ := strings.Cut(variable, "=")

		environmentVariables[name] = value
	}

	return environmentVariables
}
