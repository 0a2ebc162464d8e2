package secret

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
)

var requiredVar = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnvStrict expands $VAR and ${VAR} from the process environment.
// ${VAR} marks a required variable: if any are unset the error lists them
// all. An unset $VAR expands to "". $$ is a literal $.
func ExpandEnvStrict(s string) (string, error) {
	return expandEnv(s, os.LookupEnv)
}

func expandEnv(s string, lookup func(string) (string, bool)) (string, error) {
	parts := strings.Split(s, "$$")

	var missing []string
	for _, part := range parts {
		for _, m := range requiredVar.FindAllStringSubmatch(part, -1) {
			if _, ok := lookup(m[1]); !ok && !slices.Contains(missing, m[1]) {
				missing = append(missing, m[1])
			}
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	get := func(name string) string {
		v, _ := lookup(name)
		return v
	}
	for i, part := range parts {
		parts[i] = os.Expand(part, get)
	}
	return strings.Join(parts, "$"), nil
}
