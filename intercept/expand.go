package intercept

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
)

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes $VAR and ${VAR} in a table document. A braced
// reference to an unset variable is an error; $$ yields a literal $.
func expandEnv(doc string) (string, error) {
	const dollar = "\x00MEMO_DOLLAR\x00"
	doc = strings.ReplaceAll(doc, "$$", dollar)

	var missing []string
	for _, m := range envRef.FindAllStringSubmatch(doc, -1) {
		if _, ok := os.LookupEnv(m[1]); !ok && !slices.Contains(missing, m[1]) {
			missing = append(missing, m[1])
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}

	return strings.ReplaceAll(os.ExpandEnv(doc), dollar, "$"), nil
}
