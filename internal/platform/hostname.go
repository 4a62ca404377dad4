package platform

import (
	"fmt"
	"regexp"
	"strings"
)

var labelRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// ValidateSiteName checks that a site name is a lowercase DNS hostname.
// Site names end up in shell-free argv, file names, and database names, so
// the character set is kept deliberately small.
func ValidateSiteName(name string) error {
	if name == "" {
		return fmt.Errorf("site name is empty")
	}
	if len(name) > 253 {
		return fmt.Errorf("site name %q is longer than 253 characters", name)
	}
	for _, label := range strings.Split(name, ".") {
		if !labelRe.MatchString(label) {
			return fmt.Errorf("invalid site name %q: labels must be lowercase alphanumerics or '-', not starting or ending with '-'", name)
		}
	}
	return nil
}

// DatabaseName derives the tenant's logical database name from its site name.
// Example: acme.example.com -> acme_example_com
func DatabaseName(site string) string {
	return strings.ReplaceAll(site, ".", "_")
}
