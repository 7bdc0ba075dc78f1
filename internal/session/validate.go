package session

import (
	"fmt"
	"regexp"
)

// Session names become path components under ~/.beacon and part of the
// daemon socket path, so the alphabet is kept strictly filesystem-safe.
var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName checks that name is usable as a beacon session name.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}
