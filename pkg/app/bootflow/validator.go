package bootflow

import (
	"regexp"

	"github.com/deploymenttheory/go-bootstd/pkg/app"
)

// labelPattern matches a uclass name with an optional device number
var labelPattern = regexp.MustCompile(`^[a-z][a-z_]*[0-9]*$`)

// Validate validates a bootflow request
func (r *Request) Validate() error {
	if r.Label != "" && !labelPattern.MatchString(r.Label) {
		return app.NewError(app.ErrCodeInvalidInput, "invalid bootdev label: "+r.Label, nil)
	}
	if r.Boot && r.All {
		return app.NewError(app.ErrCodeInvalidInput, "--all lists failed bootflows and cannot be combined with --boot", nil)
	}
	for _, name := range r.Bootmeths {
		if name == "" {
			return app.NewError(app.ErrCodeInvalidInput, "empty bootmeth name", nil)
		}
	}
	return nil
}
