package trajectory

import "fmt"

// DuplicateNameError reports a name collision where uniqueness is required,
// such as adding a parameter that already exists or recording a run under an
// identifier that is already taken.
type DuplicateNameError struct {
	Kind string // "parameter", "run", ...
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.Name)
}

// NotFoundError reports a lookup of an absent parameter, result, or run.
type NotFoundError struct {
	Kind string // "parameter", "result", "run", "trajectory"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}
