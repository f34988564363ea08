package parse

import "fmt"

// ParseError reports that a whole payload could not be decoded. The cycle
// yields no items for that source.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "parse error"
	}
	return fmt.Sprintf("parse %s: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DateError reports a release date that matches none of the known layouts.
// It only excludes the item from same-day matching.
type DateError struct {
	Raw string
}

func (e *DateError) Error() string {
	if e == nil {
		return "date error"
	}
	return fmt.Sprintf("unrecognized date %q", e.Raw)
}
