package errors

import "errors"

var hints = map[string]string{
	ErrCodeMissingFragment:       "Add the snippet source under the snippets directory, or run `koisite snippets` to regenerate fragments.",
	ErrCodeMalformedMarker:       "Markers take the form <!-- SNIPPET name --> with a name of letters, digits, '-', '_' or '.'.",
	ErrCodeUnknownHighlightClass: "Highlight runs use the digits 1 to 4 after the ° delimiter.",
	ErrCodeCommandFailed:         "Check that the command is installed and runs on its own from the site root.",
	ErrCodeIOFailure:             "Check that the file exists and is readable.",
	ErrCodeInvalidConfig:         "Run `koisite config validate` for details.",
}

// Hint returns a one-line suggestion for the innermost typed error in err's
// chain, or "" when none applies.
func Hint(err error) string {
	hint := ""
	for cur := err; cur != nil; {
		var e *Error
		if !errors.As(cur, &e) {
			break
		}
		if h, ok := hints[e.Code]; ok {
			hint = h
		}
		cur = e.Cause
	}
	return hint
}
