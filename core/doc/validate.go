package doc

import (
	"errors"
	"fmt"
)

// validateParagraphFn is injectable for testing error type handling.
var validateParagraphFn = ValidateParagraph

// validateTableFn is injectable for testing error type handling.
var validateTableFn = ValidateTable

// ValidationError represents a validation error with context.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// newValidationError creates a new ValidationError.
func newValidationError(path, message string) error {
	return &ValidationError{Path: path, Message: message}
}

// reroot prefixes nested validation errors with the parent path.
func reroot(errs []error, path string) []error {
	var out []error
	for _, err := range errs {
		var ve *ValidationError
		if errors.As(err, &ve) {
			out = append(out, newValidationError(
				fmt.Sprintf("%s.%s", path, ve.Path), ve.Message))
		} else {
			out = append(out, newValidationError(path, err.Error()))
		}
	}
	return out
}

// ValidateDocument validates a Document and returns all validation errors.
func ValidateDocument(d *Document) []error {
	var errs []error

	for i, b := range d.Blocks {
		path := fmt.Sprintf("blocks[%d]", i)
		switch {
		case b.Paragraph != nil && b.Table != nil:
			errs = append(errs, newValidationError(path,
				"block has both paragraph and table set"))
		case b.Paragraph != nil:
			errs = append(errs, reroot(validateParagraphFn(b.Paragraph), path)...)
		case b.Table != nil:
			errs = append(errs, reroot(validateTableFn(b.Table), path)...)
		default:
			errs = append(errs, newValidationError(path, "empty block"))
		}
	}

	return errs
}

// ValidateParagraph validates a Paragraph and returns all validation errors.
func ValidateParagraph(p *Paragraph) []error {
	var errs []error

	if p.Numbering != nil && p.Numbering.Level < 0 {
		errs = append(errs, newValidationError("paragraph.numbering",
			"Level cannot be negative"))
	}

	for i, r := range p.Runs {
		errs = append(errs, reroot(ValidateRun(r), fmt.Sprintf("runs[%d]", i))...)
	}

	return errs
}

// ValidateRun validates a Run and returns all validation errors.
func ValidateRun(r *Run) []error {
	var errs []error

	n := r.RuneLen()
	prev := 0
	for i, m := range r.Markers {
		path := fmt.Sprintf("markers[%d]", i)
		if !m.Kind.IsValid() {
			errs = append(errs, newValidationError(path,
				fmt.Sprintf("invalid MarkerKind: %q", m.Kind)))
		}
		if !m.Boundary.IsValid() {
			errs = append(errs, newValidationError(path,
				fmt.Sprintf("invalid Boundary: %q", m.Boundary)))
		}
		if m.ID == "" {
			errs = append(errs, newValidationError(path, "ID is required"))
		}
		if m.Offset < 0 || m.Offset > n {
			errs = append(errs, newValidationError(path,
				fmt.Sprintf("Offset %d outside run of %d runes", m.Offset, n)))
		}
		if m.Offset < prev {
			errs = append(errs, newValidationError(path,
				"Markers must be sorted by ascending Offset"))
		}
		if m.Offset >= 0 {
			prev = m.Offset
		}
	}

	return errs
}

// ValidateTable validates a Table and returns all validation errors.
func ValidateTable(t *Table) []error {
	var errs []error

	for i, row := range t.Rows {
		for j, cell := range row.Cells {
			path := fmt.Sprintf("rows[%d].cells[%d]", i, j)
			for k, p := range cell.Paragraphs {
				errs = append(errs, reroot(validateParagraphFn(p),
					fmt.Sprintf("%s.paragraphs[%d]", path, k))...)
			}
		}
	}

	return errs
}

// Validate validates the entire document and returns all validation errors.
// This is a convenience function that calls ValidateDocument.
func Validate(d *Document) []error {
	return ValidateDocument(d)
}

// IsValid returns true if the document has no validation errors.
func IsValid(d *Document) bool {
	return len(Validate(d)) == 0
}
