// Package validator checks rendered digests: table shape, ranking order and
// the integrity stamp.
package validator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"freshctx/internal/formatter"
	"freshctx/internal/models"
	"freshctx/pkg/metadata"
)

// Validation errors.
var (
	ErrNoRecordTable  = errors.New("no record table found")
	ErrCountMismatch  = errors.New("record count does not match metadata")
	ErrRankOrder      = errors.New("records are not ordered newest first")
	ErrInvalidPublish = errors.New("invalid published value")
)

// recordHeader is the first cell of the digest record table.
const recordHeader = "#"

// recordColumns is # | Published | Provider | Source | Title.
const recordColumns = 5

// ValidationError represents a validation error with context.
type ValidationError struct {
	Err     error
	Field   string
	Value   string
	Message string
	Line    int
	Row     int
}

func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}

	return e.Message
}

func (e ValidationError) Unwrap() error {
	return e.Err
}

// ValidationStats contains validation statistics.
type ValidationStats struct {
	TotalRows   int
	ValidRows   int
	InvalidRows int
	UndatedRows int
}

// ValidationResult contains validation results.
type ValidationResult struct {
	Meta    *metadata.Metadata
	Errors  []ValidationError
	Stats   ValidationStats
	IsValid bool
}

// Validate runs every check against a rendered digest.
func Validate(content string) *ValidationResult {
	result := ValidateTable(content)

	integrity := ValidateIntegrity(content)
	result.Meta = integrity.Meta

	if !integrity.IsValid {
		result.IsValid = false
		result.Errors = append(result.Errors, integrity.Errors...)
	}

	if result.Meta != nil && integrity.IsValid && result.Meta.Records != result.Stats.TotalRows {
		result.IsValid = false
		result.Errors = append(result.Errors, ValidationError{
			Err:     ErrCountMismatch,
			Message: fmt.Sprintf("metadata lists %d record(s), table has %d", result.Meta.Records, result.Stats.TotalRows),
		})
	}

	return result
}

// ValidateIntegrity checks the metadata stamp of a digest.
func ValidateIntegrity(content string) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	meta, err := metadata.Verify(content)
	result.Meta = meta

	if err != nil {
		result.IsValid = false
		result.Errors = append(result.Errors, ValidationError{
			Err:     err,
			Message: fmt.Sprintf("integrity check failed: %v", err),
		})
	}

	return result
}

// ValidateTable checks the record table: sequential numbering, a display
// timestamp or the unknown-date marker in every row, and newest-first order
// with undated rows last. A digest without records has no table and passes.
func ValidateTable(content string) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	lines := strings.Split(content, "\n")
	inTable := false

	var (
		prev       time.Time
		seenDated  bool
		seenUndate bool
	)

	for lineNum, line := range lines {
		trimmed := strings.TrimSpace(line)

		if !strings.HasPrefix(trimmed, "|") {
			inTable = false
			continue
		}

		cells := formatter.SplitRow(trimmed)

		if !inTable {
			inTable = len(cells) > 0 && cells[0] == recordHeader
			continue
		}

		if formatter.IsSeparatorRow(cells) {
			continue
		}

		result.Stats.TotalRows++

		errs, published := validateRow(cells, lineNum+1, result.Stats.TotalRows)

		if published.IsZero() && len(errs) == 0 {
			result.Stats.UndatedRows++
			seenUndate = true
		} else if !published.IsZero() {
			switch {
			case seenUndate:
				errs = append(errs, ValidationError{
					Err:     ErrRankOrder,
					Line:    lineNum + 1,
					Row:     result.Stats.TotalRows,
					Field:   "published",
					Value:   cells[1],
					Message: "dated record follows an undated one",
				})
			case seenDated && published.After(prev):
				errs = append(errs, ValidationError{
					Err:     ErrRankOrder,
					Line:    lineNum + 1,
					Row:     result.Stats.TotalRows,
					Field:   "published",
					Value:   cells[1],
					Message: fmt.Sprintf("%s is newer than the row above", cells[1]),
				})
			}

			prev = published
			seenDated = true
		}

		if len(errs) > 0 {
			result.IsValid = false
			result.Stats.InvalidRows++
			result.Errors = append(result.Errors, errs...)
		} else {
			result.Stats.ValidRows++
		}
	}

	if result.Stats.TotalRows == 0 && strings.Contains(content, "| "+recordHeader+" ") {
		result.IsValid = false
		result.Errors = append(result.Errors, ValidationError{Err: ErrNoRecordTable, Message: "record table has no rows"})
	}

	return result
}

// validateRow checks one data row and returns its parsed publication time
// (zero for the unknown-date marker or an invalid value).
func validateRow(cells []string, lineNum, rowNum int) ([]ValidationError, time.Time) {
	var errs []ValidationError

	if len(cells) < recordColumns {
		return []ValidationError{{
			Line:    lineNum,
			Row:     rowNum,
			Message: fmt.Sprintf("expected %d columns (#, Published, Provider, Source, Title), got %d", recordColumns, len(cells)),
		}}, time.Time{}
	}

	if n, err := strconv.Atoi(cells[0]); err != nil || n != rowNum {
		errs = append(errs, ValidationError{
			Line:    lineNum,
			Row:     rowNum,
			Field:   "#",
			Value:   cells[0],
			Message: fmt.Sprintf("expected row number %d", rowNum),
		})
	}

	row := models.ContextRecord{PublishedAt: cells[1]}

	if cells[1] != models.UnknownDate && !row.HasDate() {
		errs = append(errs, ValidationError{
			Err:     ErrInvalidPublish,
			Line:    lineNum,
			Row:     rowNum,
			Field:   "published",
			Value:   cells[1],
			Message: fmt.Sprintf("published '%s' is neither %q nor %q", cells[1], models.DisplayLayout, models.UnknownDate),
		})
	}

	if cells[2] == "" {
		errs = append(errs, ValidationError{
			Line:    lineNum,
			Row:     rowNum,
			Field:   "provider",
			Message: "provider field is empty",
		})
	}

	if cells[4] == "" {
		errs = append(errs, ValidationError{
			Line:    lineNum,
			Row:     rowNum,
			Field:   "title",
			Message: "title field is empty",
		})
	}

	return errs, row.PublishedTime()
}

// String returns string representation of validation result.
func (r *ValidationResult) String() string {
	status := "✅ VALID"
	if !r.IsValid {
		status = "❌ INVALID"
	}

	return fmt.Sprintf(
		"%s | Rows: %d | Valid: %d | Invalid: %d | Undated: %d",
		status,
		r.Stats.TotalRows,
		r.Stats.ValidRows,
		r.Stats.InvalidRows,
		r.Stats.UndatedRows,
	)
}

// Err joins every validation error, or returns nil for a valid result.
func (r *ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}

	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}

	return errors.Join(errs...)
}
