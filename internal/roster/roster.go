// Package roster reads the list of former employees to reactivate.
//
// The file is a CSV with a header row. Column names are matched
// case-insensitively; email is required and employee type is optional.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"reactivatetool/internal/common/validation"
)

// ErrNoEmailColumn is returned when the header has no recognised email column.
var ErrNoEmailColumn = errors.New("CSV header has no email column (expected one of: email, mail, userPrincipalName, upn)")

var (
	emailAliases        = []string{"email", "mail", "emailaddress", "email address", "userprincipalname", "upn"}
	employeeTypeAliases = []string{"employeetype", "employee type", "employee_type", "type"}
)

// Record is one row of the roster.
type Record struct {
	Email        string `json:"email"`
	EmployeeType string `json:"employeeType,omitempty"`
	Line         int    `json:"line"`
}

// RowError describes a row rejected before any directory call.
type RowError struct {
	Line   int
	Email  string
	Reason string
}

func (e RowError) Error() string {
	if e.Email == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("line %d (%s): %s", e.Line, e.Email, e.Reason)
}

// Read opens path and parses it with Parse.
func Read(path string) ([]Record, []RowError, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, fmt.Errorf("CSV path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("CSV file not found: %s", path)
		}
		return nil, nil, fmt.Errorf("opening CSV file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads records from r. Invalid and duplicate rows are returned as
// RowErrors; only a structural problem (unreadable data, missing header or
// missing email column) yields an error.
func Parse(r io.Reader) ([]Record, []RowError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("CSV file is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	emailCol, typeCol := -1, -1
	for i, name := range header {
		n := strings.ToLower(strings.TrimSpace(name))
		if emailCol < 0 && contains(emailAliases, n) {
			emailCol = i
		} else if typeCol < 0 && contains(employeeTypeAliases, n) {
			typeCol = i
		}
	}
	if emailCol < 0 {
		return nil, nil, ErrNoEmailColumn
	}

	var (
		records []Record
		rowErrs []RowError
		seen    = make(map[string]int)
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				rowErrs = append(rowErrs, RowError{Line: pe.StartLine, Reason: pe.Err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("reading CSV: %w", err)
		}
		if blank(row) {
			continue
		}
		line, _ := cr.FieldPos(0)

		email := ""
		if emailCol < len(row) {
			email = validation.NormalizeEmail(row[emailCol])
		}
		employeeType := ""
		if typeCol >= 0 && typeCol < len(row) {
			employeeType = strings.TrimSpace(row[typeCol])
		}

		if err := validation.ValidateEmail(email); err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Email: email, Reason: err.Error()})
			continue
		}
		if first, dup := seen[email]; dup {
			rowErrs = append(rowErrs, RowError{Line: line, Email: email, Reason: fmt.Sprintf("duplicate of line %d", first)})
			continue
		}
		seen[email] = line
		records = append(records, Record{Email: email, EmployeeType: employeeType, Line: line})
	}
	return records, rowErrs, nil
}

// Filter returns the records whose email equals email (case-insensitive).
func Filter(records []Record, email string) []Record {
	want := validation.NormalizeEmail(email)
	var out []Record
	for _, r := range records {
		if r.Email == want {
			out = append(out, r)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func blank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
