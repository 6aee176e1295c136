package etl

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EmployeeColumns is the published export schema, in order. Header names and
// field order are fixed; changing them is a schema version change.
var EmployeeColumns = []string{
	"employeeID",
	"First name",
	"Last name",
	"email",
	"status",
	"Hire date",
	"Termination date",
	"position",
	"department",
	"team",
	"Supervisor name",
	"location",
	"Weekly working hours",
	"Employment type",
	"Cost center",
	"Base Salary",
	"Last modified",
}

// EmployeeRow is one flattened, formatted export row. Missing values render
// as empty strings, never as placeholder words.
type EmployeeRow struct {
	EmployeeID         string
	FirstName          string
	LastName           string
	Email              string
	Status             string
	HireDate           string
	TerminationDate    string
	Position           string
	Department         string
	Team               string
	SupervisorName     string
	Location           string
	WeeklyWorkingHours string
	EmploymentType     string
	CostCenter         string
	BaseSalary         string
	LastModified       string
}

// Values returns the row fields in EmployeeColumns order.
func (r EmployeeRow) Values() []string {
	return []string{
		r.EmployeeID,
		r.FirstName,
		r.LastName,
		r.Email,
		r.Status,
		r.HireDate,
		r.TerminationDate,
		r.Position,
		r.Department,
		r.Team,
		r.SupervisorName,
		r.Location,
		r.WeeklyWorkingHours,
		r.EmploymentType,
		r.CostCenter,
		r.BaseSalary,
		r.LastModified,
	}
}

// Transformer flattens raw nested records into the fixed export schema.
// It is pure: no I/O, no mutation of its input.
type Transformer struct {
	logger zerolog.Logger
}

// NewTransformer creates a transformer.
func NewTransformer() *Transformer {
	return &Transformer{
		logger: log.With().Str("component", "transformer").Logger(),
	}
}

// Flatten maps one raw record to an export row. Missing optional fields
// become empty strings; only a record without an employee id is rejected.
func (t *Transformer) Flatten(rec RawEmployeeRecord) (EmployeeRow, error) {
	if rec.EmployeeID == "" {
		return EmployeeRow{}, fmt.Errorf("record is missing employee id")
	}

	attrs := rec.Master

	row := EmployeeRow{
		EmployeeID:      rec.EmployeeID,
		FirstName:       attrs.StringValue("first_name"),
		LastName:        attrs.StringValue("last_name"),
		Email:           attrs.StringValue("email"),
		Status:          attrs.StringValue("status"),
		HireDate:        formatDate(attrs.StringValue("hire_date")),
		TerminationDate: formatDate(attrs.StringValue("termination_date")),
		Position:        attrs.StringValue("position"),
		Department:      attrs.StringValue("department"),
		Team:            attrs.StringValue("team"),
		SupervisorName:  supervisorName(attrs),
		Location:        attrs.StringValue("office"),
		LastModified:    formatDate(attrs.StringValue("last_modified_at")),
	}

	if rec.Employment != nil {
		if rec.Employment.WeeklyWorkingHours != nil {
			row.WeeklyWorkingHours = formatFloat(*rec.Employment.WeeklyWorkingHours)
		}
		row.EmploymentType = rec.Employment.EmploymentType
		row.CostCenter = rec.Employment.CostCenter
	}

	if rec.Compensation != nil && rec.Compensation.FixedSalary != nil {
		row.BaseSalary = formatFloat(*rec.Compensation.FixedSalary)
	}

	return row, nil
}

// FlattenAll flattens all records, skipping (with a warning) the ones that
// are structurally unparsable instead of failing the run.
func (t *Transformer) FlattenAll(records []RawEmployeeRecord) []EmployeeRow {
	rows := make([]EmployeeRow, 0, len(records))
	for _, rec := range records {
		row, err := t.Flatten(rec)
		if err != nil {
			t.logger.Warn().Err(err).Msg("Skipping record")
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// formatDate normalizes a date-like value to YYYY-MM-DD, or blank.
// Source values arrive either as plain dates or as ISO timestamps.
func formatDate(value string) string {
	if value == "" {
		return ""
	}
	if i := strings.IndexByte(value, 'T'); i >= 0 {
		return value[:i]
	}
	return value
}

// formatFloat renders a number in minimal decimal form.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// supervisorName joins the supervisor object's first and last name.
func supervisorName(attrs Attributes) string {
	obj := attrs.ObjectValue("supervisor")
	if obj == nil {
		return ""
	}

	var first, last string
	if raw, ok := obj["first_name"]; ok {
		_ = json.Unmarshal(raw, &first)
	}
	if raw, ok := obj["last_name"]; ok {
		_ = json.Unmarshal(raw, &last)
	}

	return strings.TrimSpace(first + " " + last)
}
