// Package etl implements the extraction, transformation and loading of
// Personio HR data into the fixed CSV export schema.
package etl

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Attribute is one entry of the Personio attribute envelope. Values may be
// scalars or nested objects (department, position, supervisor).
type Attribute struct {
	Label string          `json:"label"`
	Value json.RawMessage `json:"value"`
}

// Attributes is the master-data attribute map keyed by attribute name.
type Attributes map[string]Attribute

// StringValue resolves an attribute to its display string. Nested objects
// resolve through their label or name field; absent values yield "".
func (a Attributes) StringValue(key string) string {
	attr, ok := a[key]
	if !ok || len(attr.Value) == 0 || string(attr.Value) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(attr.Value, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(attr.Value, &n); err == nil {
		return formatNumber(n)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(attr.Value, &obj); err == nil {
		for _, field := range []string{"label", "name"} {
			var nested string
			if raw, ok := obj[field]; ok && json.Unmarshal(raw, &nested) == nil && nested != "" {
				return nested
			}
		}
	}

	return ""
}

// ObjectValue resolves an attribute whose value is a nested object.
func (a Attributes) ObjectValue(key string) map[string]json.RawMessage {
	attr, ok := a[key]
	if !ok || len(attr.Value) == 0 {
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(attr.Value, &obj); err != nil {
		return nil
	}
	return obj
}

// formatNumber renders a JSON number in minimal decimal form ("70000", "38.5").
// Integers stay on the integer path so large ids keep full precision.
func formatNumber(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := n.Float64(); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return n.String()
}

// RawEmployeeRecord is the per-employee union of the three source resources,
// keyed by employee id. Master data is authoritative; the employment and
// compensation parts may be absent.
type RawEmployeeRecord struct {
	EmployeeID   string
	Master       Attributes
	Employment   *EmploymentDetail
	Compensation *Compensation
}

// EmploymentDetail is one record of the employment-details resource.
type EmploymentDetail struct {
	EmployeeID         json.Number `json:"employee_id"`
	WeeklyWorkingHours *float64    `json:"weekly_working_hours"`
	EmploymentType     string      `json:"employment_type"`
	CostCenter         string      `json:"cost_center"`
}

// Compensation is one record of the compensation resource.
type Compensation struct {
	EmployeeID  json.Number `json:"employee_id"`
	FixedSalary *float64    `json:"fixed_salary"`
	Currency    string      `json:"currency"`
	Interval    string      `json:"interval"`
}

// DocumentRef identifies one downloadable employee document.
type DocumentRef struct {
	EmployeeID string
	DocumentID string
	Title      string
	Extension  string
}

// Filename derives the on-disk filename from title and extension,
// stripped to filesystem-safe characters.
func (d DocumentRef) Filename() string {
	title := d.Title
	if title == "" {
		title = "document_" + d.DocumentID
	}

	ext := strings.Trim(d.Extension, ".")
	name := title
	if ext != "" {
		name = title + "." + ext
	}

	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '_' || r == '-' || r == ' ':
			return r
		default:
			return -1
		}
	}, name))
}
