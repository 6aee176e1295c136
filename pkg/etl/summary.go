package etl

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// SummaryColumns is the department summary schema, in order.
var SummaryColumns = []string{"department", "employee_count", "average_base_salary"}

// UnknownDepartment is the bucket for rows with a blank department.
const UnknownDepartment = "Unknown"

// DepartmentStat is one department summary row. AverageBaseSalary is nil
// when no row in the bucket carried a parseable salary.
type DepartmentStat struct {
	Department        string
	EmployeeCount     int
	AverageBaseSalary *float64
}

// Values returns the stat fields in SummaryColumns order. An undefined
// average renders as an empty string, not zero.
func (s DepartmentStat) Values() []string {
	avg := ""
	if s.AverageBaseSalary != nil {
		rounded := math.Round(*s.AverageBaseSalary*100) / 100
		avg = strconv.FormatFloat(rounded, 'f', -1, 64)
	}
	return []string{s.Department, strconv.Itoa(s.EmployeeCount), avg}
}

// Summarize buckets rows by department and computes per-bucket counts and
// average base salary. Grouping is case-sensitive on the trimmed department
// string; blank departments map to the Unknown bucket. The result is sorted
// by department name and recomputed from scratch on every call.
func Summarize(rows []EmployeeRow) []DepartmentStat {
	type bucket struct {
		count       int
		salaried    int
		totalSalary float64
	}

	buckets := make(map[string]*bucket)
	for _, row := range rows {
		dept := strings.TrimSpace(row.Department)
		if dept == "" {
			dept = UnknownDepartment
		}

		b, ok := buckets[dept]
		if !ok {
			b = &bucket{}
			buckets[dept] = b
		}
		b.count++

		// Only parseable, non-blank salaries contribute to the average.
		if salary := strings.TrimSpace(row.BaseSalary); salary != "" {
			if v, err := strconv.ParseFloat(salary, 64); err == nil {
				b.salaried++
				b.totalSalary += v
			}
		}
	}

	stats := make([]DepartmentStat, 0, len(buckets))
	for dept, b := range buckets {
		stat := DepartmentStat{
			Department:    dept,
			EmployeeCount: b.count,
		}
		if b.salaried > 0 {
			avg := b.totalSalary / float64(b.salaried)
			stat.AverageBaseSalary = &avg
		}
		stats = append(stats, stat)
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Department < stats[j].Department
	})

	return stats
}
