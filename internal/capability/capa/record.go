// Package capa reads Corrective and Preventive Action records from a
// tab-separated data file and answers count, statistics and search questions.
package capa

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// Status values after normalisation.
const (
	StatusOpen       = "OPEN"
	StatusClosed     = "CLOSED"
	StatusInProgress = "IN_PROGRESS"
	StatusPending    = "PENDING"
	StatusCancelled  = "CANCELLED"
)

// DateLayout is the normalised date format.
const DateLayout = "2006-01-02"

// DefaultHeaders is used when the file has no header row.
var DefaultHeaders = []string{"capa_id", "title", "region", "status", "date", "priority", "assigned_to"}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
	"01-02-2006",
	"02-01-2006",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
}

// Record is one normalised CAPA row.
type Record struct {
	ID         string            `json:"capa_id"`
	Title      string            `json:"title"`
	Region     string            `json:"region"`
	Status     string            `json:"status"`
	Date       string            `json:"date"`
	Priority   string            `json:"priority"`
	AssignedTo string            `json:"assigned_to,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Field returns the value of a column by header name.
func (r Record) Field(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "capa_id", "id":
		return r.ID, true
	case "title":
		return r.Title, true
	case "region":
		return r.Region, true
	case "status":
		return r.Status, true
	case "date":
		return r.Date, true
	case "priority":
		return r.Priority, true
	case "assigned_to":
		return r.AssignedTo, true
	}
	v, ok := r.Extra[strings.ToLower(name)]
	return v, ok
}

// ParsedDate returns the record date, or false when it is not a recognised format.
func (r Record) ParsedDate() (time.Time, bool) {
	return parseDate(r.Date)
}

// ErrNoRecords is returned when the data file exists but holds no records.
var ErrNoRecords = errors.New("no CAPA records")

// ParseFile reads and normalises all records in the file at path.
func ParseFile(path string) ([]Record, error) {
	return parseFile(path, time.Now())
}

func parseFile(path string, now time.Time) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open CAPA data: %w", err)
	}
	defer f.Close()
	return parse(f, now)
}

// Parse reads tab-separated records. A first row containing a capa_id column
// is treated as the header; otherwise DefaultHeaders apply.
func Parse(r io.Reader) ([]Record, error) {
	return parse(r, time.Now())
}

func parse(r io.Reader, now time.Time) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CAPA data: %w", err)
	}

	headers := DefaultHeaders
	if len(rows) > 0 && isHeader(rows[0]) {
		headers = make([]string, len(rows[0]))
		for i, h := range rows[0] {
			headers[i] = strings.ToLower(strings.TrimSpace(h))
		}
		rows = rows[1:]
	}

	var records []Record
	for _, row := range rows {
		if blank(row) {
			continue
		}
		values := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(row) {
				values[h] = strings.TrimSpace(row[i])
			} else {
				values[h] = ""
			}
		}
		records = append(records, normalise(values, now))
	}
	return records, nil
}

func isHeader(row []string) bool {
	for _, cell := range row {
		if strings.EqualFold(strings.TrimSpace(cell), "capa_id") {
			return true
		}
	}
	return false
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func normalise(values map[string]string, now time.Time) Record {
	rec := Record{
		ID:         values["capa_id"],
		Title:      values["title"],
		Region:     values["region"],
		Status:     NormaliseStatus(values["status"]),
		Date:       values["date"],
		Priority:   values["priority"],
		AssignedTo: values["assigned_to"],
	}
	if rec.ID == "" {
		rec.ID = "CAPA_" + now.Format("20060102_150405")
	}
	if rec.Title == "" {
		rec.Title = "Untitled CAPA"
	}
	if rec.Region == "" {
		rec.Region = "Global"
	}
	if rec.Priority == "" {
		rec.Priority = "Medium"
	}
	if rec.Date == "" {
		rec.Date = now.Format(DateLayout)
	} else {
		rec.Date = NormaliseDate(rec.Date)
	}

	for k, v := range values {
		if _, known := (Record{}).Field(k); known || k == "" {
			continue
		}
		if rec.Extra == nil {
			rec.Extra = make(map[string]string)
		}
		rec.Extra[k] = v
	}
	return rec
}

// NormaliseStatus maps free-form status text onto the known status values.
func NormaliseStatus(s string) string {
	status := strings.ToUpper(strings.TrimSpace(s))
	switch status {
	case StatusOpen, StatusClosed, StatusInProgress, StatusPending, StatusCancelled:
		return status
	}
	switch {
	case strings.Contains(status, "PROGRESS"), strings.Contains(status, "WORKING"):
		return StatusInProgress
	case strings.Contains(status, "COMPLETE"), strings.Contains(status, "DONE"):
		return StatusClosed
	default:
		return StatusOpen
	}
}

// NormaliseDate rewrites a recognised date as YYYY-MM-DD and returns
// anything else unchanged.
func NormaliseDate(s string) string {
	if t, ok := parseDate(s); ok {
		return t.Format(DateLayout)
	}
	return s
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Stats is the status and region breakdown of a record set.
type Stats struct {
	Total      int            `json:"total"`
	Open       int            `json:"open"`
	Closed     int            `json:"closed"`
	InProgress int            `json:"in_progress"`
	Regions    map[string]int `json:"regions"`
}

// Statistics counts records by status and region.
func Statistics(records []Record) Stats {
	s := Stats{Total: len(records), Regions: make(map[string]int)}
	for _, r := range records {
		switch r.Status {
		case StatusOpen:
			s.Open++
		case StatusClosed:
			s.Closed++
		case StatusInProgress:
			s.InProgress++
		}
		s.Regions[r.Region]++
	}
	return s
}

// RegionNames returns the regions of s in sorted order.
func (s Stats) RegionNames() []string {
	names := make([]string, 0, len(s.Regions))
	for name := range s.Regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Search returns the records whose named fields all contain the given
// values, compared case-insensitively. A field the records do not have
// matches nothing.
func Search(records []Record, criteria map[string]string) []Record {
	var out []Record
	for _, r := range records {
		if matches(r, criteria) {
			out = append(out, r)
		}
	}
	return out
}

func matches(r Record, criteria map[string]string) bool {
	for field, want := range criteria {
		got, ok := r.Field(field)
		if !ok {
			return false
		}
		if !strings.Contains(strings.ToLower(got), strings.ToLower(want)) {
			return false
		}
	}
	return true
}

// FindByID returns the record with the given ID.
func FindByID(records []Record, id string) (Record, bool) {
	for _, r := range records {
		if strings.EqualFold(r.ID, id) {
			return r, true
		}
	}
	return Record{}, false
}
