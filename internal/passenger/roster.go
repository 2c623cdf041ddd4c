package passenger

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// RosterEntry is one passenger row from a roster file
type RosterEntry struct {
	TicketNumber string
	FirstName    string
	LastName     string
	Email        string
}

const (
	columnTicketNumber = "ticket number"
	columnFirstName    = "first name"
	columnLastName     = "last name"
	columnEmail        = "email"
)

// ReadRosterFile reads a .csv or .xlsx roster
func ReadRosterFile(path string) ([]RosterEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening roster: %w", err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return ReadRosterCSV(f)
	case ".xlsx":
		return ReadRosterXLSX(f)
	default:
		return nil, fmt.Errorf("unsupported roster format %q", ext)
	}
}

// ReadRosterCSV reads a CSV roster with a header row
func ReadRosterCSV(r io.Reader) ([]RosterEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	return rosterFromRows(rows)
}

// ReadRosterXLSX reads the first sheet of an XLSX roster with a header row
func ReadRosterXLSX(r io.Reader) ([]RosterEntry, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	return rosterFromRows(rows)
}

// rosterFromRows maps header names to columns and skips rows missing a required value
func rosterFromRows(rows [][]string) ([]RosterEntry, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("roster is empty")
	}

	columns := make(map[string]int)
	for i, name := range rows[0] {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		columns[name] = i
	}
	for _, required := range []string{columnTicketNumber, columnFirstName, columnLastName} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("roster is missing column %q", required)
		}
	}

	cell := func(row []string, column string) string {
		i, ok := columns[column]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	entries := make([]RosterEntry, 0, len(rows)-1)
	for _, row := range rows[1:] {
		entry := RosterEntry{
			TicketNumber: cell(row, columnTicketNumber),
			FirstName:    cell(row, columnFirstName),
			LastName:     cell(row, columnLastName),
			Email:        cell(row, columnEmail),
		}
		if entry.TicketNumber == "" || entry.FirstName == "" || entry.LastName == "" {
			continue
		}
		if entry.Email == "" {
			entry.Email = fmt.Sprintf("%s.%s@email.com", strings.ToLower(entry.FirstName), strings.ToLower(entry.LastName))
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
