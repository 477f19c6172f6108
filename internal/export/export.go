// Package export renders list views into XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"loanadmin.org/internal/org"
)

// ContentType is the media type of the workbooks written here.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const timeLayout = "2006-01-02 15:04"

// Sheet is one list view: a header row followed by data rows.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]any
}

// Write renders sheets into a single workbook, in order, and writes it to w.
func Write(w io.Writer, sheets ...Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("export: no sheets")
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	first := f.GetSheetName(0)
	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName(first, sh.Name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(sh.Name); err != nil {
			return err
		}
		if err := writeSheet(f, sh, bold); err != nil {
			return fmt.Errorf("export: sheet %s: %w", sh.Name, err)
		}
	}
	f.SetActiveSheet(0)
	return f.Write(w)
}

func writeSheet(f *excelize.File, sh Sheet, headerStyle int) error {
	header := make([]any, len(sh.Header))
	for i, h := range sh.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sh.Name, "A1", &header); err != nil {
		return err
	}
	if len(sh.Header) > 0 {
		last, err := excelize.CoordinatesToCellName(len(sh.Header), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sh.Name, "A1", last, headerStyle); err != nil {
			return err
		}
	}
	for i, row := range sh.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(sh.Name, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func AssignmentsSheet(items []org.StaffAssignment) Sheet {
	sh := Sheet{
		Name:   "Staff Assignments",
		Header: []string{"Organization", "Branch", "Department", "Staff", "Assigned At"},
	}
	for _, a := range items {
		sh.Rows = append(sh.Rows, []any{a.Organization, a.Branch, a.Department, a.Staff, stamp(a.CreatedAt)})
	}
	return sh
}

func ModuleAccessSheet(items []org.ModuleAccess) Sheet {
	sh := Sheet{
		Name:   "Module Access",
		Header: []string{"Organization", "Branch", "Modules", "Updated At"},
	}
	for _, m := range items {
		sh.Rows = append(sh.Rows, []any{m.Organization, m.Branch, strings.Join(m.Modules, ", "), stamp(m.UpdatedAt)})
	}
	return sh
}

// UsersSheet lists users; roleName maps a role id to its display name and may be nil.
func UsersSheet(users []org.User, roleName func(id string) string) Sheet {
	sh := Sheet{
		Name:   "Users",
		Header: []string{"Full Name", "Username", "Email", "Phone", "Role", "Status", "Organization", "Branch", "Department"},
	}
	for _, u := range users {
		role := u.RoleID
		if roleName != nil {
			role = roleName(u.RoleID)
		}
		sh.Rows = append(sh.Rows, []any{
			u.FullName, u.Username, u.Email, u.Phone, role, string(u.Status),
			u.Organization, u.Branch, u.Department,
		})
	}
	return sh
}

func WriteAssignments(w io.Writer, items []org.StaffAssignment) error {
	return Write(w, AssignmentsSheet(items))
}

func WriteModuleAccess(w io.Writer, items []org.ModuleAccess) error {
	return Write(w, ModuleAccessSheet(items))
}

func WriteUsers(w io.Writer, users []org.User, roleName func(id string) string) error {
	return Write(w, UsersSheet(users, roleName))
}
