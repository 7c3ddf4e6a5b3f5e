package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"tariff-sync/internal/tariff"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := newApp()
	a.Writer = &out
	a.ErrWriter = &out
	err := a.Run(append([]string{"tariffctl", "--log-level", "error"}, args...))
	return out.String(), err
}

func TestTargetsCommands(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "tariffs.db"))
	t.Setenv("SHEETS_BACKEND", "xlsx")
	t.Setenv("XLSX_DIR", t.TempDir())
	t.Setenv("SPREADSHEET_IDS", "")

	if _, err := runCLI(t, "targets", "add", "sheet-b"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := runCLI(t, "targets", "add", "sheet-a"); err != nil {
		t.Fatalf("add: %v", err)
	}
	out, err := runCLI(t, "targets", "add", "sheet-a")
	if err != nil || !strings.Contains(out, "already registered") {
		t.Fatalf("duplicate add: %q %v", out, err)
	}

	out, err = runCLI(t, "targets", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if out != "sheet-a\nsheet-b\n" {
		t.Fatalf("list output = %q", out)
	}

	if _, err := runCLI(t, "targets", "remove", "sheet-a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := runCLI(t, "targets", "remove", "sheet-a"); err == nil {
		t.Fatal("removing an unknown id must fail")
	}
	if _, err := runCLI(t, "targets", "add"); err == nil {
		t.Fatal("add without id must fail")
	}
}

func TestTableWithoutSnapshot(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "tariffs.db"))
	t.Setenv("SHEETS_BACKEND", "xlsx")
	t.Setenv("XLSX_DIR", t.TempDir())

	if _, err := runCLI(t, "table"); err == nil {
		t.Fatal("table on an empty store must fail")
	}
}

func TestPrintTable(t *testing.T) {
	rows := []tariff.PublishedRow{
		{Warehouse: "Тула", Geo: "ЦФО", Coefficient: decimal.NewNullDecimal(decimal.RequireFromString("1.25"))},
		{Warehouse: "Казань"},
	}

	var buf bytes.Buffer
	if err := printTable(&buf, "table", "2025-01-01", rows); err != nil {
		t.Fatalf("table: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 || !strings.Contains(lines[2], "1.25") || !strings.HasSuffix(lines[3], "-") {
		t.Fatalf("table output:\n%s", buf.String())
	}

	buf.Reset()
	if err := printTable(&buf, "json", "2025-01-01", rows); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(buf.String(), `"day": "2025-01-01"`) {
		t.Fatalf("json output: %s", buf.String())
	}

	if err := printTable(&buf, "yaml", "", rows); err == nil {
		t.Fatal("unknown format must fail")
	}
}
