package tariff

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"tariff-sync/internal/models"
)

func records(raw ...string) []models.TariffRecord {
	out := make([]models.TariffRecord, len(raw))
	for i, r := range raw {
		out[i] = models.TariffRecord(r)
	}
	return out
}

func TestBuildRowsOrdersByCoefficient(t *testing.T) {
	rows := BuildRows(records(
		`{"warehouseName":"A","boxDeliveryCoefExpr":"12"}`,
		`{"warehouseName":"B","boxStorageCoefExpr":"3,5"}`,
		`{"warehouseName":"C"}`,
	))

	want := []string{"B", "A", "C"}
	for i, w := range want {
		if rows[i].Warehouse != w {
			t.Fatalf("row %d = %s, want %s", i, rows[i].Warehouse, w)
		}
	}
	if rows[0].Coefficient.Decimal.String() != "3.5" {
		t.Fatalf("B coefficient = %s, want 3.5", rows[0].Coefficient.Decimal)
	}
	if rows[2].Coefficient.Valid {
		t.Fatal("C must have no coefficient")
	}
}

func TestBuildRowsDefaults(t *testing.T) {
	rows := BuildRows(records(`{"boxDeliveryCoefExpr":"1"}`, `{"warehouseName":"W","geoName":"Юг","boxDeliveryCoefExpr":"2"}`))

	if rows[0].Warehouse != "item_0" || rows[0].Geo != "" {
		t.Fatalf("defaults = %q/%q, want item_0/empty", rows[0].Warehouse, rows[0].Geo)
	}
	if rows[1].Geo != "Юг" {
		t.Fatalf("geo = %q, want Юг", rows[1].Geo)
	}
}

func TestBuildRowsStableAbsentLast(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 50; round++ {
		var raw []string
		for i := 0; i < 30; i++ {
			if rng.Intn(3) == 0 {
				raw = append(raw, fmt.Sprintf(`{"warehouseName":"none-%d"}`, i))
				continue
			}
			raw = append(raw, fmt.Sprintf(`{"warehouseName":"w-%d","boxDeliveryCoefExpr":"%d"}`, i, rng.Intn(5)))
		}
		rows := BuildRows(records(raw...))

		seenAbsent := false
		lastIdx := map[string]int{}
		for i, r := range rows {
			if !r.Coefficient.Valid {
				seenAbsent = true
				continue
			}
			if seenAbsent {
				t.Fatalf("round %d: present coefficient after absent at %d", round, i)
			}
			if i > 0 && rows[i-1].Coefficient.Valid && rows[i-1].Coefficient.Decimal.GreaterThan(r.Coefficient.Decimal) {
				t.Fatalf("round %d: rows not ascending at %d", round, i)
			}
		}

		// equal keys keep input order
		for i, r := range rows {
			key := "absent"
			if r.Coefficient.Valid {
				key = r.Coefficient.Decimal.String()
			}
			var idx int
			if _, err := fmt.Sscanf(lastDigits(r.Warehouse), "%d", &idx); err != nil {
				t.Fatalf("bad warehouse %q", r.Warehouse)
			}
			if prev, ok := lastIdx[key]; ok && prev > idx {
				t.Fatalf("round %d: unstable order for %s at row %d", round, key, i)
			}
			lastIdx[key] = idx
		}
	}
}

func lastDigits(s string) string {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	return s[i:]
}

func TestGrid(t *testing.T) {
	grid := Grid(BuildRows(records(
		`{"warehouseName":"A", "boxDeliveryCoefExpr": "12"}`,
		`{"warehouseName":"C"}`,
	)))

	if len(grid) != 3 {
		t.Fatalf("grid rows = %d, want 3", len(grid))
	}
	for i, h := range Header {
		if grid[0][i] != h {
			t.Fatalf("header[%d] = %v, want %s", i, grid[0][i], h)
		}
	}
	if grid[1][2] != 12.0 {
		t.Fatalf("coefficient cell = %v, want 12", grid[1][2])
	}
	if grid[1][3] != `{"warehouseName":"A","boxDeliveryCoefExpr":"12"}` {
		t.Fatalf("raw cell = %v", grid[1][3])
	}
	if grid[2][2] != "" {
		t.Fatalf("absent coefficient cell = %v, want empty", grid[2][2])
	}
}

func TestGridEdgeCoefficients(t *testing.T) {
	grid := Grid(BuildRows(records(
		`{"warehouseName":"A","boxDeliveryCoefExpr":"5"}`,
		`{"warehouseName":"B","boxDeliveryCoefExpr":"","boxStorageCoefExpr":"160"}`,
		`{"warehouseName":"C","boxDeliveryCoefExpr":"1e400"}`,
	)))

	order := []interface{}{grid[1][0], grid[2][0], grid[3][0]}
	if order[0] != "B" || order[1] != "A" || order[2] != "C" {
		t.Fatalf("order = %v, want [B A C]", order)
	}
	if grid[1][2] != 0.0 {
		t.Fatalf("empty string coefficient = %v, want 0", grid[1][2])
	}
	if grid[3][2] != "" {
		t.Fatalf("overflowing coefficient = %v, want empty", grid[3][2])
	}
	if _, err := json.Marshal(grid); err != nil {
		t.Fatalf("grid must be JSON encodable: %v", err)
	}
}
