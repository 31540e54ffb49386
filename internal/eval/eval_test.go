package eval

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kalambet/voicecrm/internal/extract"
)

type mockExtractor struct {
	mu      sync.Mutex
	calls   int
	active  int
	peak    int
	respond func(transcript string) (extract.Result, error)
}

func (m *mockExtractor) Extract(ctx context.Context, transcript string) (extract.Result, error) {
	m.mu.Lock()
	m.calls++
	m.active++
	if m.active > m.peak {
		m.peak = m.active
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()
	return m.respond(transcript)
}

// nameOrFail returns the first word as the name unless the transcript starts
// with "anon" or "boom".
func nameOrFail(transcript string) (extract.Result, error) {
	switch {
	case strings.HasPrefix(transcript, "boom"):
		return nil, errors.New("upstream timeout")
	case strings.HasPrefix(transcript, "anon"):
		return extract.Result{
			"customer":    map[string]any{"full_name": nil},
			"interaction": map[string]any{"created_at": "2025-12-05T09:30:15.000000Z"},
		}, nil
	}
	return extract.Result{
		"customer": map[string]any{
			"full_name": strings.Fields(transcript)[0],
			"city":      "Kochi",
		},
		"interaction": map[string]any{
			"summary":    "call",
			"created_at": "2025-12-05T09:30:15.000000Z",
		},
		"confidence": 0.9,
	}, nil
}

func TestRun_Statuses(t *testing.T) {
	m := &mockExtractor{respond: nameOrFail}
	r := NewRunner(m, 1, nil)

	results, err := r.Run(context.Background(), []string{"Anjali called", "anon caller", "boom"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	want := []struct {
		id     int
		status string
	}{{1, StatusPass}, {2, StatusFail}, {3, StatusError}}
	for i, w := range want {
		if results[i].ID != w.id || results[i].Status != w.status {
			t.Errorf("results[%d] = {id %d, status %s}, want {id %d, status %s}",
				i, results[i].ID, results[i].Status, w.id, w.status)
		}
	}
	if results[2].Error != "upstream timeout" {
		t.Errorf("error = %q", results[2].Error)
	}
	if results[2].Output != nil {
		t.Error("errored case should have no output")
	}
	if results[1].Output == nil {
		t.Error("failed case should keep its output")
	}
}

func TestRun_ConcurrencyBoundAndOrder(t *testing.T) {
	m := &mockExtractor{respond: nameOrFail}
	r := NewRunner(m, 3, nil)

	results, err := r.Run(context.Background(), DefaultCases)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.calls != len(DefaultCases) {
		t.Fatalf("calls = %d, want %d", m.calls, len(DefaultCases))
	}
	if m.peak > 3 {
		t.Fatalf("peak concurrency = %d, want <= 3", m.peak)
	}
	for i, res := range results {
		if res.ID != i+1 || res.Input != DefaultCases[i] {
			t.Fatalf("result %d out of order: id %d", i, res.ID)
		}
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := &mockExtractor{respond: func(string) (extract.Result, error) {
		return nil, context.Canceled
	}}
	results, err := NewRunner(m, 2, nil).Run(ctx, []string{"a", "b"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]CaseResult{
		{Status: StatusPass}, {Status: StatusPass}, {Status: StatusFail}, {Status: StatusError},
	})
	if s != (Summary{Total: 4, Passed: 2, Failed: 1, Errors: 1}) {
		t.Fatalf("summary = %+v", s)
	}
}

func TestDefaultCases(t *testing.T) {
	if len(DefaultCases) != 10 {
		t.Fatalf("got %d default cases, want 10", len(DefaultCases))
	}
}

func sampleResults(t *testing.T) []CaseResult {
	t.Helper()
	m := &mockExtractor{respond: nameOrFail}
	results, err := NewRunner(m, 1, nil).Run(context.Background(), []string{"Anjali called", "boom"})
	if err != nil {
		t.Fatal(err)
	}
	return results
}

func TestWriteJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	path, err := WriteJSON(dir, sampleResults(t))
	if err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if filepath.Base(path) != JSONReportName {
		t.Fatalf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  {") {
		t.Error("report is not indented")
	}

	var got []map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries", len(got))
	}
	if _, ok := got[0]["error"]; ok {
		t.Error("passing case should not carry an error key")
	}
	if _, ok := got[1]["output"]; ok {
		t.Error("errored case should not carry an output key")
	}
	out := got[0]["output"].(map[string]any)
	customer := out["customer"].(map[string]any)
	if customer["full_name"] != "Anjali" {
		t.Errorf("full_name = %v", customer["full_name"])
	}
	if out["confidence"] != 0.9 {
		t.Errorf("confidence = %v, want extra key kept", out["confidence"])
	}
}

func TestWriteJSON_Empty(t *testing.T) {
	path, err := WriteJSON(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("got %q, want []", data)
	}
}

func TestWriteXLSX(t *testing.T) {
	path, err := WriteXLSX(t.TempDir(), sampleResults(t))
	if err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(reportSheetName)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[0][0] != "id" || rows[0][4] != "output.customer.full_name" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	if rows[1][0] != "1" || rows[1][2] != StatusPass || rows[1][4] != "Anjali" || rows[1][7] != "Kochi" {
		t.Fatalf("unexpected pass row: %v", rows[1])
	}
	if rows[2][2] != StatusError || rows[2][3] != "upstream timeout" {
		t.Fatalf("unexpected error row: %v", rows[2])
	}
}
