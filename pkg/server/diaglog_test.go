package server

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDiagLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diag.sqlite")
	l, err := OpenDiagLog(path, 0)
	if err != nil {
		t.Fatalf("OpenDiagLog: %v", err)
	}
	defer l.Close()
	if l.Path() != path {
		t.Errorf("Path() = %q", l.Path())
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, author := range []string{"wiz", "bob", "Wiz"} {
		rec := &DiagRecord{
			Time:    base.Add(time.Duration(i) * time.Minute),
			Author:  author,
			Source:  "(",
			Line:    1,
			Column:  i + 1,
			Code:    "unclosed-bracket",
			Message: "unclosed bracket",
		}
		if err := l.Record(rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
		if rec.ID == 0 {
			t.Error("Record did not set the ID")
		}
	}

	all, err := l.Recent("", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Column != 3 || !all[0].Time.Equal(base.Add(2*time.Minute)) {
		t.Errorf("Recent(all) = %+v", all)
	}

	wiz, _ := l.Recent("wiz", 10)
	if len(wiz) != 2 {
		t.Errorf("Recent(wiz) returned %d records", len(wiz))
	}
	if one, _ := l.Recent("", 1); len(one) != 1 {
		t.Errorf("limit ignored: %d records", len(one))
	}

	n, err := l.Prune(base.Add(90 * time.Second))
	if err != nil || n != 2 {
		t.Errorf("Prune = %d, %v", n, err)
	}
	if err := l.Checkpoint(); err != nil {
		t.Errorf("Checkpoint: %v", err)
	}
}

func TestDiagLogClosed(t *testing.T) {
	l, err := OpenDiagLog(filepath.Join(t.TempDir(), "diag.sqlite"), 1)
	if err != nil {
		t.Fatal(err)
	}
	l.Close()
	if err := l.Record(&DiagRecord{Source: "x"}); err == nil {
		t.Error("Record on a closed log succeeded")
	}
	if _, err := l.Recent("", 1); err == nil {
		t.Error("Recent on a closed log succeeded")
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
