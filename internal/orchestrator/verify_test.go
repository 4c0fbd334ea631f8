package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
)

func workspaceWith(t *testing.T, names ...string) *Orchestrator {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return New(Options{Workspace: dir})
}

func TestVerifyFileExistenceWins(t *testing.T) {
	o := workspaceWith(t, "results/data.csv")

	v := o.verifyOutput("saved everything to data.csv")
	if !v.verified {
		t.Fatal("expected verification via workspace file")
	}
	if len(v.files) != 1 || v.files[0] != "results/data.csv" {
		t.Errorf("files = %v, want [results/data.csv]", v.files)
	}
}

func TestVerifyFileCheckPrecedesLegacyPhrase(t *testing.T) {
	o := workspaceWith(t, "report.pdf")

	// Both signals present: the file check must be the one that decides.
	v := o.verifyOutput("report.pdf was created and saved successfully")
	if !v.verified || len(v.files) == 0 {
		t.Errorf("verification = %+v, want file-based with artifacts listed", v)
	}
}

func TestVerifyMentionedFileMissing(t *testing.T) {
	o := workspaceWith(t)

	if v := o.verifyOutput("I saved it all to ghost.txt"); v.verified {
		t.Error("a filename token with no real file must not verify")
	}
}

func TestVerifyExecutionMarkers(t *testing.T) {
	o := New(Options{})

	if !o.verifyOutput("ran the script\nEXECUTION COMPLETE").verified {
		t.Error("completion marker alone should verify")
	}
	if o.verifyOutput("EXECUTION COMPLETE\nEXECUTION FAILED").verified {
		t.Error("failure marker must veto the completion marker")
	}
}

func TestVerifyLegacyPhrase(t *testing.T) {
	o := New(Options{})

	if !o.verifyOutput("the tool was created and saved successfully").verified {
		t.Error("legacy phrase pair should verify")
	}
	if o.verifyOutput("created and saved, but something went wrong").verified {
		t.Error("half the phrase pair must not verify")
	}
	if o.verifyOutput("it all went successfully I promise").verified {
		t.Error("bare prose must not verify")
	}
}

func TestExtractTraceback(t *testing.T) {
	output := `Traceback (most recent call last):
  File "app.py", line 3, in <module>
    run()
  File "worker.py", line 27, in run
    parse(data)
KeyError: 'rows'`

	tb := extractTraceback(output)
	if tb == nil {
		t.Fatal("expected a traceback")
	}
	if tb.File != "worker.py" || tb.Line != "27" {
		t.Errorf("frame = %s:%s, want worker.py:27 (deepest frame)", tb.File, tb.Line)
	}
	if tb.ErrType != "KeyError" {
		t.Errorf("error type = %s, want KeyError", tb.ErrType)
	}
}

func TestExtractTracebackAbsent(t *testing.T) {
	if tb := extractTraceback("all good, nothing to see"); tb != nil {
		t.Errorf("expected nil, got %+v", tb)
	}
}
