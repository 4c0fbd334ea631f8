package orchestrator

import (
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Execution markers the agent prompt instructs spawned agents to print
// around executed code, so plain prose can't pass as a run.
const (
	execCompleteMarker = "EXECUTION COMPLETE"
	execFailureMarker  = "EXECUTION FAILED"
)

// filenameRe matches filename-shaped tokens: word characters, a dot, and a
// two-to-four letter extension.
var filenameRe = regexp.MustCompile(`\b[\w-]+\.[A-Za-z]{2,4}\b`)

type verification struct {
	verified bool
	files    []string // workspace-relative paths of matched artifacts
}

// verifyOutput decides whether agent output represents real work. Checks run
// in fixed order, first match wins: real files in the workspace beat
// execution markers, which beat the legacy phrase heuristic.
func (o *Orchestrator) verifyOutput(output string) verification {
	if files := o.matchWorkspaceFiles(output); len(files) > 0 {
		return verification{verified: true, files: files}
	}

	if strings.Contains(output, execCompleteMarker) && !strings.Contains(output, execFailureMarker) {
		return verification{verified: true}
	}

	if strings.Contains(output, "created and saved") && strings.Contains(output, "successfully") {
		return verification{verified: true}
	}

	return verification{}
}

// matchWorkspaceFiles scans the output for filename tokens and returns the
// workspace-relative paths of every real file matching one.
func (o *Orchestrator) matchWorkspaceFiles(output string) []string {
	if o.workspace == "" {
		return nil
	}

	seen := make(map[string]bool)
	var files []string
	for _, token := range filenameRe.FindAllString(output, -1) {
		if seen[token] {
			continue
		}
		seen[token] = true

		matches, err := doublestar.FilepathGlob(filepath.Join(o.workspace, "**", token))
		if err != nil {
			slog.Debug("workspace scan failed", "token", token, "error", err)
			continue
		}
		for _, m := range matches {
			rel, err := filepath.Rel(o.workspace, m)
			if err != nil {
				continue
			}
			files = append(files, filepath.ToSlash(rel))
		}
	}
	return files
}

// Traceback-shaped text: the standard interpreter format of a frame line
// followed by a terminal error type.
var (
	tracebackFileRe = regexp.MustCompile(`File "([^"]+)", line (\d+)`)
	tracebackErrRe  = regexp.MustCompile(`(?m)^\s*([A-Za-z_]\w*(?:Error|Exception))\s*:?\s*(.*)$`)
)

type tracebackInfo struct {
	File    string
	Line    string
	ErrType string
	Message string
}

// extractTraceback pulls the failing file, line and error type out of any
// traceback-shaped text in the output. Returns nil when nothing matches.
func extractTraceback(output string) *tracebackInfo {
	frames := tracebackFileRe.FindAllStringSubmatch(output, -1)
	errs := tracebackErrRe.FindAllStringSubmatch(output, -1)
	if len(frames) == 0 && len(errs) == 0 {
		return nil
	}

	tb := &tracebackInfo{}
	if len(frames) > 0 {
		// The deepest frame is the failing one.
		last := frames[len(frames)-1]
		tb.File = last[1]
		tb.Line = last[2]
	}
	if len(errs) > 0 {
		last := errs[len(errs)-1]
		tb.ErrType = last[1]
		tb.Message = strings.TrimSpace(last[2])
	}
	return tb
}
