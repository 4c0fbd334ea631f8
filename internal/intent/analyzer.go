// Package intent classifies raw user messages into a closed set of intent
// kinds. Classification is one low-temperature routed model call; when the
// model's answer cannot be parsed, a keyword heuristic takes over so a bad
// classification never fails the request.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tbaudier/overseer/internal/llmjson"
	"github.com/tbaudier/overseer/internal/providers"
)

// Kind is an intent category.
type Kind string

const (
	KindChat    Kind = "chat"
	KindQuery   Kind = "query"
	KindAnalyze Kind = "analyze"
	KindCreate  Kind = "create"
	KindExecute Kind = "execute"
	KindSystem  Kind = "system"
	KindUnknown Kind = "unknown"
)

// heuristicConfidence is the fixed score attached to keyword-fallback results.
const heuristicConfidence = 0.3

// Analysis is the result of classifying one message.
type Analysis struct {
	Kind          Kind           `json:"kind"`
	Confidence    float64        `json:"confidence"`
	Domain        string         `json:"domain,omitempty"`
	Action        string         `json:"action,omitempty"`
	Object        string         `json:"object,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	RequiresTool  bool           `json:"requires_tool"`
	ToolName      string         `json:"tool_name,omitempty"`
	RequiresAgent bool           `json:"requires_agent"`
}

// RouterCaller is the slice of the provider router the analyzer needs.
type RouterCaller interface {
	CallWithFailover(ctx context.Context, req providers.Request) *providers.Response
}

// Analyzer classifies messages through the provider router.
type Analyzer struct {
	router RouterCaller
}

func NewAnalyzer(router RouterCaller) *Analyzer {
	return &Analyzer{router: router}
}

const classifyPrompt = `Classify the user message into exactly one intent kind:

- chat: conversation, questions answerable from general knowledge
- query: searching or listing stored data ("find my notes about X")
- analyze: examining or reviewing a document, dataset or codebase
- create: building a new tool, script or document artifact
- execute: running code or performing a concrete computation
- system: questions about this system's own status or health
- unknown: none of the above fits

Prefer chat or execute over the tool-requiring kinds unless the request
genuinely needs external data or system state.

Answer with JSON only:
{"kind": "...", "confidence": 0.0, "domain": "...", "action": "...",
 "object": "...", "parameters": {}, "requires_tool": false,
 "tool_name": "", "requires_agent": false}

User message:
%s`

// Analyze classifies a message. It never returns an error: any model or
// parse failure degrades to the keyword heuristic.
func (a *Analyzer) Analyze(ctx context.Context, message string) *Analysis {
	resp := a.router.CallWithFailover(ctx, providers.Request{
		Prompt:      fmt.Sprintf(classifyPrompt, message),
		Type:        providers.RequestChat,
		Temperature: 0.1,
		MaxTokens:   512,
	})
	if !resp.Success {
		slog.Warn("intent classification call failed, using heuristic", "error", resp.Error)
		return classifyByKeywords(message)
	}

	analysis, err := parseClassification(resp.Content)
	if err != nil {
		slog.Warn("intent classification unparseable, using heuristic", "error", err)
		return classifyByKeywords(message)
	}
	return analysis
}

func parseClassification(content string) (*Analysis, error) {
	obj := llmjson.Extract(content)
	if obj == "" {
		return nil, fmt.Errorf("no JSON object in model output")
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(obj), &analysis); err != nil {
		return nil, fmt.Errorf("decode classification: %w", err)
	}

	analysis.Kind = Kind(strings.ToLower(string(analysis.Kind)))
	switch analysis.Kind {
	case KindChat, KindQuery, KindAnalyze, KindCreate, KindExecute, KindSystem, KindUnknown:
	default:
		return nil, fmt.Errorf("unrecognized intent kind %q", analysis.Kind)
	}

	if analysis.Confidence <= 0 {
		analysis.Confidence = 0.5
	}
	return &analysis, nil
}

// classifyByKeywords is the substring-match fallback. First matching rule wins.
func classifyByKeywords(message string) *Analysis {
	lower := strings.ToLower(message)

	kind := KindChat
	switch {
	case containsAny(lower, "status", "health"):
		kind = KindSystem
	case containsAny(lower, "create", "forge", "build"):
		kind = KindCreate
	case containsAny(lower, "analyze", "analyse", "review"):
		kind = KindAnalyze
	case containsAny(lower, "search", "find", "list"):
		kind = KindQuery
	case containsAny(lower, "execute", "run"):
		kind = KindExecute
	}

	return &Analysis{
		Kind:          kind,
		Confidence:    heuristicConfidence,
		RequiresTool:  kind == KindCreate,
		RequiresAgent: kind == KindAnalyze || kind == KindExecute,
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
