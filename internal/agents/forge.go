package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tbaudier/overseer/internal/llmjson"
	"github.com/tbaudier/overseer/internal/memory"
	"github.com/tbaudier/overseer/internal/orchestrator"
	"github.com/tbaudier/overseer/internal/providers"
)

const forgePrompt = `Write a small standalone tool for the following need.

Need: %s

Respond with exactly one JSON object, no prose:
{
  "name": "snake_case_tool_name",
  "domain": "one-word domain",
  "language": "python",
  "code": "the complete source code"
}`

// Forge generates tool source files with the router and registers them in the
// knowledge store.
type Forge struct {
	router    orchestrator.RouterCaller
	knowledge *memory.KnowledgeStore
	toolsDir  string
}

func NewForge(router orchestrator.RouterCaller, knowledge *memory.KnowledgeStore, toolsDir string) *Forge {
	return &Forge{router: router, knowledge: knowledge, toolsDir: toolsDir}
}

type forgedTool struct {
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Language string `json:"language"`
	Code     string `json:"code"`
}

// GenerateTool asks the model for a tool definition, writes the source file
// under the tools directory and records it. Hints ("domain", "name") are
// appended to the prompt when present.
func (f *Forge) GenerateTool(ctx context.Context, description string, hints map[string]string) (*memory.ToolRecord, error) {
	prompt := fmt.Sprintf(forgePrompt, description)
	if hints["domain"] != "" {
		prompt += "\nUse domain: " + hints["domain"]
	}
	if hints["name"] != "" {
		prompt += "\nUse name: " + hints["name"]
	}

	resp := f.router.CallWithFailover(ctx, providers.Request{
		Prompt:      prompt,
		Type:        providers.RequestAgent,
		Temperature: 0.2,
	})
	if !resp.Success {
		return nil, fmt.Errorf("forge tool: %s", resp.Error)
	}

	obj := llmjson.Extract(resp.Content)
	if obj == "" {
		return nil, fmt.Errorf("forge tool: no JSON object in model output")
	}
	var tool forgedTool
	if err := json.Unmarshal([]byte(obj), &tool); err != nil {
		return nil, fmt.Errorf("forge tool: %w", err)
	}
	if tool.Name == "" || tool.Code == "" {
		return nil, fmt.Errorf("forge tool: definition missing name or code")
	}
	tool.Name = sanitizeName(tool.Name)
	if tool.Domain == "" {
		tool.Domain = hints["domain"]
	}

	path := filepath.Join(f.toolsDir, tool.Name+extFor(tool.Language))
	if err := os.MkdirAll(f.toolsDir, 0o755); err != nil {
		return nil, fmt.Errorf("forge tool: %w", err)
	}
	if err := os.WriteFile(path, []byte(tool.Code), 0o644); err != nil {
		return nil, fmt.Errorf("forge tool: %w", err)
	}

	rec := memory.ToolRecord{
		Name:             tool.Name,
		Domain:           tool.Domain,
		FilePath:         path,
		ValidationStatus: "unvalidated",
		CreatedAt:        time.Now(),
	}
	if f.knowledge != nil {
		if err := f.knowledge.RegisterTool(rec); err != nil {
			return nil, fmt.Errorf("forge tool: register: %w", err)
		}
	}
	return &rec, nil
}

// sanitizeName keeps tool names safe as directory and file names.
func sanitizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "tool"
	}
	return b.String()
}

func extFor(language string) string {
	switch strings.ToLower(language) {
	case "python", "python3", "":
		return ".py"
	case "bash", "shell", "sh":
		return ".sh"
	case "javascript", "node":
		return ".js"
	case "go", "golang":
		return ".go"
	default:
		return ".txt"
	}
}
