package plan

import (
	"fmt"
	"strings"
	"time"
)

// Tool names a step can dispatch to.
const (
	ToolTerminal      = "terminal"
	ToolCodeGenerator = "code_generator"
	ToolFileEditor    = "file_editor"
	ToolWorkspace     = "workspace"
)

// StepParams is the tagged union of per-tool parameter records. Decode
// validates and normalizes a step's free-form parameter map into exactly one
// variant, so the executor never has to poke at raw maps.
type StepParams interface {
	Tool() string
}

// TerminalParams drive a shell command step.
type TerminalParams struct {
	Command string
	Cwd     string
	AppName string
	Timeout time.Duration
}

func (TerminalParams) Tool() string { return ToolTerminal }

// CodeGenParams drive a file generation step.
type CodeGenParams struct {
	Prompt      string
	FilePath    string
	Language    string
	AppName     string
	Model       string
	Overwrite   bool
	Temperature float64
	MaxTokens   int
}

func (CodeGenParams) Tool() string { return ToolCodeGenerator }

// FileEditParams drive an instruction-based file edit step.
type FileEditParams struct {
	FilePath           string
	Instruction        string
	Language           string
	AppName            string
	Model              string
	CreateIfMissing    bool
	UseCodegenOnCreate bool
	Temperature        float64
	MaxTokens          int
}

func (FileEditParams) Tool() string { return ToolFileEditor }

// WorkspaceParams drive a workspace scaffolding step.
type WorkspaceParams struct {
	AppName      string
	CreateVSCode bool
	Folders      []string
}

func (WorkspaceParams) Tool() string { return ToolWorkspace }

// UnknownParams is the catch-all variant for unrecognized tool names.
type UnknownParams struct {
	Name   string
	Params map[string]interface{}
}

func (u UnknownParams) Tool() string { return u.Name }

// Decode normalizes a step's parameter map into its typed variant. It never
// fails on an unrecognized tool; it returns UnknownParams so the executor
// can produce a structured failure instead of a crash.
func (s Step) Decode() StepParams {
	p := s.Params
	switch s.Tool {
	case ToolTerminal:
		return TerminalParams{
			Command: str(p, "command"),
			Cwd:     str(p, "cwd"),
			AppName: str(p, "app_name"),
			Timeout: seconds(p, "timeout", 600),
		}
	case ToolCodeGenerator:
		return CodeGenParams{
			Prompt:      str(p, "prompt"),
			FilePath:    str(p, "file_path"),
			Language:    str(p, "language"),
			AppName:     str(p, "app_name"),
			Model:       str(p, "model"),
			Overwrite:   boolDefault(p, "overwrite", true),
			Temperature: num(p, "temperature", 0.2),
			MaxTokens:   intDefault(p, "max_tokens", 4096),
		}
	case ToolFileEditor:
		instruction := str(p, "instruction")
		if instruction == "" {
			instruction = str(p, "prompt")
		}
		return FileEditParams{
			FilePath:           str(p, "file_path"),
			Instruction:        instruction,
			Language:           str(p, "language"),
			AppName:            str(p, "app_name"),
			Model:              str(p, "model"),
			CreateIfMissing:    boolDefault(p, "create_if_missing", true),
			UseCodegenOnCreate: boolDefault(p, "use_codegen_on_create", true),
			Temperature:        num(p, "temperature", 0.2),
			MaxTokens:          intDefault(p, "max_tokens", 8192),
		}
	case ToolWorkspace:
		return WorkspaceParams{
			AppName:      str(p, "app_name"),
			CreateVSCode: boolDefault(p, "create_vscode", false),
			Folders:      strSlice(p, "folders"),
		}
	default:
		return UnknownParams{Name: s.Tool, Params: p}
	}
}

func str(p map[string]interface{}, key string) string {
	if v, ok := p[key]; ok {
		switch t := v.(type) {
		case string:
			return t
		case fmt.Stringer:
			return t.String()
		}
	}
	return ""
}

func boolDefault(p map[string]interface{}, key string, def bool) bool {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(t) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return def
}

func num(p map[string]interface{}, key string, def float64) float64 {
	if v, ok := p[key]; ok {
		switch t := v.(type) {
		case float64:
			return t
		case int:
			return float64(t)
		}
	}
	return def
}

func intDefault(p map[string]interface{}, key string, def int) int {
	if v, ok := p[key]; ok {
		switch t := v.(type) {
		case float64:
			return int(t)
		case int:
			return t
		}
	}
	return def
}

func seconds(p map[string]interface{}, key string, def float64) time.Duration {
	return time.Duration(num(p, key, def) * float64(time.Second))
}

func strSlice(p map[string]interface{}, key string) []string {
	v, ok := p[key]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
