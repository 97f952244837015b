package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mohammad-safakhou/boardroom/internal/gateway"
	"github.com/mohammad-safakhou/boardroom/internal/plan"
	"github.com/mohammad-safakhou/boardroom/internal/telemetry"
)

// runStep decodes the step's parameters and dispatches to the matching
// tool. The mission app name is injected when the step omits it.
func (e *Executor) runStep(ctx context.Context, step plan.Step, appName string) Result {
	if appName != "" {
		if step.Params == nil {
			step.Params = map[string]interface{}{}
		}
		if _, ok := step.Params["app_name"]; !ok {
			step.Params["app_name"] = appName
		}
	}

	started := time.Now()
	var res Result
	switch p := step.Decode().(type) {
	case plan.TerminalParams:
		res = e.runTerminal(ctx, p)
	case plan.CodeGenParams:
		res = e.runCodeGen(ctx, p)
	case plan.FileEditParams:
		res = e.runFileEdit(ctx, p)
	case plan.WorkspaceParams:
		res = e.runWorkspace(p)
	case plan.UnknownParams:
		res = failure("Unknown tool: %s", p.Name)
	}
	e.telemetry.RecordStep(telemetry.StepEvent{
		Tool:     step.Tool,
		Duration: time.Since(started),
		Success:  res.OK,
	})
	return res
}

// runTerminal executes a shell command. The step succeeds exactly when the
// command exits zero; a timeout kills the process.
func (e *Executor) runTerminal(ctx context.Context, p plan.TerminalParams) Result {
	if p.Command == "" {
		return failure("Missing 'command' in params")
	}
	cwd := p.Cwd
	if cwd == "" && p.AppName != "" {
		cwd = filepath.Join(e.workspace.AppsRoot, p.AppName)
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}

	e.logger.Printf("[terminal] $ %s", p.Command)
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(tctx, "sh", "-c", p.Command)
	cmd.Dir = cwd
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if tctx.Err() == context.DeadlineExceeded {
		return failure("Command timed out after %gs", timeout.Seconds())
	}

	code := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			return failure("%v", err)
		}
	}
	return Result{
		OK:     code == 0,
		Code:   code,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
}

// runCodeGen asks a model for the full contents of one file and writes it.
func (e *Executor) runCodeGen(ctx context.Context, p plan.CodeGenParams) Result {
	if p.Prompt == "" || p.FilePath == "" {
		return failure("'prompt' and 'file_path' are required")
	}

	dest := e.resolveTarget(p.FilePath, p.AppName)
	parent := filepath.Dir(dest)
	if info, err := os.Stat(parent); err == nil && !info.IsDir() {
		return failure("Destination parent is a file: %s", parent)
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return failure("Failed to create parent dirs for %s: %v", dest, err)
	}
	if _, err := os.Stat(dest); err == nil && !p.Overwrite {
		return failure("File exists and overwrite=false: %s", p.FilePath)
	}

	systemPrompt := "You are a senior code generator. Return ONLY raw code for the requested file. " +
		"Do not include markdown, code fences, or explanations. If the prompt mentions " +
		"multiple files, output only the single target file's content."
	if p.Language != "" {
		systemPrompt += fmt.Sprintf(" Language hint: %s.", p.Language)
	}

	content, backend, model, err := e.generate(ctx, p.Model, systemPrompt, p.Prompt, p.Temperature, p.MaxTokens)
	if err != nil {
		return failure("%v", err)
	}
	if content == "" {
		return failure("Empty response from model")
	}

	code := stripCodeFences(content)
	if code == "" {
		return failure("Model returned empty content after stripping fences")
	}
	if err := os.WriteFile(dest, []byte(code), 0o644); err != nil {
		return failure("Failed to write file: %v", err)
	}
	e.logger.Printf("[%s codegen:%s] wrote %d bytes to %s", backend, model, len(code), dest)
	return Result{OK: true, FilePath: dest, Bytes: len(code), Backend: string(backend), Model: model}
}

// runFileEdit rewrites a file through a model. The write goes through a tmp
// file with a one-time .bak of the original next to it.
func (e *Executor) runFileEdit(ctx context.Context, p plan.FileEditParams) Result {
	if p.FilePath == "" || p.Instruction == "" {
		return failure("'file_path' and 'instruction' are required")
	}

	dest := e.resolveTarget(p.FilePath, p.AppName)
	// A trailing slash or a path without extension is a folder request.
	looksLikeDir := strings.HasSuffix(p.FilePath, "/") ||
		strings.HasSuffix(p.FilePath, `\`) ||
		filepath.Ext(p.FilePath) == ""
	if looksLikeDir {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return failure("Failed to create directory %s: %v", dest, err)
		}
		return Result{OK: true, DirPath: dest}
	}

	if _, err := os.Stat(dest); os.IsNotExist(err) {
		if !p.CreateIfMissing {
			return failure("File not found: %s", dest)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return failure("Failed to create parent dirs for %s: %v", dest, err)
		}
		if p.UseCodegenOnCreate {
			cgPrompt := fmt.Sprintf(
				"Create an initial version of the file %s. Apply this intent: %s. Return only the file contents.",
				filepath.Base(dest), p.Instruction)
			cgRes := e.runCodeGen(ctx, plan.CodeGenParams{
				Prompt:      cgPrompt,
				FilePath:    dest,
				Language:    p.Language,
				Model:       p.Model,
				Overwrite:   true,
				Temperature: p.Temperature,
				MaxTokens:   p.MaxTokens,
			})
			if !cgRes.OK {
				return failure("Failed to create file via codegen at %s: %s", dest, cgRes.Error)
			}
		} else {
			if err := os.WriteFile(dest, nil, 0o644); err != nil {
				return failure("Failed to create file %s: %v", dest, err)
			}
		}
	}

	original, err := os.ReadFile(dest)
	if err != nil {
		return failure("Failed to read file: %v", err)
	}

	systemPrompt := "You are a senior code editor. You will be given an existing file and a requested change. " +
		"Return ONLY the full updated file contents. Do not include markdown, code fences, or explanations. " +
		"Preserve existing style and imports unless changes require otherwise."
	if p.Language != "" {
		systemPrompt += fmt.Sprintf(" Language hint: %s.", p.Language)
	}
	userContent := fmt.Sprintf(
		"Apply the following change to the file.\n\nChange request:\n%s\n\nCurrent file contents:\n```\n%s\n```",
		p.Instruction, string(original))

	content, backend, model, err := e.generate(ctx, p.Model, systemPrompt, userContent, p.Temperature, p.MaxTokens)
	if err != nil {
		return failure("%v", err)
	}
	if content == "" {
		return failure("Empty response from model")
	}
	newCode := stripCodeFences(content)
	if strings.TrimSpace(newCode) == "" {
		return failure("Model returned empty content after stripping fences")
	}

	tmpPath := dest + ".tmp"
	bakPath := dest + ".bak"
	if err := os.WriteFile(tmpPath, []byte(newCode), 0o644); err != nil {
		return failure("Failed to write updated file: %v", err)
	}
	if _, err := os.Stat(bakPath); os.IsNotExist(err) {
		if err := os.WriteFile(bakPath, original, 0o644); err != nil {
			return failure("Failed to write backup file: %v", err)
		}
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return failure("Failed to write updated file: %v", err)
	}
	e.logger.Printf("[%s edit:%s] wrote %d bytes to %s", backend, model, len(newCode), dest)
	return Result{OK: true, FilePath: dest, Bytes: len(newCode), Backend: string(backend), Model: model}
}

// runWorkspace creates the per-app folder layout. It is idempotent.
func (e *Executor) runWorkspace(p plan.WorkspaceParams) Result {
	if p.AppName == "" {
		return failure("'app_name' is required")
	}
	appRoot := filepath.Join(e.workspace.AppsRoot, p.AppName)
	folders := p.Folders
	if len(folders) == 0 {
		folders = e.workspace.Folders
	}
	if len(folders) == 0 {
		folders = []string{"src", "tests"}
	}

	if err := os.MkdirAll(appRoot, 0o755); err != nil {
		return failure("%v", err)
	}
	created := []string{appRoot}
	for _, folder := range folders {
		dir := filepath.Join(appRoot, folder)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return failure("%v", err)
		}
		created = append(created, dir)
	}
	if p.CreateVSCode {
		ws := map[string]interface{}{
			"folders":  []map[string]string{{"path": "."}},
			"settings": map[string]interface{}{},
		}
		raw, err := json.MarshalIndent(ws, "", "  ")
		if err != nil {
			return failure("%v", err)
		}
		wsPath := filepath.Join(appRoot, p.AppName+".code-workspace")
		if err := os.WriteFile(wsPath, raw, 0o644); err != nil {
			return failure("%v", err)
		}
		created = append(created, wsPath)
	}
	return Result{OK: true, Created: created}
}

// generate performs one completion against the backend the model name
// implies. An invalid Groq key falls back once to DeepSeek when that
// credential exists.
func (e *Executor) generate(ctx context.Context, model, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, gateway.Provider, string, error) {
	if model == "" {
		model = gateway.DefaultGroqModel
	}
	backend := gateway.ProviderGroq
	if strings.HasPrefix(strings.ToLower(model), "deepseek") {
		backend = gateway.ProviderDeepSeek
	}
	if !e.gw.HasCredential(backend) && !e.gw.HasCredential(gateway.Other(backend)) {
		backend = gateway.ProviderMock
	}

	messages := []gateway.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}
	content, err := e.gw.Chat(ctx, backend, model, messages, temperature, maxTokens, "")
	if err == nil {
		return content, backend, model, nil
	}

	if backend == gateway.ProviderGroq && gateway.IsAuthError(err) && e.gw.HasCredential(gateway.ProviderDeepSeek) {
		dsModel := gateway.CoerceModel(gateway.ProviderDeepSeek, model)
		content, ferr := e.gw.Chat(ctx, gateway.ProviderDeepSeek, dsModel, messages, temperature, maxTokens, "")
		if ferr == nil {
			return content, gateway.ProviderDeepSeek, dsModel, nil
		}
		return "", backend, model, fmt.Errorf("deepseek api error after fallback: %w", ferr)
	}
	return "", backend, model, fmt.Errorf("%s api error: %w", backend, err)
}

func (e *Executor) resolveTarget(filePath, appName string) string {
	if filepath.IsAbs(filePath) {
		return filePath
	}
	if appName != "" {
		return filepath.Join(e.workspace.AppsRoot, appName, filePath)
	}
	return filePath
}

var (
	fenceRe     = regexp.MustCompile("(?s)^```[a-zA-Z0-9+\\-_.]*\\n(.*?)\\n```$")
	bareFenceRe = regexp.MustCompile("(?s)^```\\n(.*?)\\n```$")
)

// stripCodeFences unwraps a fully fenced response. Content that is not a
// single fenced block passes through untouched.
func stripCodeFences(text string) string {
	t := strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if m := fenceRe.FindStringSubmatch(t); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := bareFenceRe.FindStringSubmatch(t); m != nil {
		return strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(t, "```") && strings.HasSuffix(t, "```") {
		return strings.TrimSpace(strings.Trim(t, "`"))
	}
	return t
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
