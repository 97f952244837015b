package executor

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/boardroom/config"
	"github.com/mohammad-safakhou/boardroom/internal/gateway"
	"github.com/mohammad-safakhou/boardroom/internal/plan"
	"github.com/mohammad-safakhou/boardroom/internal/store"
)

type fakeSource struct {
	strategy        store.Strategy
	leadMessage     string
	missions        []store.Mission
	missionStatuses map[string]string
	strategyStatus  string
}

func (f *fakeSource) GetStrategy(_ context.Context, id string) (store.Strategy, error) {
	if f.strategy.ID != id {
		return store.Strategy{}, sql.ErrNoRows
	}
	return f.strategy, nil
}

func (f *fakeSource) LatestMessageByActor(_ context.Context, strategyID, actor string) (store.BoardMessage, error) {
	if f.leadMessage == "" {
		return store.BoardMessage{}, sql.ErrNoRows
	}
	return store.BoardMessage{StrategyID: strategyID, Actor: actor, Message: f.leadMessage}, nil
}

func (f *fakeSource) ListMissions(_ context.Context, _ string) ([]store.Mission, error) {
	return f.missions, nil
}

func (f *fakeSource) UpdateMissionStatus(_ context.Context, id, status string) error {
	if f.missionStatuses == nil {
		f.missionStatuses = map[string]string{}
	}
	f.missionStatuses[id] = status
	return nil
}

func (f *fakeSource) SetStrategyStatus(_ context.Context, _, status string) error {
	f.strategyStatus = status
	return nil
}

func newTestExecutor(t *testing.T, src PlanSource, cfg config.LLMConfig) (*Executor, string) {
	t.Helper()
	root := t.TempDir()
	gw := gateway.New(cfg, log.New(log.Writer(), "[TEST] ", 0))
	ex := New("strat-1", src, gw, config.WorkspaceConfig{AppsRoot: root}, nil)
	return ex, root
}

// codegenServer fakes an OpenAI-compatible completions endpoint that always
// returns the given content.
func codegenServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestRunTerminal(t *testing.T) {
	ex, _ := newTestExecutor(t, &fakeSource{}, config.LLMConfig{})

	res := ex.runTerminal(context.Background(), plan.TerminalParams{Command: "echo hello", Timeout: 10 * time.Second})
	if !res.OK || res.Code != 0 {
		t.Fatalf("result = %+v", res)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Fatalf("stdout = %q", res.Stdout)
	}

	res = ex.runTerminal(context.Background(), plan.TerminalParams{Command: "exit 3", Timeout: 10 * time.Second})
	if res.OK || res.Code != 3 {
		t.Fatalf("result = %+v", res)
	}

	res = ex.runTerminal(context.Background(), plan.TerminalParams{Command: ""})
	if res.OK || !strings.Contains(res.Error, "command") {
		t.Fatalf("result = %+v", res)
	}
}

func TestRunTerminalTimeout(t *testing.T) {
	ex, _ := newTestExecutor(t, &fakeSource{}, config.LLMConfig{})
	res := ex.runTerminal(context.Background(), plan.TerminalParams{Command: "sleep 5", Timeout: 100 * time.Millisecond})
	if res.OK {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(res.Error, "timed out") {
		t.Fatalf("error = %q", res.Error)
	}
}

func TestRunTerminalCwdDefaultsToAppRoot(t *testing.T) {
	ex, root := newTestExecutor(t, &fakeSource{}, config.LLMConfig{})
	appDir := filepath.Join(root, "my-app")
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		t.Fatal(err)
	}
	res := ex.runTerminal(context.Background(), plan.TerminalParams{Command: "pwd", AppName: "my-app", Timeout: 10 * time.Second})
	if !res.OK {
		t.Fatalf("result = %+v", res)
	}
	got, err := filepath.EvalSymlinks(strings.TrimSpace(res.Stdout))
	if err != nil {
		t.Fatal(err)
	}
	want, err := filepath.EvalSymlinks(appDir)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("cwd = %q, want %q", got, want)
	}
}

func TestRunWorkspaceIdempotent(t *testing.T) {
	ex, root := newTestExecutor(t, &fakeSource{}, config.LLMConfig{})
	p := plan.WorkspaceParams{AppName: "demo", CreateVSCode: true, Folders: []string{"src", "tests"}}

	for i := 0; i < 2; i++ {
		res := ex.runWorkspace(p)
		if !res.OK {
			t.Fatalf("run %d: %+v", i, res)
		}
	}
	for _, dir := range []string{"demo", "demo/src", "demo/tests"} {
		info, err := os.Stat(filepath.Join(root, dir))
		if err != nil || !info.IsDir() {
			t.Fatalf("missing dir %s: %v", dir, err)
		}
	}
	raw, err := os.ReadFile(filepath.Join(root, "demo", "demo.code-workspace"))
	if err != nil {
		t.Fatal(err)
	}
	var ws struct {
		Folders []struct {
			Path string `json:"path"`
		} `json:"folders"`
	}
	if err := json.Unmarshal(raw, &ws); err != nil {
		t.Fatal(err)
	}
	if len(ws.Folders) != 1 || ws.Folders[0].Path != "." {
		t.Fatalf("workspace descriptor = %s", raw)
	}
}

func TestRunCodeGenStripsFences(t *testing.T) {
	srv := codegenServer(t, "```javascript\nconsole.log('hi');\n```")
	defer srv.Close()

	ex, root := newTestExecutor(t, &fakeSource{}, config.LLMConfig{
		Groq: config.BackendConfig{APIKey: "k", BaseURL: srv.URL},
	})
	res := ex.runCodeGen(context.Background(), plan.CodeGenParams{
		Prompt:    "write a hello",
		FilePath:  "src/App.js",
		AppName:   "demo",
		Overwrite: true,
	})
	if !res.OK {
		t.Fatalf("result = %+v", res)
	}
	raw, err := os.ReadFile(filepath.Join(root, "demo", "src", "App.js"))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "console.log('hi');" {
		t.Fatalf("content = %q", raw)
	}
}

func TestRunCodeGenRefusesOverwrite(t *testing.T) {
	srv := codegenServer(t, "new content")
	defer srv.Close()

	ex, root := newTestExecutor(t, &fakeSource{}, config.LLMConfig{
		Groq: config.BackendConfig{APIKey: "k", BaseURL: srv.URL},
	})
	dest := filepath.Join(root, "demo", "src", "App.js")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := ex.runCodeGen(context.Background(), plan.CodeGenParams{
		Prompt: "p", FilePath: "src/App.js", AppName: "demo", Overwrite: false,
	})
	if res.OK || !strings.Contains(res.Error, "overwrite") {
		t.Fatalf("result = %+v", res)
	}
	raw, _ := os.ReadFile(dest)
	if string(raw) != "original" {
		t.Fatal("file was modified despite overwrite=false")
	}
}

func TestRunCodeGenMissingParams(t *testing.T) {
	ex, _ := newTestExecutor(t, &fakeSource{}, config.LLMConfig{})
	res := ex.runCodeGen(context.Background(), plan.CodeGenParams{Prompt: "p"})
	if res.OK || !strings.Contains(res.Error, "required") {
		t.Fatalf("result = %+v", res)
	}
}

func TestRunFileEditBackupWrittenOnce(t *testing.T) {
	srv := codegenServer(t, "edited v1")
	ex, root := newTestExecutor(t, &fakeSource{}, config.LLMConfig{
		Groq: config.BackendConfig{APIKey: "k", BaseURL: srv.URL},
	})
	dest := filepath.Join(root, "demo", "src", "App.js")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, []byte("the original"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := plan.FileEditParams{FilePath: "src/App.js", AppName: "demo", Instruction: "change it"}
	if res := ex.runFileEdit(context.Background(), p); !res.OK {
		t.Fatalf("first edit: %+v", res)
	}
	srv.Close()

	srv2 := codegenServer(t, "edited v2")
	defer srv2.Close()
	ex2, _ := newTestExecutor(t, &fakeSource{}, config.LLMConfig{
		Groq: config.BackendConfig{APIKey: "k", BaseURL: srv2.URL},
	})
	ex2.workspace.AppsRoot = root
	if res := ex2.runFileEdit(context.Background(), p); !res.OK {
		t.Fatalf("second edit: %+v", res)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "edited v2" {
		t.Fatalf("content = %q", got)
	}
	bak, err := os.ReadFile(dest + ".bak")
	if err != nil {
		t.Fatal(err)
	}
	// the backup keeps the pre-first-edit content
	if string(bak) != "the original" {
		t.Fatalf("backup = %q", bak)
	}
	if _, err := os.Stat(dest + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("tmp file left behind")
	}
}

func TestRunFileEditDirectoryPath(t *testing.T) {
	ex, root := newTestExecutor(t, &fakeSource{}, config.LLMConfig{})
	res := ex.runFileEdit(context.Background(), plan.FileEditParams{
		FilePath: "assets/", AppName: "demo", Instruction: "make the folder",
	})
	if !res.OK || res.DirPath == "" {
		t.Fatalf("result = %+v", res)
	}
	info, err := os.Stat(filepath.Join(root, "demo", "assets"))
	if err != nil || !info.IsDir() {
		t.Fatalf("assets dir missing: %v", err)
	}
}

func TestRunFileEditCreatesMissingViaCodegen(t *testing.T) {
	srv := codegenServer(t, "created then edited")
	defer srv.Close()

	ex, root := newTestExecutor(t, &fakeSource{}, config.LLMConfig{
		Groq: config.BackendConfig{APIKey: "k", BaseURL: srv.URL},
	})
	res := ex.runFileEdit(context.Background(), plan.FileEditParams{
		FilePath:           "src/New.js",
		AppName:            "demo",
		Instruction:        "add a header comment",
		CreateIfMissing:    true,
		UseCodegenOnCreate: true,
	})
	if !res.OK {
		t.Fatalf("result = %+v", res)
	}
	raw, err := os.ReadFile(filepath.Join(root, "demo", "src", "New.js"))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "created then edited" {
		t.Fatalf("content = %q", raw)
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"```js\nlet a = 1;\n```", "let a = 1;"},
		{"```\nplain\n```", "plain"},
		{"no fences at all", "no fences at all"},
		{"  ```python\nprint(1)\n```  ", "print(1)"},
		{"```js\r\nlet a = 1;\r\n```", "let a = 1;"},
	}
	for _, c := range cases {
		if got := stripCodeFences(c.in); got != c.want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func stepsJSON(t *testing.T, steps []map[string]interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(steps)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestExecuteEndToEnd(t *testing.T) {
	srv := codegenServer(t, "```javascript\nexport default function App() { return null; }\n```")
	defer srv.Close()

	leadMessage := `<<JSON_START>>{
  "strategy_title": "Water Reminder",
  "app_name": "Water Reminder App",
  "tldr": "t",
  "summary": "s",
  "missions": []
}<<JSON_END>>`

	src := &fakeSource{
		strategy:    store.Strategy{ID: "strat-1", Topic: "water reminder app", Status: store.StrategyStatusApproved},
		leadMessage: leadMessage,
		missions: []store.Mission{
			{
				ID:        "row-1",
				MissionID: "M1",
				Title:     "Scaffold",
				Owner:     "Hephaestus",
				Steps: stepsJSON(t, []map[string]interface{}{
					{"step_id": "S1.1", "tool": "workspace", "params": map[string]interface{}{}},
					{"step_id": "S1.2", "tool": "code_generator", "description": "Generate App.js", "params": map[string]interface{}{
						"file_path": "src/App.js",
						"language":  "javascript",
						"prompt":    "Write the App component.",
					}},
				}),
			},
		},
	}

	root := t.TempDir()
	gw := gateway.New(config.LLMConfig{Groq: config.BackendConfig{APIKey: "k", BaseURL: srv.URL}}, log.New(log.Writer(), "[TEST] ", 0))
	ex := New("strat-1", src, gw, config.WorkspaceConfig{AppsRoot: root}, nil)

	if err := ex.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// app name came from the plan metadata, slugified
	appFile := filepath.Join(root, "water-reminder-app", "src", "App.js")
	raw, err := os.ReadFile(appFile)
	if err != nil {
		t.Fatalf("generated file missing: %v", err)
	}
	content := string(raw)
	if content == "" || strings.Contains(content, "```") {
		t.Fatalf("content = %q", content)
	}

	if src.missionStatuses["row-1"] != store.MissionStatusCompleted {
		t.Fatalf("mission status = %q", src.missionStatuses["row-1"])
	}
	if src.strategyStatus != store.StrategyStatusCompleted {
		t.Fatalf("strategy status = %q", src.strategyStatus)
	}
}

func TestExecuteUnknownToolFailsStepNotRun(t *testing.T) {
	src := &fakeSource{
		strategy: store.Strategy{ID: "strat-1", Topic: "demo", AppName: "demo", Status: store.StrategyStatusApproved},
		missions: []store.Mission{
			{
				ID:        "row-1",
				MissionID: "M1",
				Title:     "Broken",
				Steps: stepsJSON(t, []map[string]interface{}{
					{"step_id": 1, "tool": "teleporter", "params": map[string]interface{}{}},
					{"step_id": 2, "tool": "terminal", "params": map[string]interface{}{"command": "true"}},
				}),
			},
		},
	}

	ex, _ := newTestExecutor(t, src, config.LLMConfig{})
	ex.strategyID = "strat-1"

	if err := ex.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// the unknown tool fails the mission but the run still finishes
	if src.missionStatuses["row-1"] != store.MissionStatusBlocked {
		t.Fatalf("mission status = %q", src.missionStatuses["row-1"])
	}
	if src.strategyStatus != store.StrategyStatusFailed {
		t.Fatalf("strategy status = %q", src.strategyStatus)
	}
}

func TestLoadPlanFallbacks(t *testing.T) {
	src := &fakeSource{
		strategy: store.Strategy{ID: "strat-1", Topic: "Smart Pet Hydration App!"},
	}
	ex, _ := newTestExecutor(t, src, config.LLMConfig{})
	ex.strategyID = "strat-1"

	p, err := ex.LoadPlan(context.Background())
	if err != nil {
		t.Fatalf("LoadPlan: %v", err)
	}
	if p.Title != "Smart Pet Hydration App!" {
		t.Fatalf("title = %q", p.Title)
	}
	if p.AppName != "smart-pet-hydration-app" {
		t.Fatalf("app name = %q", p.AppName)
	}
}
