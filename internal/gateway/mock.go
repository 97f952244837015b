package gateway

import (
	"context"
	"sync"
)

// defaultMockReply is returned when no canned reply exists for an agent.
const defaultMockReply = "Mock response"

// MockBackend returns deterministic canned replies keyed by agent name so
// discussions and executions can run offline.
type MockBackend struct {
	mu      sync.RWMutex
	replies map[string]string
}

// NewMockBackend creates a mock backend preloaded with one plausible reply
// per default agent, including a sentinel-wrapped plan for the LeadAgent.
func NewMockBackend() *MockBackend {
	return &MockBackend{replies: map[string]string{
		"MarketScout":    "For busy students who procrastinate, the pain point is the anxiety of starting. Single-feature: a 25-minute auto-start timer with one big 'Go' button.",
		"SalesOptimizer": "Charm pricing at $0.99 for lifetime access framed as 'One coffee for a calmer day'.",
		"Designer":       "Single-screen with one giant Go button, then a progress ring. Notifications only at start and end.",
		"Hephaestus":     "Stack: React + Vite. Files: src/main.jsx, src/App.jsx. State: { running:boolean, remaining:number }.",
		"CPO":            "Cut any accounts/payments for MVP; ship a static price banner and focus on the timer experience.",
		"LeadAgent": `<<JSON_START>>{
  "strategy_title": "One-Button Focus Timer",
  "tldr": "A single-button 25-minute focus timer that lowers anxiety and starts instantly.",
  "summary": "For busy students and professionals who procrastinate, this app reduces anxiety by starting a Pomodoro-length timer instantly.",
  "missions": [
    {
      "mission_id": "M1",
      "title": "Scaffold app",
      "description": "Create minimal React app with Vite and a single App.jsx.",
      "owner": "Hephaestus",
      "dependencies": [],
      "steps": [
        {
          "step_id": 1,
          "description": "Create workspace folders",
          "tool": "workspace",
          "params": {
            "app_name": "one-button-focus-timer"
          }
        },
        {
          "step_id": 2,
          "description": "Generate App.jsx",
          "tool": "code_generator",
          "params": {
            "app_name": "one-button-focus-timer",
            "file_path": "src/App.jsx",
            "language": "javascript",
            "prompt": "Write a React component App that renders a big Go button and when clicked starts a 25-minute countdown, showing minutes:seconds."
          }
        }
      ],
      "acceptance_criteria": ["App builds and countdown works"]
    }
  ]
}<<JSON_END>>`,
	}}
}

func (m *MockBackend) Name() Provider { return ProviderMock }

// ChatCompletion satisfies Backend; the mock cannot infer the agent from the
// request so it returns the default reply. Gateway.Chat routes mock calls
// through Reply instead.
func (m *MockBackend) ChatCompletion(_ context.Context, _ ChatRequest) (Completion, error) {
	return Completion{Content: defaultMockReply}, nil
}

// Reply returns the canned reply for an agent, or the fixed default.
func (m *MockBackend) Reply(agentName string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.replies[agentName]; ok {
		return r
	}
	return defaultMockReply
}

// SetReply registers or replaces the canned reply for an agent.
func (m *MockBackend) SetReply(agentName, reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[agentName] = reply
}
