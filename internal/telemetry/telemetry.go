package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohammad-safakhou/boardroom/config"
)

// Telemetry tracks board turns, gateway calls and step executions.
type Telemetry struct {
	config  config.TelemetryConfig
	logger  *log.Logger
	metrics *Metrics
	mu      sync.RWMutex
}

// Metrics holds in-process counters, mirrored into Prometheus.
type Metrics struct {
	// Discussion metrics
	DiscussionsStarted  int64
	DiscussionsFinished int64
	AgentTurns          map[string]int64
	AgentAverageTimes   map[string]time.Duration

	// Gateway metrics
	GatewayRequests  map[string]int64 // provider -> calls
	GatewayFailures  map[string]int64
	PromptTokens     map[string]int64 // provider -> tokens
	CompletionTokens map[string]int64
	CostUSD          map[string]float64

	// Executor metrics
	StepExecutions map[string]int64 // tool -> executions
	StepFailures   map[string]int64
}

var (
	promTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boardroom_agent_turns_total",
		Help: "Agent turns taken across all discussions.",
	}, []string{"agent", "outcome"})

	promGateway = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boardroom_gateway_requests_total",
		Help: "Chat completion requests by provider and outcome.",
	}, []string{"provider", "outcome"})

	promSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boardroom_steps_total",
		Help: "Executed plan steps by tool and outcome.",
	}, []string{"tool", "outcome"})

	promTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boardroom_gateway_tokens_total",
		Help: "Tokens consumed by provider and direction.",
	}, []string{"provider", "direction"})
)

// TurnEvent records one agent turn in a discussion.
type TurnEvent struct {
	Agent    string
	Provider string
	Model    string
	Duration time.Duration
	Success  bool
	Fallback bool
}

// GatewayEvent records one chat completion call.
type GatewayEvent struct {
	Provider         string
	Model            string
	Duration         time.Duration
	Success          bool
	PromptTokens     int
	CompletionTokens int
}

// USD per million tokens, input/output. Unknown models cost zero.
var modelRates = map[string][2]float64{
	"llama-3.1-8b-instant": {0.05, 0.08},
	"deepseek-chat":        {0.14, 0.28},
	"deepseek-coder":       {0.14, 0.28},
}

// CostUSD prices one call from its token usage.
func (e GatewayEvent) CostUSD() float64 {
	rate, ok := modelRates[e.Model]
	if !ok {
		return 0
	}
	return (float64(e.PromptTokens)*rate[0] + float64(e.CompletionTokens)*rate[1]) / 1e6
}

// StepEvent records one executed plan step.
type StepEvent struct {
	Tool     string
	Duration time.Duration
	Success  bool
}

// NewTelemetry creates a new telemetry instance
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	return &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			AgentTurns:        make(map[string]int64),
			AgentAverageTimes: make(map[string]time.Duration),
			GatewayRequests:   make(map[string]int64),
			GatewayFailures:   make(map[string]int64),
			PromptTokens:      make(map[string]int64),
			CompletionTokens:  make(map[string]int64),
			CostUSD:           make(map[string]float64),
			StepExecutions:    make(map[string]int64),
			StepFailures:      make(map[string]int64),
		},
	}
}

func outcome(success bool) string {
	if success {
		return "ok"
	}
	return "error"
}

// RecordTurn records an agent turn event.
func (t *Telemetry) RecordTurn(event TurnEvent) {
	if t == nil || !t.config.Enabled {
		return
	}
	t.mu.Lock()
	t.metrics.AgentTurns[event.Agent]++
	n := t.metrics.AgentTurns[event.Agent]
	if n == 1 {
		t.metrics.AgentAverageTimes[event.Agent] = event.Duration
	} else {
		total := t.metrics.AgentAverageTimes[event.Agent] * time.Duration(n-1)
		t.metrics.AgentAverageTimes[event.Agent] = (total + event.Duration) / time.Duration(n)
	}
	t.mu.Unlock()

	promTurns.WithLabelValues(event.Agent, outcome(event.Success)).Inc()
	t.logger.Printf("Turn: Agent=%s, Provider=%s, Model=%s, Success=%t, Fallback=%t, Duration=%v",
		event.Agent, event.Provider, event.Model, event.Success, event.Fallback, event.Duration)
}

// RecordGateway records a chat completion event.
func (t *Telemetry) RecordGateway(event GatewayEvent) {
	if t == nil || !t.config.Enabled {
		return
	}
	t.mu.Lock()
	t.metrics.GatewayRequests[event.Provider]++
	if !event.Success {
		t.metrics.GatewayFailures[event.Provider]++
	}
	t.metrics.PromptTokens[event.Provider] += int64(event.PromptTokens)
	t.metrics.CompletionTokens[event.Provider] += int64(event.CompletionTokens)
	if t.config.CostTracking {
		t.metrics.CostUSD[event.Provider] += event.CostUSD()
	}
	t.mu.Unlock()

	promGateway.WithLabelValues(event.Provider, outcome(event.Success)).Inc()
	promTokens.WithLabelValues(event.Provider, "prompt").Add(float64(event.PromptTokens))
	promTokens.WithLabelValues(event.Provider, "completion").Add(float64(event.CompletionTokens))
}

// RecordStep records a plan step execution event.
func (t *Telemetry) RecordStep(event StepEvent) {
	if t == nil || !t.config.Enabled {
		return
	}
	t.mu.Lock()
	t.metrics.StepExecutions[event.Tool]++
	if !event.Success {
		t.metrics.StepFailures[event.Tool]++
	}
	t.mu.Unlock()

	promSteps.WithLabelValues(event.Tool, outcome(event.Success)).Inc()
	t.logger.Printf("Step: Tool=%s, Success=%t, Duration=%v", event.Tool, event.Success, event.Duration)
}

// DiscussionStarted bumps the started counter.
func (t *Telemetry) DiscussionStarted() {
	if t == nil || !t.config.Enabled {
		return
	}
	t.mu.Lock()
	t.metrics.DiscussionsStarted++
	t.mu.Unlock()
}

// DiscussionFinished bumps the finished counter.
func (t *Telemetry) DiscussionFinished() {
	if t == nil || !t.config.Enabled {
		return
	}
	t.mu.Lock()
	t.metrics.DiscussionsFinished++
	t.mu.Unlock()
}

// Snapshot returns a copy of the current metrics for status endpoints.
func (t *Telemetry) Snapshot() Metrics {
	if t == nil {
		return Metrics{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := Metrics{
		DiscussionsStarted:  t.metrics.DiscussionsStarted,
		DiscussionsFinished: t.metrics.DiscussionsFinished,
		AgentTurns:          make(map[string]int64, len(t.metrics.AgentTurns)),
		AgentAverageTimes:   make(map[string]time.Duration, len(t.metrics.AgentAverageTimes)),
		GatewayRequests:     make(map[string]int64, len(t.metrics.GatewayRequests)),
		GatewayFailures:     make(map[string]int64, len(t.metrics.GatewayFailures)),
		PromptTokens:        make(map[string]int64, len(t.metrics.PromptTokens)),
		CompletionTokens:    make(map[string]int64, len(t.metrics.CompletionTokens)),
		CostUSD:             make(map[string]float64, len(t.metrics.CostUSD)),
		StepExecutions:      make(map[string]int64, len(t.metrics.StepExecutions)),
		StepFailures:        make(map[string]int64, len(t.metrics.StepFailures)),
	}
	for k, v := range t.metrics.AgentTurns {
		out.AgentTurns[k] = v
	}
	for k, v := range t.metrics.AgentAverageTimes {
		out.AgentAverageTimes[k] = v
	}
	for k, v := range t.metrics.GatewayRequests {
		out.GatewayRequests[k] = v
	}
	for k, v := range t.metrics.GatewayFailures {
		out.GatewayFailures[k] = v
	}
	for k, v := range t.metrics.PromptTokens {
		out.PromptTokens[k] = v
	}
	for k, v := range t.metrics.CompletionTokens {
		out.CompletionTokens[k] = v
	}
	for k, v := range t.metrics.CostUSD {
		out.CostUSD[k] = v
	}
	for k, v := range t.metrics.StepExecutions {
		out.StepExecutions[k] = v
	}
	for k, v := range t.metrics.StepFailures {
		out.StepFailures[k] = v
	}
	return out
}
