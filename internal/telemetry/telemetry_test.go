package telemetry

import (
	"math"
	"testing"
	"time"

	"github.com/mohammad-safakhou/boardroom/config"
)

func TestRecordGatewayAggregation(t *testing.T) {
	tel := NewTelemetry(config.TelemetryConfig{Enabled: true, CostTracking: true})

	tel.RecordGateway(GatewayEvent{
		Provider: "groq", Model: "llama-3.1-8b-instant",
		Success: true, PromptTokens: 1000, CompletionTokens: 500,
	})
	tel.RecordGateway(GatewayEvent{
		Provider: "groq", Model: "llama-3.1-8b-instant",
		Success: false, PromptTokens: 200, CompletionTokens: 0,
	})

	snap := tel.Snapshot()
	if snap.GatewayRequests["groq"] != 2 {
		t.Fatalf("requests = %d, want 2", snap.GatewayRequests["groq"])
	}
	if snap.GatewayFailures["groq"] != 1 {
		t.Fatalf("failures = %d, want 1", snap.GatewayFailures["groq"])
	}
	if snap.PromptTokens["groq"] != 1200 || snap.CompletionTokens["groq"] != 500 {
		t.Fatalf("tokens = %d/%d", snap.PromptTokens["groq"], snap.CompletionTokens["groq"])
	}
	want := (1200*0.05 + 500*0.08) / 1e6
	if math.Abs(snap.CostUSD["groq"]-want) > 1e-12 {
		t.Fatalf("cost = %v, want %v", snap.CostUSD["groq"], want)
	}
}

func TestCostUnknownModelIsZero(t *testing.T) {
	e := GatewayEvent{Model: "someday-model", PromptTokens: 1_000_000, CompletionTokens: 1_000_000}
	if c := e.CostUSD(); c != 0 {
		t.Fatalf("cost = %v, want 0", c)
	}
}

func TestRecordTurnAverage(t *testing.T) {
	tel := NewTelemetry(config.TelemetryConfig{Enabled: true})
	tel.RecordTurn(TurnEvent{Agent: "Designer", Duration: 2 * time.Second, Success: true})
	tel.RecordTurn(TurnEvent{Agent: "Designer", Duration: 4 * time.Second, Success: true})

	snap := tel.Snapshot()
	if snap.AgentTurns["Designer"] != 2 {
		t.Fatalf("turns = %d, want 2", snap.AgentTurns["Designer"])
	}
	if snap.AgentAverageTimes["Designer"] != 3*time.Second {
		t.Fatalf("avg = %v, want 3s", snap.AgentAverageTimes["Designer"])
	}
}

func TestNilTelemetryIsSafe(t *testing.T) {
	var tel *Telemetry
	tel.RecordTurn(TurnEvent{Agent: "Designer"})
	tel.RecordGateway(GatewayEvent{Provider: "groq"})
	tel.RecordStep(StepEvent{Tool: "terminal"})
	tel.DiscussionStarted()
	tel.DiscussionFinished()
	if snap := tel.Snapshot(); snap.DiscussionsStarted != 0 {
		t.Fatal("nil snapshot should be empty")
	}
}

func TestDisabledTelemetryRecordsNothing(t *testing.T) {
	tel := NewTelemetry(config.TelemetryConfig{Enabled: false})
	tel.RecordGateway(GatewayEvent{Provider: "groq", Success: true})
	if snap := tel.Snapshot(); len(snap.GatewayRequests) != 0 {
		t.Fatalf("disabled telemetry recorded %v", snap.GatewayRequests)
	}
}
