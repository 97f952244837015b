package board

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/boardroom/config"
	"github.com/mohammad-safakhou/boardroom/internal/gateway"
	"github.com/mohammad-safakhou/boardroom/internal/notify"
	"github.com/mohammad-safakhou/boardroom/internal/plan"
	"github.com/mohammad-safakhou/boardroom/internal/store"
	"github.com/mohammad-safakhou/boardroom/internal/telemetry"
)

// Recorder is the persistence surface a discussion needs. *store.Store
// satisfies it.
type Recorder interface {
	SaveBoardMessage(ctx context.Context, strategyID, actor, message, msgType string) (int64, error)
	SaveStrategyPlan(ctx context.Context, st store.Strategy, missions []store.Mission) error
}

// Entry is one message of the in-memory discussion log.
type Entry struct {
	Agent     string
	Message   string
	Type      string
	Timestamp time.Time
}

// Board runs one multi-agent discussion from topic to saved strategy.
type Board struct {
	StrategyID string
	Topic      string
	UserID     string

	turnNumber   int
	discussion   []Entry
	currentAgent string
	leaderPrompt string

	gw        *gateway.Gateway
	recorder  Recorder
	notifier  notify.Broadcaster
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// New creates a Board for one topic. A fresh strategy id is minted here so
// every message of the discussion can be attributed before the plan exists.
func New(cfg config.LLMConfig, topic, userID string, gw *gateway.Gateway, recorder Recorder, notifier notify.Broadcaster, tel *telemetry.Telemetry) *Board {
	leaderPrompt := cfg.LeaderPrompt
	if leaderPrompt == "" {
		leaderPrompt = DefaultLeaderPrompt
	}
	if notifier == nil {
		notifier = notify.NoopBroadcaster{}
	}
	return &Board{
		StrategyID:   uuid.NewString(),
		Topic:        topic,
		UserID:       userID,
		currentAgent: TurnOrder[0],
		leaderPrompt: leaderPrompt,
		gw:           gw,
		recorder:     recorder,
		notifier:     notifier,
		telemetry:    tel,
		logger:       log.New(log.Writer(), "[BOARD] ", log.LstdFlags),
	}
}

// Log returns a copy of the discussion transcript so far.
func (b *Board) Log() []Entry {
	out := make([]Entry, len(b.discussion))
	copy(out, b.discussion)
	return out
}

// CurrentAgent reports whose turn is running.
func (b *Board) CurrentAgent() string { return b.currentAgent }

// history renders the transcript the way agents see it.
func (b *Board) history() string {
	parts := make([]string, 0, len(b.discussion))
	for _, e := range b.discussion {
		parts = append(parts, fmt.Sprintf("**%s**: %s", e.Agent, e.Message))
	}
	return strings.Join(parts, "\n\n")
}

// logMessage appends to the in-memory transcript and persists the row.
// Persistence failures are logged but never stop the discussion.
func (b *Board) logMessage(ctx context.Context, actor, message, msgType string) {
	b.discussion = append(b.discussion, Entry{
		Agent:     actor,
		Message:   message,
		Type:      msgType,
		Timestamp: time.Now().UTC(),
	})
	if b.recorder != nil {
		if _, err := b.recorder.SaveBoardMessage(ctx, b.StrategyID, actor, message, msgType); err != nil {
			b.logger.Printf("save board message from %s: %v", actor, err)
		}
	}
	b.notifier.BoardActivity(ctx, b.StrategyID, actor, msgType)
}

// callAgent runs one turn. It resolves provider and model, tries once, falls
// back once to the alternate credentialed backend, and degrades to a fixed
// error string when both fail so the discussion always moves on.
func (b *Board) callAgent(ctx context.Context, agentName string) string {
	profile := AgentPrompts[agentName]
	provider, model := b.gw.PickProviderAndModel(profile.Model, agentName)

	userPrompt := fmt.Sprintf("The discussion topic is: %s", b.Topic)
	if h := b.history(); h != "" {
		userPrompt = h
	}

	systemContent := profile.SystemPrompt
	if agentName == FinalizingAgent {
		systemContent = b.leaderPrompt + "\n\n" + profile.SystemPrompt
	}

	messages := []gateway.Message{
		{Role: "system", Content: systemContent},
		{Role: "user", Content: userPrompt},
	}

	started := time.Now()
	response, err := b.gw.Chat(ctx, provider, model, messages, 0.2, 4096, agentName)
	if err == nil {
		b.logger.Printf("[%s:%s] %s responded", provider, model, agentName)
		b.recordTurn(agentName, provider, model, started, true, false)
		return response
	}
	b.logger.Printf("primary provider %q failed for %s: %v", provider, agentName, err)

	if fb := gateway.Other(provider); fb != "" && b.gw.HasCredential(fb) {
		fbModel := gateway.CoerceModel(fb, model)
		response, ferr := b.gw.Chat(ctx, fb, fbModel, messages, 0.2, 4096, agentName)
		if ferr == nil {
			b.logger.Printf("[%s:%s] %s responded (fallback)", fb, fbModel, agentName)
			b.recordTurn(agentName, fb, fbModel, started, true, true)
			return response
		}
		b.logger.Printf("fallback provider %q also failed for %s: %v", fb, agentName, ferr)
	}

	b.recordTurn(agentName, provider, model, started, false, false)
	return fmt.Sprintf("Error: Could not get a response from %s.", agentName)
}

func (b *Board) recordTurn(agent string, provider gateway.Provider, model string, started time.Time, success, fallback bool) {
	b.telemetry.RecordTurn(telemetry.TurnEvent{
		Agent:    agent,
		Provider: string(provider),
		Model:    model,
		Duration: time.Since(started),
		Success:  success,
		Fallback: fallback,
	})
}

// RunDiscussion drives the full turn cycle, parses the finalizing agent's
// reply and persists the resulting strategy. It returns the parsed plan even
// when parsing produced the placeholder document.
func (b *Board) RunDiscussion(ctx context.Context) (plan.Document, error) {
	b.logger.Printf("starting discussion %s on topic %q", b.StrategyID, b.Topic)
	b.telemetry.DiscussionStarted()
	defer b.telemetry.DiscussionFinished()

	b.logMessage(ctx, "CEO", b.Topic, store.MessageTypeTopic)

	for _, agentName := range TurnOrder {
		b.currentAgent = agentName
		b.turnNumber++
		response := b.callAgent(ctx, agentName)

		msgType := store.MessageTypeText
		if agentName == FinalizingAgent {
			msgType = store.MessageTypePlanSummary
		}
		b.logMessage(ctx, agentName, response, msgType)

		if err := ctx.Err(); err != nil {
			return plan.Document{}, err
		}
	}

	finalText := b.discussion[len(b.discussion)-1].Message
	doc, parsed := plan.Extract(finalText)
	if !parsed {
		b.logger.Printf("final plan for %s did not parse, saving placeholder", b.StrategyID)
		doc = plan.Placeholder(finalText)
	}

	if err := b.saveStrategy(ctx, doc); err != nil {
		b.logger.Printf("save strategy %s: %v", b.StrategyID, err)
		b.logMessage(ctx, "System",
			fmt.Sprintf("Strategy %s could not be saved: %v.", b.StrategyID, err),
			store.MessageTypeSystem)
		return doc, err
	}

	b.logMessage(ctx, "System",
		fmt.Sprintf("Strategy %s has been finalized and saved.", b.StrategyID),
		store.MessageTypeSystem)
	b.logger.Printf("discussion %s finished", b.StrategyID)
	return doc, nil
}

func (b *Board) saveStrategy(ctx context.Context, doc plan.Document) error {
	if b.recorder == nil {
		return nil
	}
	st := store.Strategy{
		ID:      b.StrategyID,
		UserID:  b.UserID,
		Topic:   b.Topic,
		Title:   doc.EffectiveTitle(),
		TLDR:    doc.TLDR,
		Summary: doc.Summary,
		AppName: doc.AppName,
	}
	missions := make([]store.Mission, 0, len(doc.Missions))
	for _, m := range doc.Missions {
		deps, err := json.Marshal(orEmpty(m.Dependencies))
		if err != nil {
			return fmt.Errorf("marshal dependencies of %s: %w", m.MissionID, err)
		}
		steps, err := json.Marshal(m.Steps)
		if err != nil {
			return fmt.Errorf("marshal steps of %s: %w", m.MissionID, err)
		}
		criteria, err := json.Marshal(orEmpty(m.AcceptanceCriteria))
		if err != nil {
			return fmt.Errorf("marshal acceptance criteria of %s: %w", m.MissionID, err)
		}
		missions = append(missions, store.Mission{
			StrategyID:         b.StrategyID,
			MissionID:          m.MissionID,
			Title:              m.Title,
			Description:        m.Description,
			Owner:              m.Owner,
			Dependencies:       deps,
			Steps:              steps,
			AcceptanceCriteria: criteria,
		})
	}
	return b.recorder.SaveStrategyPlan(ctx, st, missions)
}

func orEmpty(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
