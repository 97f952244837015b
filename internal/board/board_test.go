package board

import (
	"context"
	"errors"
	"log"
	"testing"

	"github.com/mohammad-safakhou/boardroom/config"
	"github.com/mohammad-safakhou/boardroom/internal/gateway"
	"github.com/mohammad-safakhou/boardroom/internal/store"
)

type fakeRecorder struct {
	messages    []store.BoardMessage
	strategies  []store.Strategy
	missions    [][]store.Mission
	failSave    bool
	failMessage bool
}

func (f *fakeRecorder) SaveBoardMessage(_ context.Context, strategyID, actor, message, msgType string) (int64, error) {
	if f.failMessage {
		return 0, errors.New("db down")
	}
	f.messages = append(f.messages, store.BoardMessage{
		ID:         int64(len(f.messages) + 1),
		StrategyID: strategyID,
		Actor:      actor,
		Message:    message,
		Type:       msgType,
	})
	return int64(len(f.messages)), nil
}

func (f *fakeRecorder) SaveStrategyPlan(_ context.Context, st store.Strategy, missions []store.Mission) error {
	if f.failSave {
		return errors.New("db down")
	}
	f.strategies = append(f.strategies, st)
	f.missions = append(f.missions, missions)
	return nil
}

func newMockBoard(t *testing.T, rec Recorder) *Board {
	t.Helper()
	gw := gateway.New(config.LLMConfig{}, log.New(log.Writer(), "[TEST] ", 0))
	return New(config.LLMConfig{}, "a focus timer app", "user-1", gw, rec, nil, nil)
}

func TestRunDiscussionWithMockBackend(t *testing.T) {
	rec := &fakeRecorder{}
	b := newMockBoard(t, rec)

	doc, err := b.RunDiscussion(context.Background())
	if err != nil {
		t.Fatalf("RunDiscussion: %v", err)
	}
	if doc.EffectiveTitle() != "One-Button Focus Timer" {
		t.Fatalf("title = %q", doc.EffectiveTitle())
	}
	if len(doc.Missions) != 1 {
		t.Fatalf("missions = %d", len(doc.Missions))
	}
	if doc.Missions[0].Steps[0].Position != 1 || doc.Missions[0].Steps[1].Position != 2 {
		t.Fatal("step positions were not normalized")
	}

	entries := b.Log()
	// topic + six agents + system
	if len(entries) != 8 {
		t.Fatalf("transcript entries = %d", len(entries))
	}
	if entries[0].Agent != "CEO" || entries[0].Type != store.MessageTypeTopic {
		t.Fatalf("first entry = %+v", entries[0])
	}
	if entries[0].Message != "a focus timer app" {
		t.Fatalf("topic message = %q", entries[0].Message)
	}
	for i, want := range TurnOrder {
		if entries[i+1].Agent != want {
			t.Fatalf("entry %d agent = %q, want %q", i+1, entries[i+1].Agent, want)
		}
	}
	if entries[6].Type != store.MessageTypePlanSummary {
		t.Fatalf("finalizing entry type = %q", entries[6].Type)
	}
	last := entries[len(entries)-1]
	if last.Agent != "System" || last.Type != store.MessageTypeSystem {
		t.Fatalf("last entry = %+v", last)
	}

	if len(rec.strategies) != 1 {
		t.Fatalf("saved strategies = %d", len(rec.strategies))
	}
	st := rec.strategies[0]
	if st.ID != b.StrategyID || st.Topic != "a focus timer app" || st.UserID != "user-1" {
		t.Fatalf("saved strategy = %+v", st)
	}
	if st.Title != "One-Button Focus Timer" {
		t.Fatalf("saved title = %q", st.Title)
	}
	if len(rec.missions[0]) != 1 {
		t.Fatalf("saved missions = %d", len(rec.missions[0]))
	}
	if len(rec.messages) != 8 {
		t.Fatalf("persisted messages = %d", len(rec.messages))
	}
}

func TestRunDiscussionParseFailureSavesPlaceholder(t *testing.T) {
	rec := &fakeRecorder{}
	b := newMockBoard(t, rec)
	b.gw.Mock().SetReply(FinalizingAgent, "I forgot the JSON, here is prose instead.")

	doc, err := b.RunDiscussion(context.Background())
	if err != nil {
		t.Fatalf("RunDiscussion: %v", err)
	}
	if doc.Title != "Plan Parsing Failed" {
		t.Fatalf("title = %q", doc.Title)
	}
	if doc.Summary != "I forgot the JSON, here is prose instead." {
		t.Fatalf("summary = %q", doc.Summary)
	}

	if len(rec.strategies) != 1 {
		t.Fatal("placeholder strategy must still be persisted")
	}
	if got := rec.strategies[0].Title; got != "Plan Parsing Failed" {
		t.Fatalf("saved title = %q", got)
	}
	if len(rec.missions[0]) != 0 {
		t.Fatalf("placeholder missions = %d", len(rec.missions[0]))
	}

	entries := b.Log()
	last := entries[len(entries)-1]
	if last.Type != store.MessageTypeSystem {
		t.Fatal("discussion must still end with a system message")
	}
}

func TestRunDiscussionToleratesMessagePersistenceFailure(t *testing.T) {
	rec := &fakeRecorder{failMessage: true}
	b := newMockBoard(t, rec)

	doc, err := b.RunDiscussion(context.Background())
	if err != nil {
		t.Fatalf("RunDiscussion: %v", err)
	}
	if doc.EffectiveTitle() != "One-Button Focus Timer" {
		t.Fatalf("title = %q", doc.EffectiveTitle())
	}
	if len(b.Log()) != 8 {
		t.Fatalf("transcript entries = %d", len(b.Log()))
	}
	if len(rec.strategies) != 1 {
		t.Fatal("strategy save must not depend on message persistence")
	}
}

func TestRunDiscussionSaveFailureEmitsSystemError(t *testing.T) {
	rec := &fakeRecorder{failSave: true}
	b := newMockBoard(t, rec)

	_, err := b.RunDiscussion(context.Background())
	if err == nil {
		t.Fatal("expected save error to surface")
	}
	entries := b.Log()
	last := entries[len(entries)-1]
	if last.Type != store.MessageTypeSystem {
		t.Fatalf("last entry type = %q", last.Type)
	}
}
