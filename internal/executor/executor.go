package executor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/boardroom/config"
	"github.com/mohammad-safakhou/boardroom/internal/board"
	"github.com/mohammad-safakhou/boardroom/internal/gateway"
	"github.com/mohammad-safakhou/boardroom/internal/plan"
	"github.com/mohammad-safakhou/boardroom/internal/store"
	"github.com/mohammad-safakhou/boardroom/internal/telemetry"
)

// PlanSource is the persistence surface the executor reads plans from and
// reports progress to. *store.Store satisfies it.
type PlanSource interface {
	GetStrategy(ctx context.Context, id string) (store.Strategy, error)
	LatestMessageByActor(ctx context.Context, strategyID, actor string) (store.BoardMessage, error)
	ListMissions(ctx context.Context, strategyID string) ([]store.Mission, error)
	UpdateMissionStatus(ctx context.Context, id, status string) error
	SetStrategyStatus(ctx context.Context, id, status string) error
}

// Plan is the loaded, normalized execution view of a strategy.
type Plan struct {
	StrategyID string
	Title      string
	TLDR       string
	Summary    string
	AppName    string
	Missions   []PlannedMission
}

// PlannedMission is one mission with its decoded steps.
type PlannedMission struct {
	RowID     string
	MissionID string
	Title     string
	Owner     string
	AppName   string
	Steps     []plan.Step
}

// Result is the structured outcome of one step. Error is empty when OK.
type Result struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Code     int      `json:"code,omitempty"`
	Stdout   string   `json:"stdout,omitempty"`
	Stderr   string   `json:"stderr,omitempty"`
	FilePath string   `json:"file_path,omitempty"`
	DirPath  string   `json:"dir_path,omitempty"`
	Bytes    int      `json:"bytes,omitempty"`
	Backend  string   `json:"backend,omitempty"`
	Model    string   `json:"model,omitempty"`
	Created  []string `json:"created,omitempty"`
}

func failure(format string, args ...interface{}) Result {
	return Result{OK: false, Error: fmt.Sprintf(format, args...)}
}

// Executor runs the missions of one saved strategy.
type Executor struct {
	strategyID string
	source     PlanSource
	gw         *gateway.Gateway
	workspace  config.WorkspaceConfig
	telemetry  *telemetry.Telemetry
	logger     *log.Logger
}

func New(strategyID string, source PlanSource, gw *gateway.Gateway, ws config.WorkspaceConfig, tel *telemetry.Telemetry) *Executor {
	return &Executor{
		strategyID: strategyID,
		source:     source,
		gw:         gw,
		workspace:  ws.Normalize(),
		telemetry:  tel,
		logger:     log.New(log.Writer(), "[EXECUTOR] ", log.LstdFlags),
	}
}

// LoadPlan assembles the execution plan from the strategy row, the
// finalizing agent's last message and the persisted missions. Metadata from
// the message wins over the strategy row; the topic is only a fallback
// title.
func (e *Executor) LoadPlan(ctx context.Context) (Plan, error) {
	e.logger.Printf("loading plan for strategy %s", e.strategyID)

	st, err := e.source.GetStrategy(ctx, e.strategyID)
	if err != nil {
		return Plan{}, fmt.Errorf("load strategy %s: %w", e.strategyID, err)
	}
	p := Plan{
		StrategyID: e.strategyID,
		Title:      st.Title,
		TLDR:       st.TLDR,
		Summary:    st.Summary,
		AppName:    st.AppName,
	}
	if p.Title == "" {
		p.Title = st.Topic
	}

	if msg, err := e.source.LatestMessageByActor(ctx, e.strategyID, board.FinalizingAgent); err == nil {
		if meta, ok := plan.ExtractMeta(msg.Message); ok {
			if title := metaString(meta, "strategy_title", "title"); title != "" {
				p.Title = title
			}
			if p.Summary == "" {
				p.Summary = metaString(meta, "summary")
			}
			if p.TLDR == "" {
				p.TLDR = metaString(meta, "tldr")
			}
			if app := metaString(meta, "app_name"); app != "" {
				p.AppName = plan.Slugify(app)
			}
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		e.logger.Printf("load final plan message: %v", err)
	}

	missions, err := e.source.ListMissions(ctx, e.strategyID)
	if err != nil {
		return Plan{}, fmt.Errorf("load missions of %s: %w", e.strategyID, err)
	}

	if p.AppName == "" {
		name := p.Title
		if name == "" {
			name = e.strategyID
		}
		p.AppName = plan.Slugify(name)
	}

	for _, m := range missions {
		var steps []plan.Step
		if len(m.Steps) > 0 {
			if err := json.Unmarshal(m.Steps, &steps); err != nil {
				e.logger.Printf("mission %s has undecodable steps: %v", m.MissionID, err)
				steps = nil
			}
		}
		p.Missions = append(p.Missions, PlannedMission{
			RowID:     m.ID,
			MissionID: m.MissionID,
			Title:     m.Title,
			Owner:     m.Owner,
			AppName:   p.AppName,
			Steps:     plan.RenumberSteps(steps),
		})
	}
	return p, nil
}

func metaString(meta map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := meta[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Execute runs every mission of the strategy in order. A failed step is
// reported and the run continues; the strategy ends failed only when at
// least one step failed.
func (e *Executor) Execute(ctx context.Context) error {
	p, err := e.LoadPlan(ctx)
	if err != nil {
		return err
	}

	// The app workspace always exists before any step touches it.
	if p.AppName != "" {
		res := e.runWorkspace(plan.WorkspaceParams{
			AppName:      p.AppName,
			CreateVSCode: e.workspace.CreateVSCode,
			Folders:      []string{"src", "tests", "docs"},
		})
		if !res.OK {
			return fmt.Errorf("prepare workspace for %s: %s", p.AppName, res.Error)
		}
	}

	if len(p.Missions) == 0 {
		e.logger.Printf("no missions found for strategy %s", e.strategyID)
		return nil
	}

	if err := e.source.SetStrategyStatus(ctx, e.strategyID, store.StrategyStatusExecuting); err != nil {
		e.logger.Printf("mark strategy executing: %v", err)
	}

	e.logger.Printf("executing strategy: %s", p.Title)
	anyFailed := false
	for _, m := range p.Missions {
		e.logger.Printf("mission %s (%s) owner=%s", m.MissionID, m.Title, m.Owner)
		if err := e.source.UpdateMissionStatus(ctx, m.RowID, store.MissionStatusInProgress); err != nil {
			e.logger.Printf("mark mission %s in progress: %v", m.MissionID, err)
		}

		missionFailed := false
		for _, step := range m.Steps {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.logger.Printf("  step %d: %s", step.Position, step.Description)
			res := e.runStep(ctx, step, m.AppName)
			e.reportTerminalOutput(step, res)
			if !res.OK {
				e.logger.Printf("  step %d failed: %s", step.Position, res.Error)
				missionFailed = true
			}
		}

		status := store.MissionStatusCompleted
		if missionFailed {
			status = store.MissionStatusBlocked
			anyFailed = true
		}
		if err := e.source.UpdateMissionStatus(ctx, m.RowID, status); err != nil {
			e.logger.Printf("mark mission %s %s: %v", m.MissionID, status, err)
		}
	}

	final := store.StrategyStatusCompleted
	if anyFailed {
		final = store.StrategyStatusFailed
	}
	if err := e.source.SetStrategyStatus(ctx, e.strategyID, final); err != nil {
		e.logger.Printf("mark strategy %s: %v", final, err)
	}
	e.logger.Printf("execution complete, status=%s", final)
	return nil
}

func (e *Executor) reportTerminalOutput(step plan.Step, res Result) {
	if step.Tool != plan.ToolTerminal {
		return
	}
	state := "OK"
	if !res.OK {
		state = "FAIL"
	}
	e.logger.Printf("  [terminal %s] exit=%d", state, res.Code)
	if res.Stdout != "" {
		e.logger.Printf("  stdout: %s", tail(res.Stdout, 10))
	}
	if res.Stderr != "" {
		e.logger.Printf("  stderr: %s", tail(res.Stderr, 10))
	}
}
