package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	appconfig "github.com/mohammad-safakhou/boardroom/config"
	"github.com/mohammad-safakhou/boardroom/internal/board"
	"github.com/mohammad-safakhou/boardroom/internal/executor"
	"github.com/mohammad-safakhou/boardroom/internal/gateway"
	"github.com/mohammad-safakhou/boardroom/internal/notify"
	"github.com/mohammad-safakhou/boardroom/internal/runtime"
	"github.com/mohammad-safakhou/boardroom/internal/store"
	"github.com/mohammad-safakhou/boardroom/internal/telemetry"
)

// BoardHandler exposes discussions, strategies and execution over HTTP.
type BoardHandler struct {
	Config    *appconfig.Config
	Store     *store.Store
	Gateway   *gateway.Gateway
	Notifier  notify.Broadcaster
	Telemetry *telemetry.Telemetry
	Logger    *log.Logger
}

func (h *BoardHandler) Register(api *echo.Group, secret []byte) {
	g := api.Group("")
	g.Use(runtime.EchoAuthMiddleware(secret))

	g.GET("/status", h.status)
	g.GET("/board/messages", h.recentMessages)
	g.POST("/board/discussions", h.startDiscussion)

	g.GET("/strategies", h.listStrategies)
	g.GET("/strategies/:id", h.getStrategy)
	g.GET("/strategies/:id/messages", h.strategyMessages)
	g.GET("/strategies/:id/missions", h.strategyMissions)
	g.POST("/strategies/:id/approve", h.approveStrategy)
	g.POST("/strategies/:id/reject", h.rejectStrategy)
	g.POST("/strategies/:id/execute", h.executeStrategy)
}

type discussRequest struct {
	Topic string `json:"topic"`
}

type strategyResponse struct {
	ID        string `json:"strategy_id"`
	Topic     string `json:"topic"`
	Title     string `json:"title"`
	TLDR      string `json:"tldr"`
	Summary   string `json:"summary"`
	AppName   string `json:"app_name,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func toStrategyResponse(st store.Strategy) strategyResponse {
	return strategyResponse{
		ID:        st.ID,
		Topic:     st.Topic,
		Title:     st.Title,
		TLDR:      st.TLDR,
		Summary:   st.Summary,
		AppName:   st.AppName,
		Status:    st.Status,
		CreatedAt: st.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

type messageResponse struct {
	ID         int64  `json:"msg_id"`
	StrategyID string `json:"strategy_id"`
	Actor      string `json:"actor"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Timestamp  string `json:"timestamp"`
}

func toMessageResponse(m store.BoardMessage) messageResponse {
	return messageResponse{
		ID:         m.ID,
		StrategyID: m.StrategyID,
		Actor:      m.Actor,
		Message:    m.Message,
		Type:       m.Type,
		Timestamp:  m.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
	}
}

type statusResponse struct {
	DiscussionsStarted  int64              `json:"discussions_started"`
	DiscussionsFinished int64              `json:"discussions_finished"`
	AgentTurns          map[string]int64   `json:"agent_turns"`
	GatewayRequests     map[string]int64   `json:"gateway_requests"`
	GatewayFailures     map[string]int64   `json:"gateway_failures"`
	PromptTokens        map[string]int64   `json:"prompt_tokens"`
	CompletionTokens    map[string]int64   `json:"completion_tokens"`
	CostUSD             map[string]float64 `json:"cost_usd"`
	StepExecutions      map[string]int64   `json:"step_executions"`
	StepFailures        map[string]int64   `json:"step_failures"`
}

func (h *BoardHandler) status(c echo.Context) error {
	snap := h.Telemetry.Snapshot()
	return c.JSON(http.StatusOK, statusResponse{
		DiscussionsStarted:  snap.DiscussionsStarted,
		DiscussionsFinished: snap.DiscussionsFinished,
		AgentTurns:          snap.AgentTurns,
		GatewayRequests:     snap.GatewayRequests,
		GatewayFailures:     snap.GatewayFailures,
		PromptTokens:        snap.PromptTokens,
		CompletionTokens:    snap.CompletionTokens,
		CostUSD:             snap.CostUSD,
		StepExecutions:      snap.StepExecutions,
		StepFailures:        snap.StepFailures,
	})
}

func (h *BoardHandler) recentMessages(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	msgs, err := h.Store.ListRecentMessages(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return c.JSON(http.StatusOK, out)
}

// startDiscussion kicks off a board run in the background and returns the
// strategy id immediately.
func (h *BoardHandler) startDiscussion(c echo.Context) error {
	var req discussRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic is required")
	}
	userID, _ := runtime.SubjectFromContext(c.Request().Context())

	b := board.New(h.Config.LLM, req.Topic, userID, h.Gateway, h.Store, h.Notifier, h.Telemetry)
	go func() {
		if _, err := b.RunDiscussion(context.Background()); err != nil {
			h.Logger.Printf("discussion %s: %v", b.StrategyID, err)
		}
	}()
	return c.JSON(http.StatusAccepted, map[string]string{"strategy_id": b.StrategyID})
}

func (h *BoardHandler) listStrategies(c echo.Context) error {
	userID, _ := runtime.SubjectFromContext(c.Request().Context())
	strategies, err := h.Store.ListStrategies(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]strategyResponse, 0, len(strategies))
	for _, st := range strategies {
		out = append(out, toStrategyResponse(st))
	}
	return c.JSON(http.StatusOK, out)
}

type strategyDetailResponse struct {
	strategyResponse
	MissionsCompleted int `json:"missions_completed"`
	MissionsBlocked   int `json:"missions_blocked"`
}

func (h *BoardHandler) getStrategy(c echo.Context) error {
	ctx := c.Request().Context()
	st, err := h.Store.GetStrategy(ctx, c.Param("id"))
	if errors.Is(err, sql.ErrNoRows) {
		return echo.NewHTTPError(http.StatusNotFound, "strategy not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	completed, err := h.Store.MissionsByStatus(ctx, st.ID, []string{store.MissionStatusCompleted})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	blocked, err := h.Store.MissionsByStatus(ctx, st.ID, []string{store.MissionStatusBlocked})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, strategyDetailResponse{
		strategyResponse:  toStrategyResponse(st),
		MissionsCompleted: completed,
		MissionsBlocked:   blocked,
	})
}

func (h *BoardHandler) strategyMessages(c echo.Context) error {
	msgs, err := h.Store.ListBoardMessages(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return c.JSON(http.StatusOK, out)
}

type missionResponse struct {
	ID                 string          `json:"id"`
	MissionID          string          `json:"mission_id"`
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	Owner              string          `json:"owner"`
	Dependencies       json.RawMessage `json:"dependencies"`
	Steps              json.RawMessage `json:"steps"`
	AcceptanceCriteria json.RawMessage `json:"acceptance_criteria"`
	Status             string          `json:"status"`
}

func (h *BoardHandler) strategyMissions(c echo.Context) error {
	missions, err := h.Store.ListMissions(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]missionResponse, 0, len(missions))
	for _, m := range missions {
		out = append(out, missionResponse{
			ID:                 m.ID,
			MissionID:          m.MissionID,
			Title:              m.Title,
			Description:        m.Description,
			Owner:              m.Owner,
			Dependencies:       json.RawMessage(m.Dependencies),
			Steps:              json.RawMessage(m.Steps),
			AcceptanceCriteria: json.RawMessage(m.AcceptanceCriteria),
			Status:             m.Status,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *BoardHandler) approveStrategy(c echo.Context) error {
	return h.decideStrategy(c, store.StrategyStatusApproved)
}

func (h *BoardHandler) rejectStrategy(c echo.Context) error {
	return h.decideStrategy(c, store.StrategyStatusRejected)
}

// decideStrategy applies an approval decision. Only pending strategies can
// be decided; anything else reports a conflict with the current status.
func (h *BoardHandler) decideStrategy(c echo.Context, status string) error {
	id := c.Param("id")
	changed, err := h.Store.UpdateStrategyStatus(c.Request().Context(), id, status)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !changed {
		st, gerr := h.Store.GetStrategy(c.Request().Context(), id)
		if errors.Is(gerr, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "strategy not found")
		}
		if gerr != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, gerr.Error())
		}
		return echo.NewHTTPError(http.StatusConflict, "strategy already "+st.Status)
	}
	h.Notifier.BoardActivity(c.Request().Context(), id, "System", status)
	return c.JSON(http.StatusOK, map[string]string{"strategy_id": id, "status": status})
}

// executeStrategy launches the executor in the background. The strategy
// must have been approved first; failed runs may be retried.
func (h *BoardHandler) executeStrategy(c echo.Context) error {
	id := c.Param("id")
	st, err := h.Store.GetStrategy(c.Request().Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return echo.NewHTTPError(http.StatusNotFound, "strategy not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	switch st.Status {
	case store.StrategyStatusApproved, store.StrategyStatusFailed, store.StrategyStatusCompleted:
	case store.StrategyStatusExecuting:
		return echo.NewHTTPError(http.StatusConflict, "strategy is already executing")
	default:
		return echo.NewHTTPError(http.StatusConflict, "strategy is "+st.Status+", approve it first")
	}

	ex := executor.New(id, h.Store, h.Gateway, h.Config.Workspace, h.Telemetry)
	go func() {
		if err := ex.Execute(context.Background()); err != nil {
			h.Logger.Printf("execute strategy %s: %v", id, err)
		}
	}()
	return c.JSON(http.StatusAccepted, map[string]string{"strategy_id": id, "status": store.StrategyStatusExecuting})
}
