package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/browser"
	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/llmclient"
	"github.com/xkilldash9x/pilot-cli/internal/mocks"
)

const testStartURL = "https://start.test/"

// newTestSession builds a session over mock components with the given budget.
func newTestSession(t *testing.T, budget int, driver *mocks.MockDriver, planner *mocks.MockPlanner) *Session {
	t.Helper()
	cfg := config.AgentConfig{MaxSteps: budget, StartURL: testStartURL}
	task := Task{ID: "task-1", Goal: "find the pricing page"}
	session, err := NewSession(cfg, task, driver, planner, zaptest.NewLogger(t))
	require.NoError(t, err)
	return session
}

func assistantMessage(text string) schemas.Item {
	return schemas.Item{
		Type:    schemas.ItemMessage,
		Role:    schemas.RoleAssistant,
		Content: []schemas.ContentPart{{Type: schemas.ContentOutputText, Text: text}},
	}
}

func navigateCall(callID, url string) schemas.Item {
	return schemas.Item{
		Type:   schemas.ItemComputerCall,
		CallID: callID,
		Action: &schemas.Action{Type: schemas.ActionNavigate, URL: url},
	}
}

func testSnapshot(url string) schemas.Snapshot {
	return schemas.Snapshot{PNG: []byte{0x89, 'P', 'N', 'G'}, URL: url}
}

func TestNewSession_Validation(t *testing.T) {
	driver := new(mocks.MockDriver)
	planner := new(mocks.MockPlanner)
	logger := zaptest.NewLogger(t)

	base := config.AgentConfig{MaxSteps: 5, StartURL: testStartURL}

	tests := []struct {
		name    string
		goal    string
		cfg     config.AgentConfig
		taskURL string
		wantErr error
	}{
		{name: "EmptyGoal", goal: "", cfg: base, wantErr: ErrTaskEmpty},
		{name: "WhitespaceGoal", goal: " \t\n", cfg: base, wantErr: ErrTaskEmpty},
		{name: "NegativeBudget", goal: "ok", cfg: config.AgentConfig{MaxSteps: -1, StartURL: testStartURL}, wantErr: ErrNegativeBudget},
		{name: "NoStartURLAnywhere", goal: "ok", cfg: config.AgentConfig{MaxSteps: 5}, wantErr: ErrBadStartURL},
		{name: "RelativeStartURL", goal: "ok", cfg: base, taskURL: "/dashboard", wantErr: ErrBadStartURL},
		{name: "UnsupportedScheme", goal: "ok", cfg: base, taskURL: "ftp://files.test/pub", wantErr: ErrBadStartURL},
		{name: "MissingHost", goal: "ok", cfg: base, taskURL: "http://", wantErr: ErrBadStartURL},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			task := Task{Goal: tc.goal, StartURL: tc.taskURL}
			_, err := NewSession(tc.cfg, task, driver, planner, logger)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestNewSession_StartURLResolution(t *testing.T) {
	driver := new(mocks.MockDriver)
	planner := new(mocks.MockPlanner)
	logger := zaptest.NewLogger(t)
	cfg := config.AgentConfig{MaxSteps: 5, StartURL: "https://config.test/"}

	t.Run("TaskOverridesConfig", func(t *testing.T) {
		task := Task{Goal: "ok", StartURL: "https://task.test/login"}
		session, err := NewSession(cfg, task, driver, planner, logger)
		require.NoError(t, err)
		assert.Equal(t, "https://task.test/login", session.startURL)
	})

	t.Run("ConfigFallback", func(t *testing.T) {
		session, err := NewSession(cfg, Task{Goal: "ok"}, driver, planner, logger)
		require.NoError(t, err)
		assert.Equal(t, "https://config.test/", session.startURL)
	})

	t.Run("GeneratesTaskID", func(t *testing.T) {
		session, err := NewSession(cfg, Task{Goal: "ok"}, driver, planner, logger)
		require.NoError(t, err)
		_, parseErr := uuid.Parse(session.task.ID)
		assert.NoError(t, parseErr, "a missing task ID should be filled with a UUID")
	})
}

func TestSessionRun_FinishesOnAssistantMessage(t *testing.T) {
	defer goleak.VerifyNone(t)

	// Arrange
	driver := new(mocks.MockDriver)
	planner := new(mocks.MockPlanner)
	session := newTestSession(t, 5, driver, planner)

	call := navigateCall("call_1", "https://example.com")
	answer := assistantMessage("Example Domain")

	driver.On("Navigate", mock.Anything, testStartURL).Return(nil).Once()
	planner.On("Propose", mock.Anything, mock.Anything).Return([]schemas.Item{call, answer}, nil).Once()
	driver.On("Execute", mock.Anything, mock.MatchedBy(func(a schemas.Action) bool {
		return a.Type == schemas.ActionNavigate && a.URL == "https://example.com"
	})).Return(nil).Once()
	driver.On("Capture", mock.Anything).Return(testSnapshot("https://example.com/"), nil).Once()
	driver.On("Location", mock.Anything).Return("https://example.com/", nil).Once()

	// Act
	result, err := session.Run(context.Background())

	// Assert
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, StateFinished, result.State)
	assert.Equal(t, StateFinished, session.State())
	assert.Equal(t, 1, result.Steps, "call and answer in one batch should cost a single step")
	assert.Empty(t, result.Reason)
	assert.Equal(t, "https://example.com/", result.FinalURL)
	assert.Equal(t, []string{
		"Navigated to https://start.test/",
		"Action: navigate(url=https://example.com)",
		"Agent: Example Domain",
		"Final URL: https://example.com/",
	}, result.Log)
	assert.Equal(t, strings.Join(result.Log, "\n"), result.Text())

	// The transcript pairs the call with its output before the final answer.
	items := session.Items()
	require.Len(t, items, 4)
	assert.Equal(t, schemas.ItemMessage, items[0].Type)
	assert.Equal(t, schemas.RoleUser, items[0].Role)
	assert.Equal(t, schemas.ItemComputerCall, items[1].Type)
	assert.Equal(t, schemas.ItemComputerCallOutput, items[2].Type)
	assert.Equal(t, "call_1", items[2].CallID)
	assert.True(t, items[3].IsAssistantMessage())

	driver.AssertExpectations(t)
	planner.AssertExpectations(t)
}

func TestSessionRun_BudgetExhausted(t *testing.T) {
	t.Run("ZeroBudget", func(t *testing.T) {
		driver := new(mocks.MockDriver)
		planner := new(mocks.MockPlanner)
		session := newTestSession(t, 0, driver, planner)

		driver.On("Navigate", mock.Anything, testStartURL).Return(nil).Once()
		driver.On("Location", mock.Anything).Return(testStartURL, nil).Once()

		result, err := session.Run(context.Background())

		// Running out of budget is a terminal outcome, not an error.
		require.NoError(t, err)
		assert.Equal(t, StateAborted, result.State)
		assert.Equal(t, ReasonBudgetExhausted, result.Reason)
		assert.Zero(t, result.Steps)
		planner.AssertNumberOfCalls(t, "Propose", 0)
		driver.AssertExpectations(t)
	})

	t.Run("BudgetSpent", func(t *testing.T) {
		driver := new(mocks.MockDriver)
		planner := new(mocks.MockPlanner)
		session := newTestSession(t, 3, driver, planner)

		// The model keeps asking for screenshots and never answers.
		call := schemas.Item{
			Type:   schemas.ItemComputerCall,
			CallID: "call_shot",
			Action: &schemas.Action{Type: schemas.ActionScreenshot},
		}
		driver.On("Navigate", mock.Anything, testStartURL).Return(nil).Once()
		planner.On("Propose", mock.Anything, mock.Anything).Return([]schemas.Item{call}, nil).Times(3)
		driver.On("Execute", mock.Anything, mock.Anything).Return(nil).Times(3)
		driver.On("Capture", mock.Anything).Return(testSnapshot(testStartURL), nil).Times(3)
		driver.On("Location", mock.Anything).Return(testStartURL, nil).Once()

		result, err := session.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, StateAborted, result.State)
		assert.Equal(t, ReasonBudgetExhausted, result.Reason)
		assert.Equal(t, 3, result.Steps)
		planner.AssertNumberOfCalls(t, "Propose", 3)
		driver.AssertExpectations(t)
		planner.AssertExpectations(t)
	})
}

func TestSessionRun_EchoesSafetyChecks(t *testing.T) {
	// Arrange
	driver := new(mocks.MockDriver)
	planner := new(mocks.MockPlanner)
	session := newTestSession(t, 5, driver, planner)

	checks := []schemas.SafetyCheck{{
		ID:      "cu_sc_81",
		Code:    "malicious_instructions",
		Message: "The page contains instructions addressed to the model.",
	}}
	call := schemas.Item{
		Type:                schemas.ItemComputerCall,
		CallID:              "call_guard",
		Action:              &schemas.Action{Type: schemas.ActionClick, X: 114, Y: 212},
		PendingSafetyChecks: checks,
	}

	driver.On("Navigate", mock.Anything, testStartURL).Return(nil).Once()
	planner.On("Propose", mock.Anything, mock.Anything).Return([]schemas.Item{call}, nil).Once()
	planner.On("Propose", mock.Anything, mock.Anything).Return([]schemas.Item{assistantMessage("done")}, nil).Once()
	driver.On("Execute", mock.Anything, mock.Anything).Return(nil).Once()
	driver.On("Capture", mock.Anything).Return(testSnapshot("https://start.test/checkout"), nil).Once()
	driver.On("Location", mock.Anything).Return("https://start.test/checkout", nil).Once()

	// Act
	result, err := session.Run(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, StateFinished, result.State)
	assert.Equal(t, 2, result.Steps)

	// The second round trip must carry the call followed by an output that
	// acknowledges every pending check.
	sent := planner.Seen(1)
	require.Len(t, sent, 3)
	assert.Equal(t, schemas.ItemComputerCall, sent[1].Type)
	output := sent[2]
	require.Equal(t, schemas.ItemComputerCallOutput, output.Type)
	assert.Equal(t, "call_guard", output.CallID)
	assert.Equal(t, checks, output.AcknowledgedSafetyChecks)
	require.NotNil(t, output.Output)
	assert.True(t, strings.HasPrefix(output.Output.ImageURL, "data:image/png;base64,"))
	assert.Equal(t, "https://start.test/checkout", output.Output.CurrentURL)

	planner.AssertExpectations(t)
}

func TestSessionRun_AbortsOnGatewayError(t *testing.T) {
	driver := new(mocks.MockDriver)
	planner := new(mocks.MockPlanner)
	session := newTestSession(t, 5, driver, planner)

	gatewayErr := fmt.Errorf("%w: context deadline exceeded", llmclient.ErrGatewayTimeout)
	driver.On("Navigate", mock.Anything, testStartURL).Return(nil).Once()
	planner.On("Propose", mock.Anything, mock.Anything).Return(nil, gatewayErr).Once()
	driver.On("Location", mock.Anything).Return(testStartURL, nil).Once()

	result, err := session.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, llmclient.ErrGatewayTimeout, "gateway errors must stay classifiable through Run")
	assert.Equal(t, StateAborted, result.State)
	assert.Equal(t, err.Error(), result.Reason)
	assert.Equal(t, 1, result.Steps)
	assert.Contains(t, result.Log, "Error: "+gatewayErr.Error())
	// The closing line is still written on the failure path.
	assert.Equal(t, testStartURL, result.FinalURL)
}

func TestSessionRun_AbortsOnUnsupportedAction(t *testing.T) {
	driver := new(mocks.MockDriver)
	planner := new(mocks.MockPlanner)
	session := newTestSession(t, 5, driver, planner)

	call := schemas.Item{
		Type:   schemas.ItemComputerCall,
		CallID: "call_bad",
		Action: &schemas.Action{Type: "teleport"},
	}
	execErr := fmt.Errorf("%w: %q", browser.ErrUnsupportedAction, "teleport")

	driver.On("Navigate", mock.Anything, testStartURL).Return(nil).Once()
	planner.On("Propose", mock.Anything, mock.Anything).Return([]schemas.Item{call}, nil).Once()
	driver.On("Execute", mock.Anything, mock.Anything).Return(execErr).Once()
	driver.On("Location", mock.Anything).Return(testStartURL, nil).Once()

	result, err := session.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrUnsupportedAction)
	assert.Equal(t, StateAborted, result.State)

	// The failing call stays in the transcript without an output item.
	items := session.Items()
	require.Len(t, items, 2)
	assert.Equal(t, schemas.ItemComputerCall, items[1].Type)
	driver.AssertNotCalled(t, "Capture", mock.Anything)
}

func TestSessionRun_AbortsOnMissingAction(t *testing.T) {
	driver := new(mocks.MockDriver)
	planner := new(mocks.MockPlanner)
	session := newTestSession(t, 5, driver, planner)

	call := schemas.Item{Type: schemas.ItemComputerCall, CallID: "call_empty"}
	driver.On("Navigate", mock.Anything, testStartURL).Return(nil).Once()
	planner.On("Propose", mock.Anything, mock.Anything).Return([]schemas.Item{call}, nil).Once()
	driver.On("Location", mock.Anything).Return(testStartURL, nil).Once()

	result, err := session.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "carries no action")
	assert.Equal(t, StateAborted, result.State)
	driver.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestSessionRun_OpeningNavigationFails(t *testing.T) {
	driver := new(mocks.MockDriver)
	planner := new(mocks.MockPlanner)
	session := newTestSession(t, 5, driver, planner)

	navErr := errors.New("net::ERR_NAME_NOT_RESOLVED")
	driver.On("Navigate", mock.Anything, testStartURL).Return(navErr).Once()
	driver.On("Location", mock.Anything).Return("", browser.ErrNoActivePage).Once()

	result, err := session.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, navErr)
	assert.Contains(t, err.Error(), "failed to open start page")
	assert.Equal(t, StateAborted, result.State)
	assert.Zero(t, result.Steps)
	assert.Empty(t, result.FinalURL)

	// Nothing was opened, so the only log line is the failure itself.
	require.Len(t, result.Log, 1)
	assert.True(t, strings.HasPrefix(result.Log[0], "Error: "))
	planner.AssertNumberOfCalls(t, "Propose", 0)
}

func TestSessionRun_ContextCancelled(t *testing.T) {
	driver := new(mocks.MockDriver)
	planner := new(mocks.MockPlanner)
	session := newTestSession(t, 5, driver, planner)

	driver.On("Navigate", mock.Anything, testStartURL).Return(nil).Once()
	driver.On("Location", mock.Anything).Return(testStartURL, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := session.Run(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateAborted, result.State)
	assert.Zero(t, result.Steps, "no step should start once the context is gone")
	planner.AssertNumberOfCalls(t, "Propose", 0)
}

func TestSessionRun_FinalURLBestEffort(t *testing.T) {
	driver := new(mocks.MockDriver)
	planner := new(mocks.MockPlanner)
	session := newTestSession(t, 5, driver, planner)

	driver.On("Navigate", mock.Anything, testStartURL).Return(nil).Once()
	planner.On("Propose", mock.Anything, mock.Anything).Return([]schemas.Item{assistantMessage("done")}, nil).Once()
	driver.On("Location", mock.Anything).Return("", browser.ErrNoActivePage).Once()

	result, err := session.Run(context.Background())

	// A page that cannot report its address only costs the closing line.
	require.NoError(t, err)
	assert.Equal(t, StateFinished, result.State)
	assert.Empty(t, result.FinalURL)
	for _, line := range result.Log {
		assert.False(t, strings.HasPrefix(line, "Final URL:"), "unexpected closing line: %s", line)
	}
}

func TestSessionRun_OpaqueItemsRideAlong(t *testing.T) {
	driver := new(mocks.MockDriver)
	planner := new(mocks.MockPlanner)
	session := newTestSession(t, 5, driver, planner)

	reasoning := schemas.Item{Type: schemas.ItemReasoning, ID: "rs_1"}
	// An assistant message with no text still finishes the session, it just
	// leaves no Agent line in the log.
	silent := schemas.Item{Type: schemas.ItemMessage, Role: schemas.RoleAssistant}

	driver.On("Navigate", mock.Anything, testStartURL).Return(nil).Once()
	planner.On("Propose", mock.Anything, mock.Anything).Return([]schemas.Item{reasoning, silent}, nil).Once()
	driver.On("Location", mock.Anything).Return(testStartURL, nil).Once()

	result, err := session.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateFinished, result.State)
	require.Len(t, session.Items(), 3)
	assert.Equal(t, []string{
		"Navigated to " + testStartURL,
		"Final URL: " + testStartURL,
	}, result.Log)
}
