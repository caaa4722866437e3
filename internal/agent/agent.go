// internal/agent/agent.go

// Package agent drives one browsing task end to end. A Session seeds a
// transcript with the task, asks the model gateway what to do next, performs
// the returned computer calls against the browser, answers each with a fresh
// screenshot, and stops when the model replies in plain text or the step
// budget runs out.
package agent

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
)

// Driver is the browser surface a session steers. *browser.Driver satisfies
// it; tests substitute fakes. The session only borrows the driver: starting
// and stopping the browser stays with the caller, so teardown happens
// exactly once on every exit path.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Execute(ctx context.Context, action schemas.Action) error
	Capture(ctx context.Context) (schemas.Snapshot, error)
	Location(ctx context.Context) (string, error)
}

// Planner proposes the next transcript items for the current exchange.
// llmclient.Planner satisfies it.
type Planner interface {
	Propose(ctx context.Context, transcript []schemas.Item) ([]schemas.Item, error)
}

// Session runs a single task. Create one per task with NewSession and call
// Run once; a session carries no state across tasks.
type Session struct {
	id       string
	task     Task
	startURL string
	budget   int

	driver  Driver
	planner Planner
	logger  *zap.Logger

	transcript Transcript
	log        SessionLog

	mu    sync.Mutex
	state SessionState
	steps int
}

// NewSession validates the task and binds it to a driver and planner. The
// start URL resolves task over config; the step budget comes from config
// and may be zero.
func NewSession(cfg config.AgentConfig, task Task, driver Driver, planner Planner, logger *zap.Logger) (*Session, error) {
	if strings.TrimSpace(task.Goal) == "" {
		return nil, ErrTaskEmpty
	}
	if cfg.MaxSteps < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeBudget, cfg.MaxSteps)
	}

	startURL := task.StartURL
	if startURL == "" {
		startURL = cfg.StartURL
	}
	if err := checkStartURL(startURL); err != nil {
		return nil, err
	}

	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	sessionID := uuid.New().String()[:8]

	return &Session{
		id:       sessionID,
		task:     task,
		startURL: startURL,
		budget:   cfg.MaxSteps,
		driver:   driver,
		planner:  planner,
		logger: logger.Named("agent").With(
			zap.String("session_id", sessionID),
			zap.String("task_id", task.ID)),
		state: StateStarting,
	}, nil
}

// checkStartURL accepts only absolute http(s) addresses. Anything else would
// send the browser somewhere the model cannot observe.
func checkStartURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrBadStartURL, raw)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrBadStartURL, raw)
	}
	return nil
}

// Run drives the task to a terminal state. The returned Result is never nil:
// on error it carries the log collected up to the failure, with the failure
// itself recorded as the final "Error:" line. Run is not restartable.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	s.logger.Info("Session starting.",
		zap.String("goal", s.task.Goal),
		zap.String("start_url", s.startURL),
		zap.Int("max_steps", s.budget))

	if err := s.driver.Navigate(ctx, s.startURL); err != nil {
		return s.abort(ctx, fmt.Errorf("failed to open start page %s: %w", s.startURL, err))
	}
	s.log.Opened(s.startURL)
	s.transcript.Append(schemas.NewUserMessage(s.task.Goal))

	s.setState(StateStepping)

	for s.Steps() < s.budget {
		// Cancellation is cooperative: checked between steps, never mid
		// action, so the transcript cannot end with an unanswered call.
		if err := ctx.Err(); err != nil {
			return s.abort(ctx, err)
		}

		finished, err := s.step(ctx)
		if err != nil {
			return s.abort(ctx, err)
		}
		if finished {
			s.setState(StateFinished)
			s.logger.Info("Session finished.", zap.Int("steps", s.Steps()))
			return s.conclude(ctx, ""), nil
		}
	}

	s.setState(StateAborted)
	s.logger.Warn("Session aborted.",
		zap.String("reason", ReasonBudgetExhausted),
		zap.Int("steps", s.Steps()))
	return s.conclude(ctx, ReasonBudgetExhausted), nil
}

// step performs one gateway round trip. Everything the model proposed is
// appended in arrival order, computer calls are executed strictly
// sequentially, and each call's output lands directly behind it. Returns
// true when the newest transcript entry is the model's final answer.
func (s *Session) step(ctx context.Context) (bool, error) {
	step := s.bumpSteps()
	s.logger.Debug("Stepping.",
		zap.Int("step", step),
		zap.Int("transcript_len", s.transcript.Len()))

	proposed, err := s.planner.Propose(ctx, s.transcript.Items())
	if err != nil {
		return false, err
	}

	for _, item := range proposed {
		s.transcript.Append(item)

		switch item.Type {
		case schemas.ItemMessage:
			if text := item.MessageText(); text != "" {
				s.log.AgentSaid(text)
				s.logger.Info("Agent message.", zap.String("text", text))
			}
		case schemas.ItemComputerCall:
			output, err := s.performCall(ctx, item)
			if err != nil {
				return false, err
			}
			s.transcript.Append(output)
		default:
			// Reasoning and any future item kinds ride along in the
			// transcript untouched; Raw keeps their bytes intact.
		}
	}

	last, ok := s.transcript.Last()
	return ok && last.IsAssistantMessage(), nil
}

// performCall executes one computer call and builds the matching output
// item. Pending safety checks are echoed back as acknowledged; without the
// echo the gateway refuses to continue the exchange.
func (s *Session) performCall(ctx context.Context, call schemas.Item) (schemas.Item, error) {
	if call.Action == nil {
		return schemas.Item{}, fmt.Errorf("computer call %q carries no action", call.CallID)
	}
	action := *call.Action

	s.log.ActionTaken(action.Summary())
	s.logger.Info("Executing action.",
		zap.String("call_id", call.CallID),
		zap.String("action", action.Summary()))

	for _, check := range call.PendingSafetyChecks {
		s.logger.Warn("Acknowledging safety check.",
			zap.String("check_id", check.ID),
			zap.String("message", check.Message))
	}

	if err := s.driver.Execute(ctx, action); err != nil {
		return schemas.Item{}, err
	}

	snap, err := s.driver.Capture(ctx)
	if err != nil {
		return schemas.Item{}, err
	}

	return schemas.NewComputerCallOutput(call.CallID, call.PendingSafetyChecks, snap.DataURL(), snap.URL), nil
}

// conclude gathers the final URL and assembles the run's result. The URL
// lookup is best effort: a run that aborted because the browser died still
// returns its log.
func (s *Session) conclude(ctx context.Context, reason string) *Result {
	var finalURL string
	if loc, err := s.driver.Location(ctx); err == nil {
		finalURL = loc
		s.log.Closed(loc)
	} else {
		s.logger.Debug("Final URL unavailable.", zap.Error(err))
	}

	return &Result{
		TaskID:   s.task.ID,
		State:    s.State(),
		Reason:   reason,
		Steps:    s.Steps(),
		FinalURL: finalURL,
		Log:      s.log.Lines(),
	}
}

// abort ends the run on err. The error becomes the last event line so the
// trace never ends silently mid action.
func (s *Session) abort(ctx context.Context, err error) (*Result, error) {
	s.log.Failed(err)
	s.setState(StateAborted)
	s.logger.Error("Session aborted.", zap.Error(err), zap.Int("steps", s.Steps()))
	return s.conclude(ctx, err.Error()), err
}

// State reports where the session is in its lifecycle. Safe to call while
// Run is in flight.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Steps reports the number of gateway round trips taken so far.
func (s *Session) Steps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

// Items returns a copy of the model facing transcript, in order.
func (s *Session) Items() []schemas.Item {
	return s.transcript.Items()
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Session) bumpSteps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps++
	return s.steps
}
