package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mcp-meal-triggers/internal/experiment"
	"mcp-meal-triggers/internal/models"
	"mcp-meal-triggers/internal/triggers"
)

var (
	ErrPatternNotFound = errors.New("pattern not found in current analysis")
	errInvalidParams   = errors.New("invalid parameters")
)

type LogMealParams struct {
	ID        string  `json:"id,omitempty" description:"Meal identifier (generated when empty)"`
	Name      string  `json:"name,omitempty" description:"Short name of the meal"`
	CreatedAt int64   `json:"created_at,omitempty" description:"Epoch milliseconds the meal was logged at (defaults to now)"`
	Time      string  `json:"time,omitempty" description:"Clock time eaten, HH:MM 24h"`
	Type      string  `json:"type,omitempty" description:"Breakfast, Lunch, Dinner or Snack"`
	Tags      string  `json:"tags,omitempty" description:"Comma separated foods or ingredients"`
	Calories  float64 `json:"calories,omitempty" description:"kcal"`
	Protein   float64 `json:"protein,omitempty" description:"grams"`
	Carbs     float64 `json:"carbs,omitempty" description:"grams"`
	Fats      float64 `json:"fats,omitempty" description:"grams"`
	Finished  *bool   `json:"finished,omitempty" description:"Whether the meal was finished"`
	Feeling   string  `json:"feeling,omitempty" description:"good, okay, sick or bloated"`
}

type GetMealsParams struct {
	StartDate string `json:"start_date,omitempty" description:"Start date for meal query (YYYY-MM-DD)"`
	EndDate   string `json:"end_date,omitempty" description:"End date for meal query (YYYY-MM-DD, inclusive)"`
	Limit     int    `json:"limit,omitempty" description:"Maximum number of meals to return"`
}

type DismissPatternParams struct {
	Key    string `json:"key" description:"Name of the pattern to dismiss"`
	Reason string `json:"reason,omitempty" description:"Why the pattern is not useful"`
}

type StartExperimentParams struct {
	Trigger string `json:"trigger" description:"Name of the pattern to eliminate"`
}

// ExperimentStatus is returned by experiment_status and stop_experiment.
type ExperimentStatus struct {
	State      string                 `json:"state"`
	Stopped    bool                   `json:"stopped,omitempty"`
	Experiment *experiment.Experiment `json:"experiment,omitempty"`
	Results    *experiment.Results    `json:"results,omitempty"`
}

// extractParams safely extracts parameters from the request arguments
func extractParams(req *protocol.CallToolRequest, target interface{}) error {
	jsonBytes, err := json.Marshal(req.Arguments)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal arguments: %v", errInvalidParams, err)
	}

	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}

	return nil
}

func (s *TriggerServer) registerTools() {
	s.tools = map[string]toolHandler{
		"log_meal":          s.handleLogMeal,
		"get_meals":         s.handleGetMeals,
		"analyze_triggers":  s.handleAnalyzeTriggers,
		"dismiss_pattern":   s.handleDismissPattern,
		"list_dismissed":    s.handleListDismissed,
		"undismiss_pattern": s.handleUndismissPattern,
		"start_experiment":  s.handleStartExperiment,
		"experiment_status": s.handleExperimentStatus,
		"stop_experiment":   s.handleStopExperiment,
	}

	for name := range s.tools {
		s.logger.Debug("registered tool", zap.String("tool", name))
	}
}

func (s *TriggerServer) handleLogMeal(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params LogMealParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	meal := &models.MealRecord{
		ID:        params.ID,
		Name:      strings.TrimSpace(params.Name),
		CreatedAt: params.CreatedAt,
		Time:      strings.TrimSpace(params.Time),
		Type:      params.Type,
		Tags:      params.Tags,
		Calories:  params.Calories,
		Protein:   params.Protein,
		Carbs:     params.Carbs,
		Fats:      params.Fats,
		Finished:  params.Finished,
		Feeling:   models.Feeling(strings.ToLower(strings.TrimSpace(params.Feeling))),
	}
	if meal.ID == "" {
		meal.ID = "meal_" + uuid.NewString()
	}
	if meal.CreatedAt == 0 {
		meal.CreatedAt = s.now().UnixMilli()
	}
	if params.Type != "" {
		meal.Type = string(models.ParseMealType(params.Type))
	}

	if err := s.storage.SaveMeal(ctx, meal); err != nil {
		return nil, fmt.Errorf("failed to save meal: %w", err)
	}
	s.logger.Info("meal logged", zap.String("id", meal.ID), zap.String("feeling", string(meal.Outcome())))

	return s.createJSONResponse(meal)
}

func (p *LogMealParams) validate() error {
	for name, v := range map[string]float64{
		"calories": p.Calories, "protein": p.Protein, "carbs": p.Carbs, "fats": p.Fats,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s must not be negative", errInvalidParams, name)
		}
	}
	if p.CreatedAt < 0 {
		return fmt.Errorf("%w: created_at must not be negative", errInvalidParams)
	}
	if t := strings.TrimSpace(p.Time); t != "" {
		if _, err := time.Parse("15:04", t); err != nil {
			return fmt.Errorf("%w: time must be HH:MM", errInvalidParams)
		}
	}
	switch models.Feeling(strings.ToLower(strings.TrimSpace(p.Feeling))) {
	case "", models.FeelingGood, models.FeelingOkay, models.FeelingSick, models.FeelingBloated:
	default:
		return fmt.Errorf("%w: feeling must be one of good, okay, sick, bloated", errInvalidParams)
	}
	return nil
}

func (s *TriggerServer) handleGetMeals(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params GetMealsParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	// Set defaults
	if params.Limit <= 0 {
		params.Limit = 20
	}

	var from, to time.Time
	var err error
	if params.StartDate != "" {
		if from, err = time.ParseInLocation("2006-01-02", params.StartDate, s.loc); err != nil {
			return nil, fmt.Errorf("%w: invalid start_date: %v", errInvalidParams, err)
		}
	}
	if params.EndDate != "" {
		if to, err = time.ParseInLocation("2006-01-02", params.EndDate, s.loc); err != nil {
			return nil, fmt.Errorf("%w: invalid end_date: %v", errInvalidParams, err)
		}
		to = to.AddDate(0, 0, 1)
	}

	meals, err := s.storage.GetMeals(ctx, from, to, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve meals: %w", err)
	}

	return s.createJSONResponse(meals)
}

// analyze loads the full log and dismissals and runs the engine.
func (s *TriggerServer) analyze(ctx context.Context) (triggers.Analysis, []models.MealRecord, error) {
	meals, err := s.storage.AllMeals(ctx)
	if err != nil {
		return triggers.Analysis{}, nil, fmt.Errorf("failed to load meals: %w", err)
	}
	dismissed, err := s.storage.ListDismissed(ctx)
	if err != nil {
		return triggers.Analysis{}, nil, fmt.Errorf("failed to load dismissed patterns: %w", err)
	}

	started := time.Now()
	analysis := s.engine.Analyze(meals, dismissed)
	s.metrics.AnalysisDuration.Observe(time.Since(started).Seconds())
	s.metrics.AnalysesTotal.Inc()
	s.metrics.MealsAnalyzed.Set(float64(analysis.TotalMealsAnalyzed))
	s.metrics.PatternsSurfaced.WithLabelValues(string(triggers.Negative)).Set(float64(len(analysis.Patterns)))
	s.metrics.PatternsSurfaced.WithLabelValues(string(triggers.Positive)).Set(float64(len(analysis.PositivePatterns)))

	return analysis, meals, nil
}

func (s *TriggerServer) handleAnalyzeTriggers(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	analysis, _, err := s.analyze(ctx)
	if err != nil {
		return nil, err
	}
	return s.createJSONResponse(analysis)
}

func (s *TriggerServer) handleDismissPattern(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params DismissPatternParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if params.Key == "" {
		return nil, fmt.Errorf("%w: key is required", errInvalidParams)
	}

	d := triggers.Dismiss(params.Key, strings.TrimSpace(params.Reason), s.now().UTC())
	if err := s.storage.AddDismissed(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to dismiss pattern: %w", err)
	}
	s.logger.Info("pattern dismissed", zap.String("key", d.Key))

	return s.createJSONResponse(d)
}

func (s *TriggerServer) handleListDismissed(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	dismissed, err := s.storage.ListDismissed(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list dismissed patterns: %w", err)
	}
	return s.createJSONResponse(dismissed)
}

func (s *TriggerServer) handleUndismissPattern(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params DismissPatternParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if params.Key == "" {
		return nil, fmt.Errorf("%w: key is required", errInvalidParams)
	}
	if err := s.storage.RemoveDismissed(ctx, params.Key); err != nil {
		return nil, err
	}
	return s.createJSONResponse(map[string]string{"restored": params.Key})
}

func (s *TriggerServer) handleStartExperiment(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params StartExperimentParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if params.Trigger == "" {
		return nil, fmt.Errorf("%w: trigger is required", errInvalidParams)
	}

	analysis, _, err := s.analyze(ctx)
	if err != nil {
		return nil, err
	}
	pattern, ok := analysis.FindTrigger(params.Trigger)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPatternNotFound, params.Trigger)
	}

	state, err := s.tracker.State(ctx)
	if err != nil {
		return nil, err
	}
	exp, err := s.tracker.Start(ctx, pattern)
	if err != nil {
		return nil, err
	}
	if state == experiment.StateActive {
		s.metrics.ExperimentTransitions.WithLabelValues("replace").Inc()
	} else {
		s.metrics.ExperimentTransitions.WithLabelValues("start").Inc()
	}

	return s.createJSONResponse(exp)
}

func (s *TriggerServer) handleExperimentStatus(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	status, err := s.experimentStatus(ctx)
	if err != nil {
		return nil, err
	}
	return s.createJSONResponse(status)
}

// handleStopExperiment returns the final results, computed before the slot
// is cleared.
func (s *TriggerServer) handleStopExperiment(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	status, err := s.experimentStatus(ctx)
	if err != nil {
		return nil, err
	}

	stopped, err := s.tracker.Stop(ctx)
	if err != nil {
		return nil, err
	}
	if stopped {
		s.metrics.ExperimentTransitions.WithLabelValues("stop").Inc()
	}
	status.State = experiment.StateNone.String()
	status.Stopped = stopped

	return s.createJSONResponse(status)
}

func (s *TriggerServer) experimentStatus(ctx context.Context) (ExperimentStatus, error) {
	meals, err := s.storage.AllMeals(ctx)
	if err != nil {
		return ExperimentStatus{}, fmt.Errorf("failed to load meals: %w", err)
	}

	exp, results, err := s.tracker.Results(ctx, meals)
	if errors.Is(err, experiment.ErrNoActiveExperiment) {
		return ExperimentStatus{State: experiment.StateNone.String()}, nil
	}
	if err != nil {
		return ExperimentStatus{}, err
	}
	return ExperimentStatus{
		State:      experiment.StateActive.String(),
		Experiment: &exp,
		Results:    &results,
	}, nil
}
