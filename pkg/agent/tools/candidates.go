package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/knolabs/voicedesk/pkg/agent/types"
	"github.com/knolabs/voicedesk/pkg/crm"
)

const (
	ToolSaveCandidate          = "save_candidate"
	ToolScheduleInterview      = "schedule_interview"
	ToolRecordScreeningAnswers = "record_screening_answers"
)

// SaveCandidate stores the caller's email and name as a CRM candidate record.
type SaveCandidate struct {
	CRM    *crm.Client
	Logger *slog.Logger
}

func (t *SaveCandidate) Schema() types.ToolSchema {
	return types.ToolSchema{
		Name:        ToolSaveCandidate,
		Description: "Called to save the candidate's email and name in the system.",
		Parameters: []types.Param{
			{Name: "email", Type: types.ParamString, Description: "The candidate's email address", Required: true, Format: types.FormatEmail},
			{Name: "name", Type: types.ParamString, Description: "The candidate's full name", Required: true},
		},
	}
}

func (t *SaveCandidate) Call(ctx context.Context, args map[string]any) types.ToolCallResult {
	email := stringArg(args, "email")
	name := stringArg(args, "name")

	id, err := t.CRM.CreateCandidate(ctx, email, name)
	if err != nil {
		t.logger().Error("saving candidate failed", "error", err)
		return types.ToolCallResult{
			Tool:    ToolSaveCandidate,
			Outcome: types.OutcomeFailure,
			Message: "Failed to save candidate details. Please try again.",
		}
	}
	return types.ToolCallResult{
		Tool:    ToolSaveCandidate,
		Outcome: types.OutcomeSuccess,
		Message: fmt.Sprintf("Candidate details saved with ID: %s.", id),
	}
}

func (t *SaveCandidate) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// ScheduleInterview books an interview slot for a saved candidate.
type ScheduleInterview struct {
	CRM    *crm.Client
	Logger *slog.Logger
}

func (t *ScheduleInterview) Schema() types.ToolSchema {
	return types.ToolSchema{
		Name:        ToolScheduleInterview,
		Description: "Schedule an interview slot for the candidate.",
		Parameters: []types.Param{
			{Name: "email", Type: types.ParamString, Description: "The candidate's email address", Required: true, Format: types.FormatEmail},
			{Name: "slot", Type: types.ParamString, Description: "The interview slot in ISO 8601 format (e.g., 2025-01-18T10:30:00+00:00)", Required: true},
		},
	}
}

func (t *ScheduleInterview) Call(ctx context.Context, args map[string]any) types.ToolCallResult {
	email := stringArg(args, "email")
	slot := stringArg(args, "slot")

	if err := t.CRM.ScheduleInterview(ctx, email, slot); err != nil {
		t.logger().Error("scheduling interview failed", "error", err)
		return types.ToolCallResult{
			Tool:    ToolScheduleInterview,
			Outcome: types.OutcomeFailure,
			Message: "Failed to schedule the interview. Please try again.",
		}
	}
	return types.ToolCallResult{
		Tool:    ToolScheduleInterview,
		Outcome: types.OutcomeSuccess,
		Message: fmt.Sprintf("Interview scheduled successfully for %s.", slot),
	}
}

func (t *ScheduleInterview) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// RecordScreeningAnswers captures basic screening answers. It performs no
// external I/O; the answers are recorded in the operator log.
type RecordScreeningAnswers struct {
	Logger *slog.Logger
}

func (t *RecordScreeningAnswers) Schema() types.ToolSchema {
	return types.ToolSchema{
		Name:        ToolRecordScreeningAnswers,
		Description: "Record the candidate's answers to basic screening questions like experience and skills.",
		Parameters: []types.Param{
			{Name: "experience", Type: types.ParamString, Description: "Candidate's years of experience", Required: true},
			{Name: "skills", Type: types.ParamString, Description: "Candidate's key skills", Required: true},
			{Name: "previous_companies", Type: types.ParamString, Description: "Names of previous companies the candidate has worked for", Required: true},
		},
	}
}

func (t *RecordScreeningAnswers) Call(ctx context.Context, args map[string]any) types.ToolCallResult {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("screening answers recorded",
		"experience", stringArg(args, "experience"),
		"skills", stringArg(args, "skills"),
		"previous_companies", stringArg(args, "previous_companies"),
	)
	return types.ToolCallResult{
		Tool:    ToolRecordScreeningAnswers,
		Outcome: types.OutcomeSuccess,
		Message: "Screening answers recorded successfully.",
	}
}
