package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/knolabs/voicedesk/pkg/agent/types"
	"github.com/knolabs/voicedesk/pkg/crm"
)

const (
	ToolBookAppointment = "book_appointment"
	ToolCheckStatus     = "check_appointment_status"
)

const (
	statusBookedMessage    = "The user has successfully booked the appointment."
	statusNotBookedMessage = "The user has not yet booked an appointment. Please offer them help."
	statusErrorMessage     = "Error checking the appointment status."
)

// BookAppointment sends a booking link to the provided email address via the
// booking webhook. A successful booking carries a follow-up payload so the
// session can check the status later.
type BookAppointment struct {
	CRM    *crm.Client
	Logger *slog.Logger
}

func (t *BookAppointment) Schema() types.ToolSchema {
	return types.ToolSchema{
		Name:        ToolBookAppointment,
		Description: "Called when a user wants to book an appointment. This function sends a booking link to the provided email address and name.",
		Parameters: []types.Param{
			{Name: "email", Type: types.ParamString, Description: "The email address to send the booking link to", Required: true, Format: types.FormatEmail},
			{Name: "name", Type: types.ParamString, Description: "The name of the person booking the appointment", Required: true},
		},
	}
}

func (t *BookAppointment) Call(ctx context.Context, args map[string]any) types.ToolCallResult {
	email := stringArg(args, "email")
	name := stringArg(args, "name")

	if err := t.CRM.BookAppointment(ctx, email, name); err != nil {
		t.logger().Error("booking appointment failed", "error", err)
		return types.ToolCallResult{
			Tool:    ToolBookAppointment,
			Outcome: types.OutcomeFailure,
			Message: "There was an error booking your appointment. Please try again later.",
		}
	}
	return types.ToolCallResult{
		Tool:     ToolBookAppointment,
		Outcome:  types.OutcomeSuccess,
		Message:  fmt.Sprintf("Appointment booking link sent to %s. Please check your email.", email),
		FollowUp: &types.FollowUpPayload{Email: email},
	}
}

func (t *BookAppointment) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// CheckStatus looks up whether a contact has completed the booking. It is
// read-only: booked means the configured marker tag appears among the
// contact's tags.
type CheckStatus struct {
	CRM       *crm.Client
	BookedTag string
	Logger    *slog.Logger
}

func (t *CheckStatus) Schema() types.ToolSchema {
	return types.ToolSchema{
		Name:        ToolCheckStatus,
		Description: "Check if a user has booked an appointment based on their email.",
		Parameters: []types.Param{
			{Name: "email", Type: types.ParamString, Description: "The email address the booking link was sent to", Required: true, Format: types.FormatEmail},
		},
	}
}

func (t *CheckStatus) Call(ctx context.Context, args map[string]any) types.ToolCallResult {
	email := stringArg(args, "email")

	contacts, err := t.CRM.LookupContacts(ctx, email)
	if err != nil {
		t.logger().Error("appointment status lookup failed", "error", err)
		return types.ToolCallResult{
			Tool:    ToolCheckStatus,
			Outcome: types.OutcomeFailure,
			Message: statusErrorMessage,
		}
	}

	for _, contact := range contacts {
		for _, tag := range contact.Tags {
			if tag == t.BookedTag {
				return types.ToolCallResult{
					Tool:    ToolCheckStatus,
					Outcome: types.OutcomeSuccess,
					Message: statusBookedMessage,
				}
			}
		}
	}
	return types.ToolCallResult{
		Tool:    ToolCheckStatus,
		Outcome: types.OutcomeSuccess,
		Message: statusNotBookedMessage,
	}
}

func (t *CheckStatus) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}
