package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ActionType is the closed set of changes a transcript can propose for a ticket.
type ActionType string

const (
	ActionUpdateFields ActionType = "UPDATE_FIELDS"
	ActionPostComment  ActionType = "POST_COMMENT"
	ActionChangeStage  ActionType = "CHANGE_STAGE"
	ActionNone         ActionType = "NONE"
)

// ActionTypes lists every valid ActionType in schema order.
func ActionTypes() []ActionType {
	return []ActionType{ActionUpdateFields, ActionPostComment, ActionChangeStage, ActionNone}
}

func (t ActionType) Valid() bool {
	switch t {
	case ActionUpdateFields, ActionPostComment, ActionChangeStage, ActionNone:
		return true
	}
	return false
}

// UnmarshalJSON rejects anything outside the closed set.
func (t *ActionType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("action_type must be a string: %w", err)
	}
	at := ActionType(s)
	if !at.Valid() {
		return fmt.Errorf("unknown action_type %q", s)
	}
	*t = at
	return nil
}

// FieldUpdate is one ticket field the meeting asked to change.
type FieldUpdate struct {
	FieldName string `json:"field_name"`
	NewValue  string `json:"new_value"`
}

// ActionDetails carries the payload of every action type. Fields that do not
// apply to the action type are present and empty.
type ActionDetails struct {
	FieldsToUpdate []FieldUpdate `json:"fields_to_update"`
	CommentText    string        `json:"comment_text"`
	TagUsers       []string      `json:"tag_users"`
	NewStage       string        `json:"new_stage"`
	Reason         string        `json:"reason"`
}

// TicketAction is one proposed change extracted from a transcript.
type TicketAction struct {
	TicketNumber      string        `json:"ticket_number"`
	TicketID          string        `json:"ticket_id"`
	ActionType        ActionType    `json:"action_type"`
	ActionDetails     ActionDetails `json:"action_details"`
	ConfidenceScore   float64       `json:"confidence_score"`
	TranscriptContext string        `json:"transcript_context"`
	Reasoning         string        `json:"reasoning"`
}

// ErrInvalidActions is wrapped by every rejection from ParseTicketActions.
var ErrInvalidActions = errors.New("invalid ticket actions")

type rawFieldUpdate struct {
	FieldName *string `json:"field_name"`
	NewValue  *string `json:"new_value"`
}

type rawActionDetails struct {
	FieldsToUpdate []*rawFieldUpdate `json:"fields_to_update"`
	CommentText    *string           `json:"comment_text"`
	TagUsers       []*string         `json:"tag_users"`
	NewStage       *string           `json:"new_stage"`
	Reason         *string           `json:"reason"`
}

type rawTicketAction struct {
	TicketNumber      *string           `json:"ticket_number"`
	ActionType        *ActionType       `json:"action_type"`
	ActionDetails     *rawActionDetails `json:"action_details"`
	ConfidenceScore   *float64          `json:"confidence_score"`
	TranscriptContext *string           `json:"transcript_context"`
	Reasoning         *string           `json:"reasoning"`
}

// ParseTicketActions validates a backend response and returns the typed
// actions. The whole payload is rejected if any element fails; ticket_id is
// left empty for the caller to resolve.
func ParseTicketActions(raw []byte) ([]TicketAction, error) {
	payload := stripCodeFence(raw)
	if len(payload) == 0 || payload[0] != '[' {
		return nil, fmt.Errorf("%w: response is not a JSON array", ErrInvalidActions)
	}

	var items []*rawTicketAction
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidActions, err)
	}

	actions := make([]TicketAction, 0, len(items))
	for i, item := range items {
		action, err := item.toAction()
		if err != nil {
			return nil, fmt.Errorf("%w: action %d: %v", ErrInvalidActions, i, err)
		}
		actions = append(actions, action)
	}
	return actions, nil
}

func (r *rawTicketAction) toAction() (TicketAction, error) {
	if r == nil {
		return TicketAction{}, errors.New("null action")
	}

	switch {
	case r.TicketNumber == nil:
		return TicketAction{}, errors.New("missing ticket_number")
	case r.ActionType == nil:
		return TicketAction{}, errors.New("missing action_type")
	case r.ActionDetails == nil:
		return TicketAction{}, errors.New("missing action_details")
	case r.ConfidenceScore == nil:
		return TicketAction{}, errors.New("missing confidence_score")
	case r.TranscriptContext == nil:
		return TicketAction{}, errors.New("missing transcript_context")
	case r.Reasoning == nil:
		return TicketAction{}, errors.New("missing reasoning")
	}

	details, err := r.ActionDetails.toDetails()
	if err != nil {
		return TicketAction{}, err
	}

	return TicketAction{
		TicketNumber:      *r.TicketNumber,
		ActionType:        *r.ActionType,
		ActionDetails:     details,
		ConfidenceScore:   *r.ConfidenceScore,
		TranscriptContext: *r.TranscriptContext,
		Reasoning:         *r.Reasoning,
	}, nil
}

func (r *rawActionDetails) toDetails() (ActionDetails, error) {
	details := ActionDetails{
		FieldsToUpdate: make([]FieldUpdate, 0, len(r.FieldsToUpdate)),
		TagUsers:       make([]string, 0, len(r.TagUsers)),
		CommentText:    deref(r.CommentText),
		NewStage:       deref(r.NewStage),
		Reason:         deref(r.Reason),
	}

	for i, f := range r.FieldsToUpdate {
		if f == nil || f.FieldName == nil || f.NewValue == nil {
			return ActionDetails{}, fmt.Errorf("fields_to_update[%d] needs field_name and new_value", i)
		}
		details.FieldsToUpdate = append(details.FieldsToUpdate, FieldUpdate{
			FieldName: *f.FieldName,
			NewValue:  *f.NewValue,
		})
	}
	for i, u := range r.TagUsers {
		if u == nil {
			return ActionDetails{}, fmt.Errorf("tag_users[%d] must be a string", i)
		}
		details.TagUsers = append(details.TagUsers, *u)
	}

	return details, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// stripCodeFence removes surrounding whitespace and a Markdown ``` fence
// together with its language tag.
func stripCodeFence(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSpace(s)
		if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
			s = s[4:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	return bytes.TrimSpace([]byte(s))
}

// ResolveTicketIDs fills ticket_id from a display_id -> id index. Unknown
// ticket numbers get an empty id.
func ResolveTicketIDs(actions []TicketAction, index map[string]string) {
	for i := range actions {
		actions[i].TicketID = index[actions[i].TicketNumber]
	}
}
