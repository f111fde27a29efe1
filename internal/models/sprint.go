package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// PodMember is one entry of the sprint roster sent with an analysis request.
type PodMember struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

// UnmarshalJSON accepts members whose fields are numbers, null or nested
// objects. Anything unusable degrades to an empty string.
func (m *PodMember) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return fmt.Errorf("pod member: %w", err)
	}
	*m = PodMember{
		ID:          looseString(fields["id"]),
		DisplayName: looseString(fields["display_name"]),
		FullName:    looseString(fields["full_name"]),
		Email:       looseString(fields["email"]),
		Role:        looseString(fields["role"]),
	}
	return nil
}

// Name returns the most readable name available for the member.
func (m PodMember) Name() string {
	switch {
	case m.FullName != "":
		return m.FullName
	case m.DisplayName != "":
		return m.DisplayName
	case m.Email != "":
		return m.Email
	}
	return m.ID
}

// Owner is one entry of a ticket's owned_by list.
type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SprintRecord is the external ticket record as supplied by the caller.
type SprintRecord struct {
	ID              string
	DisplayID       string
	Title           string
	ProductManager  string
	Developers      []string
	QA              string
	DevStartDate    string
	DevClosureDate  string
	SprintStart     string
	TargetCloseDate string
	Stage           string
	OwnedBy         []Owner
}

// UnmarshalJSON projects the nested record leniently. Missing or oddly typed
// fields become empty values instead of failing the request.
func (r *SprintRecord) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return fmt.Errorf("sprint record: %w", err)
	}

	custom, _ := decodeObject(fields["custom_fields"])
	sprint, _ := decodeObject(fields["sprint"])
	stage, _ := decodeObject(fields["stage"])

	*r = SprintRecord{
		ID:              looseString(fields["id"]),
		DisplayID:       looseString(fields["display_id"]),
		Title:           looseString(fields["title"]),
		ProductManager:  looseString(custom["tnt__product_manager"]),
		Developers:      looseStrings(custom["tnt__developers"]),
		QA:              looseString(custom["tnt__qa"]),
		DevStartDate:    looseString(custom["tnt__dev_start_date"]),
		DevClosureDate:  looseString(custom["tnt__dev_closure_date"]),
		SprintStart:     looseString(sprint["start_date"]),
		TargetCloseDate: looseString(fields["target_close_date"]),
		Stage:           looseString(stage["name"]),
		OwnedBy:         owners(fields["owned_by"]),
	}
	return nil
}

// SprintItem is the per-ticket context rendered into the prompt.
type SprintItem struct {
	TicketNumber   string   `json:"ticket_number"`
	Title          string   `json:"title"`
	ProductManager string   `json:"product_manager"`
	Developers     []string `json:"developers"`
	QA             string   `json:"qa"`
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date"`
	DevStartDate   string   `json:"dev_start_date"`
	DevEndDate     string   `json:"dev_end_date"`
	Stage          string   `json:"stage"`
	OwnedBy        string   `json:"owned_by"`
}

// OwnerMissingError reports a ticket whose owned_by list is empty.
type OwnerMissingError struct {
	TicketNumber string
}

func (e *OwnerMissingError) Error() string {
	if e.TicketNumber == "" {
		return "sprint ticket without display_id has no owner in owned_by"
	}
	return fmt.Sprintf("sprint ticket %s has no owner in owned_by", e.TicketNumber)
}

// BuildSprintItem projects a record to its prompt context. The primary owner
// is the first owned_by entry; an empty list is an error.
func BuildSprintItem(record SprintRecord) (SprintItem, error) {
	if len(record.OwnedBy) == 0 {
		return SprintItem{}, &OwnerMissingError{TicketNumber: record.DisplayID}
	}

	developers := record.Developers
	if developers == nil {
		developers = []string{}
	}

	return SprintItem{
		TicketNumber:   record.DisplayID,
		Title:          record.Title,
		ProductManager: record.ProductManager,
		Developers:     developers,
		QA:             record.QA,
		StartDate:      record.SprintStart,
		EndDate:        record.TargetCloseDate,
		DevStartDate:   record.DevStartDate,
		DevEndDate:     record.DevClosureDate,
		Stage:          record.Stage,
		OwnedBy:        record.OwnedBy[0].ID,
	}, nil
}

// BuildSprintItems projects every record, stopping at the first failure.
func BuildSprintItems(records []SprintRecord) ([]SprintItem, error) {
	items := make([]SprintItem, 0, len(records))
	for _, record := range records {
		item, err := BuildSprintItem(record)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// TicketIndex maps display_id to id. Records without a display_id are skipped
// and a later duplicate wins.
func TicketIndex(records []SprintRecord) map[string]string {
	index := make(map[string]string, len(records))
	for _, record := range records {
		if record.DisplayID == "" {
			continue
		}
		index[record.DisplayID] = record.ID
	}
	return index
}

func decodeObject(data json.RawMessage) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return map[string]json.RawMessage{}, nil
	}
	if data[0] != '{' {
		return map[string]json.RawMessage{}, fmt.Errorf("expected an object")
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return map[string]json.RawMessage{}, err
	}
	return fields, nil
}

// looseString reads a scalar as text. Objects contribute their display_name,
// full_name, name or id, in that order.
func looseString(data json.RawMessage) string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ""
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			return s
		}
	case '{':
		obj, err := decodeObject(data)
		if err != nil {
			return ""
		}
		for _, key := range []string{"display_name", "full_name", "name", "id"} {
			if s := looseString(obj[key]); s != "" {
				return s
			}
		}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err == nil {
			return strconv.FormatBool(b)
		}
	case 'n', '[':
		return ""
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

// looseStrings reads a list of loose scalars, or a single one as a list of one.
func looseStrings(data json.RawMessage) []string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []string{}
	}

	if data[0] != '[' {
		if s := looseString(data); s != "" {
			return []string{s}
		}
		return []string{}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := looseString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func owners(data json.RawMessage) []Owner {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	out := make([]Owner, 0, len(items))
	for _, item := range items {
		obj, err := decodeObject(item)
		if err != nil {
			// A bare id string is accepted as an owner.
			if id := looseString(item); id != "" {
				out = append(out, Owner{ID: id})
			}
			continue
		}
		out = append(out, Owner{
			ID:          looseString(obj["id"]),
			DisplayName: looseString(obj["display_name"]),
		})
	}
	return out
}
