package models

// Schema is a backend-neutral JSON schema used to constrain reasoning backend
// output. Adapters translate it to their own representation.
type Schema struct {
	Type             string             `json:"type"`
	Description      string             `json:"description,omitempty"`
	Enum             []string           `json:"enum,omitempty"`
	Items            *Schema            `json:"items,omitempty"`
	Properties       map[string]*Schema `json:"properties,omitempty"`
	Required         []string           `json:"required,omitempty"`
	PropertyOrdering []string           `json:"propertyOrdering,omitempty"`
}

const (
	SchemaArray   = "ARRAY"
	SchemaObject  = "OBJECT"
	SchemaString  = "STRING"
	SchemaNumber  = "NUMBER"
	SchemaInteger = "INTEGER"
	SchemaBoolean = "BOOLEAN"
)

func stringSchema(description string) *Schema {
	return &Schema{Type: SchemaString, Description: description}
}

// TicketActionSchema describes a single TicketAction as returned by the
// backend. ticket_id is absent; it is resolved locally.
func TicketActionSchema() *Schema {
	actionTypes := make([]string, 0, 4)
	for _, t := range ActionTypes() {
		actionTypes = append(actionTypes, string(t))
	}

	fieldUpdate := &Schema{
		Type: SchemaObject,
		Properties: map[string]*Schema{
			"field_name": stringSchema("Ticket field to change"),
			"new_value":  stringSchema("New value for the field"),
		},
		Required:         []string{"field_name", "new_value"},
		PropertyOrdering: []string{"field_name", "new_value"},
	}

	details := &Schema{
		Type: SchemaObject,
		Properties: map[string]*Schema{
			"fields_to_update": {Type: SchemaArray, Items: fieldUpdate},
			"comment_text":     stringSchema("Comment to post on the ticket"),
			"tag_users":        {Type: SchemaArray, Items: stringSchema("User to tag in the comment")},
			"new_stage":        stringSchema("Stage the ticket should move to"),
			"reason":           stringSchema("Why the stage changes"),
		},
		Required:         []string{"fields_to_update", "comment_text", "tag_users", "new_stage", "reason"},
		PropertyOrdering: []string{"fields_to_update", "comment_text", "tag_users", "new_stage", "reason"},
	}

	return &Schema{
		Type: SchemaObject,
		Properties: map[string]*Schema{
			"ticket_number":      stringSchema("Display id of the ticket, for example ENG-12"),
			"action_type":        {Type: SchemaString, Enum: actionTypes},
			"action_details":     details,
			"confidence_score":   {Type: SchemaNumber, Description: "Confidence between 0 and 1"},
			"transcript_context": stringSchema("Excerpt of the transcript supporting the action"),
			"reasoning":          stringSchema("Why the action is proposed"),
		},
		Required: []string{
			"ticket_number", "action_type", "action_details",
			"confidence_score", "transcript_context", "reasoning",
		},
		PropertyOrdering: []string{
			"ticket_number", "action_type", "action_details",
			"confidence_score", "transcript_context", "reasoning",
		},
	}
}

// TicketActionListSchema is the response constraint for an analysis call.
func TicketActionListSchema() *Schema {
	return &Schema{Type: SchemaArray, Items: TicketActionSchema()}
}
