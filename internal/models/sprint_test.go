package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullRecord = `{
	"id": "abc123",
	"display_id": "ENG-12",
	"title": "Payments retry",
	"custom_fields": {
		"tnt__product_manager": "Priya",
		"tnt__developers": ["Arjun", {"id": "u-7", "display_name": "Meera"}],
		"tnt__qa": {"id": "u-9", "full_name": "Kabir Rao"},
		"tnt__dev_start_date": "2026-10-01",
		"tnt__dev_closure_date": "2026-10-09"
	},
	"sprint": {"start_date": "2026-09-29"},
	"target_close_date": "2026-10-12",
	"stage": {"name": "In Development"},
	"owned_by": [{"id": "u-3", "display_name": "Arjun"}, {"id": "u-4"}],
	"priority": "p1"
}`

func TestSprintRecordUnmarshal(t *testing.T) {
	var record SprintRecord
	require.NoError(t, json.Unmarshal([]byte(fullRecord), &record))

	assert.Equal(t, "abc123", record.ID)
	assert.Equal(t, "ENG-12", record.DisplayID)
	assert.Equal(t, "Priya", record.ProductManager)
	assert.Equal(t, []string{"Arjun", "Meera"}, record.Developers)
	assert.Equal(t, "Kabir Rao", record.QA)
	assert.Equal(t, "2026-09-29", record.SprintStart)
	assert.Equal(t, "In Development", record.Stage)
	require.Len(t, record.OwnedBy, 2)
	assert.Equal(t, "u-3", record.OwnedBy[0].ID)
}

func TestBuildSprintItem(t *testing.T) {
	var record SprintRecord
	require.NoError(t, json.Unmarshal([]byte(fullRecord), &record))

	item, err := BuildSprintItem(record)
	require.NoError(t, err)

	assert.Equal(t, SprintItem{
		TicketNumber:   "ENG-12",
		Title:          "Payments retry",
		ProductManager: "Priya",
		Developers:     []string{"Arjun", "Meera"},
		QA:             "Kabir Rao",
		StartDate:      "2026-09-29",
		EndDate:        "2026-10-12",
		DevStartDate:   "2026-10-01",
		DevEndDate:     "2026-10-09",
		Stage:          "In Development",
		OwnedBy:        "u-3",
	}, item)
}

func TestBuildSprintItemDegradesMissingFields(t *testing.T) {
	raw := `{"id":"x1","display_id":"ENG-5","title":"Sparse","custom_fields":null,
		"stage":"not-an-object","owned_by":[{"id":"u-1"}],"target_close_date":null}`

	var record SprintRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &record))

	item, err := BuildSprintItem(record)
	require.NoError(t, err)
	assert.Equal(t, "", item.ProductManager)
	assert.Equal(t, []string{}, item.Developers)
	assert.Equal(t, "", item.QA)
	assert.Equal(t, "", item.StartDate)
	assert.Equal(t, "", item.EndDate)
	assert.Equal(t, "", item.Stage)
	assert.Equal(t, "u-1", item.OwnedBy)
}

func TestBuildSprintItemLooseScalars(t *testing.T) {
	raw := `{"display_id":"ENG-6","title":42,"custom_fields":{"tnt__developers":"Solo","tnt__qa":[1,2]},
		"owned_by":["u-8"]}`

	var record SprintRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &record))

	item, err := BuildSprintItem(record)
	require.NoError(t, err)
	assert.Equal(t, "42", item.Title)
	assert.Equal(t, []string{"Solo"}, item.Developers)
	assert.Equal(t, "", item.QA)
	assert.Equal(t, "u-8", item.OwnedBy)
}

func TestBuildSprintItemWithoutOwner(t *testing.T) {
	for name, raw := range map[string]string{
		"empty list": `{"id":"x","display_id":"ENG-7","title":"t","owned_by":[]}`,
		"missing":    `{"id":"x","display_id":"ENG-7","title":"t"}`,
	} {
		t.Run(name, func(t *testing.T) {
			var record SprintRecord
			require.NoError(t, json.Unmarshal([]byte(raw), &record))

			_, err := BuildSprintItem(record)
			require.Error(t, err)

			var missing *OwnerMissingError
			require.True(t, errors.As(err, &missing))
			assert.Equal(t, "ENG-7", missing.TicketNumber)
			assert.Contains(t, err.Error(), "ENG-7")
		})
	}
}

func TestBuildSprintItemsStopsAtFirstFailure(t *testing.T) {
	records := []SprintRecord{
		{DisplayID: "ENG-1", OwnedBy: []Owner{{ID: "u-1"}}},
		{DisplayID: "ENG-2"},
	}
	items, err := BuildSprintItems(records)
	assert.Error(t, err)
	assert.Nil(t, items)
}

func TestTicketIndex(t *testing.T) {
	index := TicketIndex([]SprintRecord{
		{ID: "abc123", DisplayID: "ENG-12"},
		{ID: "orphan", DisplayID: ""},
		{ID: "def456", DisplayID: "ENG-13"},
	})
	assert.Equal(t, map[string]string{"ENG-12": "abc123", "ENG-13": "def456"}, index)
}

func TestSprintRecordRejectsNonObject(t *testing.T) {
	var records []SprintRecord
	err := json.Unmarshal([]byte(`["ENG-1"]`), &records)
	assert.Error(t, err)
}

func TestPodMemberUnmarshal(t *testing.T) {
	var members []PodMember
	raw := `[{"id":"u-1","display_name":"arjun","full_name":"Arjun Mehta","email":"arjun@example.com","role":"dev"},
		{"id":7,"display_name":"kabir"}]`
	require.NoError(t, json.Unmarshal([]byte(raw), &members))

	require.Len(t, members, 2)
	assert.Equal(t, "Arjun Mehta", members[0].Name())
	assert.Equal(t, "7", members[1].ID)
	assert.Equal(t, "kabir", members[1].Name())
}
