package services

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"eye-of-horus/internal/common"
	"eye-of-horus/internal/models"
)

//go:embed prompts/system_prompt.md prompts/sprint_context.tmpl
var promptFiles embed.FS

const todayLayout = "2006-01-02"

// PromptBuilder renders the analysis prompt. It holds no state beyond the
// parsed templates, so rendering is reproducible.
type PromptBuilder struct {
	system string
	sprint *template.Template
}

type memberView struct {
	ID    string
	Name  string
	Role  string
	Email string
}

type itemView struct {
	models.SprintItem
	OwnerName string
}

// NewPromptBuilder loads the embedded templates, replaced by the files named
// in cfg when set.
func NewPromptBuilder(cfg *common.PromptsConfig) (*PromptBuilder, error) {
	system, err := loadPromptFile(cfg.SystemPromptFile, "prompts/system_prompt.md")
	if err != nil {
		return nil, err
	}
	sprintText, err := loadPromptFile(cfg.SprintTemplateFile, "prompts/sprint_context.tmpl")
	if err != nil {
		return nil, err
	}

	sprint, err := template.New("sprint_context").
		Funcs(template.FuncMap{"join": strings.Join}).
		Option("missingkey=zero").
		Parse(sprintText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sprint context template: %w", err)
	}

	return &PromptBuilder{system: system, sprint: sprint}, nil
}

func loadPromptFile(override, embedded string) (string, error) {
	if override != "" {
		data, err := os.ReadFile(override)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file %s: %w", override, err)
		}
		return string(data), nil
	}
	data, err := promptFiles.ReadFile(embedded)
	if err != nil {
		return "", fmt.Errorf("failed to read embedded prompt %s: %w", embedded, err)
	}
	return string(data), nil
}

// SystemInstruction is the fixed instruction sent with every analysis.
func (p *PromptBuilder) SystemInstruction() string {
	return p.system
}

// SprintContext renders the roster and the per-ticket context.
func (p *PromptBuilder) SprintContext(members []models.PodMember, items []models.SprintItem) (string, error) {
	names := make(map[string]string, len(members))
	memberViews := make([]memberView, 0, len(members))
	for _, m := range members {
		memberViews = append(memberViews, memberView{ID: m.ID, Name: m.Name(), Role: m.Role, Email: m.Email})
		if m.ID != "" {
			names[m.ID] = m.Name()
		}
	}

	itemViews := make([]itemView, 0, len(items))
	for _, item := range items {
		itemViews = append(itemViews, itemView{SprintItem: item, OwnerName: names[item.OwnedBy]})
	}

	var buf bytes.Buffer
	err := p.sprint.Execute(&buf, struct {
		Members []memberView
		Items   []itemView
	}{memberViews, itemViews})
	if err != nil {
		return "", fmt.Errorf("failed to render sprint context: %w", err)
	}
	return buf.String(), nil
}

// Render joins the date line, the sprint context and the transcript. today is
// formatted as given; no clock or timezone is consulted.
func (p *PromptBuilder) Render(members []models.PodMember, items []models.SprintItem, today time.Time, transcript string) (string, error) {
	sprintContext, err := p.SprintContext(members, items)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{
		"Today's date is " + today.Format(todayLayout),
		sprintContext,
		transcript,
	}, "\n"), nil
}
