package summary

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/garyjia/medoffice-workflow/internal/application/port"
	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
)

const dateLayout = "2006-01-02 15:04"

// TimelineLine is one rendered history entry
type TimelineLine struct {
	When     string
	From     string
	To       string
	By       string
	Notes    string
	Approved bool
}

// View is the data every summary template renders from
type View struct {
	PatientID      string
	Status         string
	StatusDesc     string
	AssignedTo     string
	Notes          string
	IncludeHistory bool
	Timeline       []TimelineLine
	Changes        int
	LastChange     *TimelineLine
	Approvals      int
}

// BuildView flattens a patient context into template data
func BuildView(pc entity.PatientContext, opts entity.SummaryOptions) View {
	v := View{
		PatientID:      pc.PatientID,
		Status:         pc.CurrentStatus.Name,
		StatusDesc:     pc.CurrentStatus.Description,
		AssignedTo:     pc.AssignedTo,
		Notes:          pc.Notes,
		IncludeHistory: opts.IncludeHistory,
		Changes:        len(pc.History),
	}
	if v.Status == "" {
		v.Status = pc.CurrentStatus.ID
	}

	for _, entry := range pc.History {
		from := "registration"
		if entry.FromStatusID != nil {
			from = pc.StatusName(*entry.FromStatusID)
		}
		v.Timeline = append(v.Timeline, TimelineLine{
			When:     entry.Timestamp.UTC().Format(dateLayout),
			From:     from,
			To:       pc.StatusName(entry.ToStatusID),
			By:       entry.PerformedBy,
			Notes:    entry.Notes,
			Approved: entry.Approved,
		})
		if entry.Approved {
			v.Approvals++
		}
	}
	if n := len(v.Timeline); n > 0 {
		v.LastChange = &v.Timeline[n-1]
	}
	return v
}

var templates = map[entity.SummaryType]string{
	entity.SummaryComprehensive: `Patient {{.PatientID}}
Current status: {{.Status}}{{if .StatusDesc}} ({{.StatusDesc}}){{end}}
Assigned to: {{if .AssignedTo}}{{.AssignedTo}}{{else}}unassigned{{end}}
{{- if .Notes}}
Latest notes: {{.Notes}}
{{- end}}
Status changes: {{.Changes}}, approval-gated: {{.Approvals}}
{{- if .IncludeHistory}}

Timeline:
{{- range .Timeline}}
- {{.When}} {{.From}} -> {{.To}} by {{.By}}{{if .Approved}} [approved]{{end}}{{if .Notes}}: {{.Notes}}{{end}}
{{- else}}
- no status changes recorded
{{- end}}
{{- end}}
`,
	entity.SummaryConcise: `Patient {{.PatientID}} is {{.Status}}{{if .AssignedTo}} (assigned to {{.AssignedTo}}){{end}}; {{.Changes}} status change{{if ne .Changes 1}}s{{end}}{{with .LastChange}}, last on {{.When}} by {{.By}}{{end}}.
`,
	entity.SummarySpecialist: `Handoff: patient {{.PatientID}}
Status: {{.Status}}
Responsible clinician: {{if .AssignedTo}}{{.AssignedTo}}{{else}}not assigned{{end}}
{{- with .LastChange}}
Last transition: {{.From}} -> {{.To}} ({{.When}}, {{.By}}){{if .Approved}}, approved{{end}}
{{- end}}
{{- if .Notes}}
Clinical notes: {{.Notes}}
{{- end}}
{{- if .IncludeHistory}}
Course:
{{- range .Timeline}}
  {{.When}}  {{.To}}{{if .Notes}}  {{.Notes}}{{end}}
{{- end}}
{{- end}}
`,
	entity.SummaryPatientFriendly: `Hello! You are currently at the "{{.Status}}" stage of your care.
{{- if .StatusDesc}} This means: {{.StatusDesc}}.{{end}}
{{- if .AssignedTo}} Your care is being coordinated by {{.AssignedTo}}.{{end}}
{{- if and .IncludeHistory .Timeline}}
Here is how your visit has progressed so far:
{{- range .Timeline}}
- On {{.When}} you moved to "{{.To}}".
{{- end}}
{{- end}}
If you have any questions, please contact the front desk.
`,
}

// TemplateGenerator renders summaries from fixed templates. Output depends
// only on its input.
type TemplateGenerator struct {
	templates map[entity.SummaryType]*template.Template
	now       func() time.Time
}

// NewTemplateGenerator parses the built-in templates
func NewTemplateGenerator() *TemplateGenerator {
	g := &TemplateGenerator{
		templates: make(map[entity.SummaryType]*template.Template, len(templates)),
		now:       time.Now,
	}
	for summaryType, text := range templates {
		g.templates[summaryType] = template.Must(template.New(string(summaryType)).Parse(text))
	}
	return g
}

// Name implements port.SummaryGenerator
func (g *TemplateGenerator) Name() string {
	return "template"
}

// Generate implements port.SummaryGenerator
func (g *TemplateGenerator) Generate(ctx context.Context, pc entity.PatientContext, opts entity.SummaryOptions) (*entity.Summary, error) {
	if opts.Type == "" {
		opts.Type = entity.SummaryComprehensive
	}
	tmpl, ok := g.templates[opts.Type]
	if !ok {
		return nil, fmt.Errorf("unknown summary type %q", opts.Type)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, BuildView(pc, opts)); err != nil {
		return nil, fmt.Errorf("failed to render %s summary: %w", opts.Type, err)
	}

	return &entity.Summary{
		PatientID:   pc.PatientID,
		Type:        opts.Type,
		Content:     strings.TrimSpace(buf.String()),
		Generator:   g.Name(),
		GeneratedAt: g.now(),
	}, nil
}

// Verify interface compliance
var _ port.SummaryGenerator = (*TemplateGenerator)(nil)
