// Package plan defines the structured project plan produced by a board
// discussion and consumed by the executor, plus the parsing that bridges
// free-form model output and that structure.
package plan

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Sentinel tokens delimiting the JSON payload inside a finalizing agent's
// free-form output.
const (
	JSONStart = "<<JSON_START>>"
	JSONEnd   = "<<JSON_END>>"
)

// Document is the authoritative representation of a parsed plan.
type Document struct {
	AppName  string    `json:"app_name,omitempty"`
	Title    string    `json:"strategy_title"`
	AltTitle string    `json:"title,omitempty"`
	TLDR     string    `json:"tldr,omitempty"`
	Summary  string    `json:"summary"`
	Missions []Mission `json:"missions"`
}

// EffectiveTitle prefers strategy_title over the title synonym.
func (d Document) EffectiveTitle() string {
	if d.Title != "" {
		return d.Title
	}
	return d.AltTitle
}

// Mission is one deliverable unit of work within a plan.
type Mission struct {
	MissionID          string   `json:"mission_id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Owner              string   `json:"owner"`
	AppName            string   `json:"app_name,omitempty"`
	Dependencies       []string `json:"dependencies"`
	Steps              []Step   `json:"steps"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
}

// UnmarshalJSON accepts "actions" or "tasks" as synonyms for the steps list.
func (m *Mission) UnmarshalJSON(data []byte) error {
	type alias Mission
	var rm struct {
		alias
		Actions []Step `json:"actions"`
		Tasks   []Step `json:"tasks"`
	}
	if err := json.Unmarshal(data, &rm); err != nil {
		return err
	}
	*m = Mission(rm.alias)
	if m.Steps == nil {
		m.Steps = rm.Actions
	}
	if m.Steps == nil {
		m.Steps = rm.Tasks
	}
	return nil
}

// Step is one atomic tool invocation. Position is the 1-based sequence
// position within its mission, assigned during normalization regardless of
// whatever step_id the model emitted.
type Step struct {
	Position    int                    `json:"step_id"`
	Tool        string                 `json:"tool"`
	Params      map[string]interface{} `json:"params"`
	Description string                 `json:"description"`
}

// rawStep tolerates the synonymous keys models actually emit, and a step_id
// that may be a number ("1") or a label ("S1.1").
type rawStep struct {
	StepID      json.RawMessage        `json:"step_id"`
	Description string                 `json:"description"`
	Desc        string                 `json:"desc"`
	Tool        string                 `json:"tool"`
	Type        string                 `json:"type"`
	Params      map[string]interface{} `json:"params"`
}

// UnmarshalJSON accepts the loose step shapes seen in model output and
// persisted rows. Position is left zero here; callers renumber by order.
func (s *Step) UnmarshalJSON(data []byte) error {
	var rs rawStep
	if err := json.Unmarshal(data, &rs); err != nil {
		return err
	}
	s.Tool = rs.Tool
	if s.Tool == "" {
		s.Tool = rs.Type
	}
	s.Description = rs.Description
	if s.Description == "" {
		s.Description = rs.Desc
	}
	s.Params = rs.Params
	if s.Params == nil {
		s.Params = map[string]interface{}{}
	}
	s.Position = 0
	return nil
}

// RenumberSteps assigns 1-based positions by order and fills missing
// descriptions.
func RenumberSteps(steps []Step) []Step {
	for i := range steps {
		steps[i].Position = i + 1
		if steps[i].Params == nil {
			steps[i].Params = map[string]interface{}{}
		}
		if steps[i].Description == "" {
			steps[i].Description = "Step " + strconv.Itoa(i+1)
		}
	}
	return steps
}

// Extract parses a plan document out of a finalizing agent's text. It looks
// for the sentinel pair first; failing that it tries the whole text as JSON.
// ok is false when neither parse succeeds.
func Extract(text string) (Document, bool) {
	payload := text
	start := strings.Index(text, JSONStart)
	end := strings.Index(text, JSONEnd)
	if start != -1 && end != -1 && end > start {
		payload = strings.TrimSpace(text[start+len(JSONStart) : end])
	}

	var doc Document
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return Document{}, false
	}
	doc.normalize()
	return doc, true
}

// ExtractMeta parses only the top-level metadata of an embedded plan without
// requiring the missions array to be well formed.
func ExtractMeta(text string) (map[string]interface{}, bool) {
	payload := strings.TrimSpace(text)
	start := strings.Index(text, JSONStart)
	end := strings.Index(text, JSONEnd)
	if start != -1 && end != -1 && end > start {
		payload = strings.TrimSpace(text[start+len(JSONStart) : end])
	}
	var meta map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &meta); err != nil {
		return nil, false
	}
	return meta, true
}

// Placeholder builds the degraded plan used when the finalizing agent's
// output could not be parsed. The raw text is preserved as the summary.
func Placeholder(raw string) Document {
	return Document{
		Title:    "Plan Parsing Failed",
		TLDR:     "The final plan was not in the expected format.",
		Summary:  raw,
		Missions: []Mission{},
	}
}

// normalize reassigns step positions and fills missing step params.
func (d *Document) normalize() {
	for mi := range d.Missions {
		if d.Missions[mi].Steps == nil {
			d.Missions[mi].Steps = []Step{}
		}
		d.Missions[mi].Steps = RenumberSteps(d.Missions[mi].Steps)
	}
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns an arbitrary title into a lowercase hyphenated app name.
// Runs of non-alphanumeric characters collapse to single hyphens; an empty
// result falls back to "app".
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonAlnum.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "app"
	}
	return s
}
