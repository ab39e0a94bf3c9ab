package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed personas.yaml
var personasYAML []byte

// Persona debate styles
const (
	StyleAggressive = "aggressive"
	StyleDiplomatic = "diplomatic"
	StyleAnalytical = "analytical"
	StyleSocratic   = "socratic"
)

// PersonaTemplate is a reusable agent archetype. The prompt template carries
// a {stance} placeholder filled in when the persona is bound to a side.
type PersonaTemplate struct {
	PersonaID            string   `yaml:"persona_id" json:"persona_id"`
	Name                 string   `yaml:"name" json:"name"`
	Expertise            string   `yaml:"expertise" json:"expertise"`
	DebateStyle          string   `yaml:"debate_style" json:"debate_style"`
	Description          string   `yaml:"description" json:"description"`
	SystemPromptTemplate string   `yaml:"system_prompt_template" json:"system_prompt_template"`
	SuggestedTemperature float64  `yaml:"suggested_temperature" json:"suggested_temperature"`
	SuggestedMaxTokens   int      `yaml:"suggested_max_tokens" json:"suggested_max_tokens"`
	Tags                 []string `yaml:"tags" json:"tags"`
}

// SystemPrompt renders the template for a concrete stance
func (p *PersonaTemplate) SystemPrompt(stance string) string {
	return strings.ReplaceAll(p.SystemPromptTemplate, "{stance}", stance)
}

type personaFile struct {
	Personas []PersonaTemplate `yaml:"personas"`
}

var personas []PersonaTemplate

func init() {
	var file personaFile
	if err := yaml.Unmarshal(personasYAML, &file); err != nil {
		panic(fmt.Sprintf("catalog: embedded personas.yaml is invalid: %v", err))
	}
	for _, p := range file.Personas {
		if !strings.Contains(p.SystemPromptTemplate, "{stance}") {
			panic(fmt.Sprintf("catalog: persona %s is missing the {stance} placeholder", p.PersonaID))
		}
	}
	personas = file.Personas
}

// Personas returns every persona template in the catalog
func Personas() []PersonaTemplate {
	out := make([]PersonaTemplate, len(personas))
	copy(out, personas)
	return out
}

// LookupPersona returns the persona with the given ID, or nil
func LookupPersona(personaID string) *PersonaTemplate {
	for i := range personas {
		if personas[i].PersonaID == personaID {
			return &personas[i]
		}
	}
	return nil
}
