package regime

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var rulesYAML []byte

var playbookRules map[Playbook]string

func init() {
	raw := make(map[string]string)
	if err := yaml.Unmarshal(rulesYAML, &raw); err != nil {
		panic(fmt.Sprintf("regime: embedded rule-book is invalid: %v", err))
	}
	playbookRules = make(map[Playbook]string, len(raw))
	for k, v := range raw {
		playbookRules[Playbook(k)] = v
	}
	for _, pb := range []Playbook{MomentumCatch, TrendFollowing, MeanReversion, Defensive, Wait} {
		if _, ok := playbookRules[pb]; !ok {
			panic(fmt.Sprintf("regime: rule-book missing playbook %s", pb))
		}
	}
}

// Rules returns the static rule text for a playbook. The text is consumed
// verbatim by the decision gateway as oracle instructions; this package only
// selects it, it never evaluates it numerically.
func (p Playbook) Rules() string {
	if text, ok := playbookRules[p]; ok {
		return text
	}
	return playbookRules[Wait]
}
