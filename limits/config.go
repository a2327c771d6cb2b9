package limits

import "gopkg.in/yaml.v3"

// LoadYAML parses a YAML document (the on-disk shape every field's
// `yaml:"..."` tag above describes) into an ExecutionLimits, starting from
// [Conservative] so an operator's config file only has to mention the
// ceilings it wants to override.
func LoadYAML(data []byte) (ExecutionLimits, error) {
	lim := Conservative()
	if err := yaml.Unmarshal(data, &lim); err != nil {
		return ExecutionLimits{}, err
	}
	return lim, nil
}

// ToYAML renders lim back to YAML, e.g. for an operator to dump the
// effective profile and hand-edit it.
func (l ExecutionLimits) ToYAML() ([]byte, error) {
	return yaml.Marshal(l)
}
