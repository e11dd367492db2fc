package scheduler

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/flowstack-agency/leadflow/internal/model"
)

// Step is one email in a follow-up sequence, delayed relative to the moment
// the lead was scored.
type Step struct {
	EmailType  model.EmailType `yaml:"email_type"`
	DelayHours int             `yaml:"delay_hours"`
}

// builtinSequences maps each sequence name to its fixed cadence. Hot leads
// get the compressed immediate cadence; cold leads get the long nurture arc.
var builtinSequences = map[model.SequenceName][]Step{
	model.SequenceImmediate: {
		{EmailType: model.EmailWelcome, DelayHours: 0},
		{EmailType: model.EmailDemoInvite, DelayHours: 4},
		{EmailType: model.EmailCheckIn, DelayHours: 24},
	},
	model.SequenceStandard: {
		{EmailType: model.EmailWelcome, DelayHours: 1},
		{EmailType: model.EmailValueProp, DelayHours: 48},
		{EmailType: model.EmailDemoInvite, DelayHours: 120},
	},
	model.SequenceNurture: {
		{EmailType: model.EmailWelcome, DelayHours: 1},
		{EmailType: model.EmailValueProp, DelayHours: 72},
		{EmailType: model.EmailCaseStudy, DelayHours: 168},
		{EmailType: model.EmailDemoInvite, DelayHours: 336},
		{EmailType: model.EmailFinal, DelayHours: 504},
	},
	model.SequenceMinimal: {
		{EmailType: model.EmailWelcome, DelayHours: 1},
	},
}

// sequenceFile is the YAML shape for cadence overrides.
type sequenceFile struct {
	Sequences map[model.SequenceName][]Step `yaml:"sequences"`
}

// LoadSequences reads cadence overrides from a YAML file. Sequences absent
// from the file keep their built-in cadence.
func LoadSequences(path string) (map[model.SequenceName][]Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scheduler: read sequences file %s", path)
	}

	var f sequenceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "scheduler: parse sequences file %s", path)
	}

	for name, steps := range f.Sequences {
		if !name.Valid() {
			return nil, eris.Errorf("scheduler: unknown sequence name %q in %s", name, path)
		}
		if len(steps) == 0 {
			return nil, eris.Errorf("scheduler: sequence %q has no steps in %s", name, path)
		}
		prev := -1
		for i, st := range steps {
			if !st.EmailType.Valid() {
				return nil, eris.Errorf("scheduler: sequence %q step %d has unknown email type %q", name, i+1, st.EmailType)
			}
			if st.DelayHours < prev {
				return nil, eris.Errorf("scheduler: sequence %q delays must be non-decreasing", name)
			}
			prev = st.DelayHours
		}
	}
	return f.Sequences, nil
}
