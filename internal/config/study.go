package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pvcaptest/domain/columns"
	"pvcaptest/domain/core"
	"pvcaptest/domain/frame"
	"pvcaptest/domain/refcond"
	"pvcaptest/internal/captest"
	"pvcaptest/internal/errors"
	"pvcaptest/ports"
)

// Study is a capacity test definition as stored in YAML.
type Study struct {
	Model     ModelConfig         `yaml:"model"`
	Reference ReferenceConfig     `yaml:"reference"`
	Columns   columns.ComputedSet `yaml:"columns"`
	Dataset   DatasetConfig       `yaml:"dataset"`
	Run       StudyRun            `yaml:"run"`
}

// ModelConfig names a catalogue model. Formula, CoefNames and OutputName
// override the catalogue entry when set.
type ModelConfig struct {
	ModelType  string   `yaml:"model_type"`
	Formula    *string  `yaml:"formula"`
	CoefNames  []string `yaml:"coef_names"`
	OutputName *string  `yaml:"output_col_name"`
	ConfLevel  float64  `yaml:"conf_level"`
}

// DatasetConfig describes the data file.
type DatasetConfig struct {
	Name       string  `yaml:"name"`
	Path       string  `yaml:"path"`
	Format     string  `yaml:"format"`
	TimeColumn string  `yaml:"time_column"`
	TimeLayout string  `yaml:"time_layout"`
	Sheet      *string `yaml:"sheet"`
	Separator  *string `yaml:"sep"`
	DayFirst   bool    `yaml:"dayfirst"`
}

// Dataset formats.
const (
	FormatCSV    = "csv"
	FormatXLSX   = "xlsx"
	FormatPVsyst = "pvsyst"
)

// StudyRun controls partitioning. A null period fits the whole dataset once.
type StudyRun struct {
	Period  *string `yaml:"period"`
	MinRows *int    `yaml:"min_rows"`
	Workers *int    `yaml:"workers"`
}

// Reference provider kinds.
const (
	KindFixed              = "fixed"
	KindEquivalentPosition = "equivalent_position"
	KindOverride           = "override"
)

// ReferenceConfig holds a reference provider tagged by kind.
type ReferenceConfig struct {
	Provider ports.ReferenceCondition
}

type fixedDoc struct {
	Kind          string `yaml:"kind"`
	refcond.Fixed `yaml:",inline"`
}

type equivalentDoc struct {
	Kind                       string `yaml:"kind"`
	refcond.EquivalentPosition `yaml:",inline"`
}

type overrideDoc struct {
	Kind     string                        `yaml:"kind"`
	Table    map[string]map[string]float64 `yaml:"table"`
	Fallback *ReferenceConfig              `yaml:"fallback"`
}

func (r *ReferenceConfig) UnmarshalYAML(node *yaml.Node) error {
	var head struct {
		Kind string `yaml:"kind"`
	}
	if err := node.Decode(&head); err != nil {
		return err
	}
	switch head.Kind {
	case KindFixed:
		var doc fixedDoc
		if err := node.Decode(&doc); err != nil {
			return err
		}
		r.Provider = refcond.NewFixed(doc.Inputs)
	case KindEquivalentPosition:
		var doc equivalentDoc
		if err := node.Decode(&doc); err != nil {
			return err
		}
		ep := doc.EquivalentPosition
		if err := ep.Validate(); err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		r.Provider = &ep
	case KindOverride:
		var doc overrideDoc
		if err := node.Decode(&doc); err != nil {
			return err
		}
		ot := &refcond.OverrideTable{Table: doc.Table}
		if doc.Fallback != nil {
			ot.Fallback = doc.Fallback.Provider
		}
		r.Provider = ot
	default:
		return fmt.Errorf("line %d: %w", node.Line,
			core.NewInvalidSpecError("reference.kind", fmt.Sprintf("unknown kind %q", head.Kind)))
	}
	return nil
}

func (r ReferenceConfig) MarshalYAML() (interface{}, error) {
	switch p := r.Provider.(type) {
	case nil:
		return nil, nil
	case *refcond.Fixed:
		return fixedDoc{Kind: KindFixed, Fixed: *p}, nil
	case *refcond.EquivalentPosition:
		return equivalentDoc{Kind: KindEquivalentPosition, EquivalentPosition: *p}, nil
	case *refcond.OverrideTable:
		doc := overrideDoc{Kind: KindOverride, Table: p.Table}
		if p.Fallback != nil {
			doc.Fallback = &ReferenceConfig{Provider: p.Fallback}
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("reference provider %T has no YAML form", p)
	}
}

// LoadStudy reads and validates a study file.
func LoadStudy(path string) (*Study, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read study %s", path)
	}
	s, err := ParseStudy(data)
	if err != nil {
		return nil, errors.Wrapf(err, "study %s", path)
	}
	return s, nil
}

// ParseStudy decodes a study document. Unknown fields and unregistered
// column functions are rejected.
func ParseStudy(data []byte) (*Study, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Study
	if err := dec.Decode(&s); err != nil {
		return nil, errors.Wrap(core.NewInvalidSpecError("study", err.Error()), "failed to parse study")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the parts that decoding alone cannot.
func (s *Study) Validate() error {
	if s.Reference.Provider == nil {
		return core.NewInvalidSpecError("reference", "is required")
	}
	if err := s.Columns.Validate(); err != nil {
		return err
	}
	if _, err := s.ModelSpec(); err != nil {
		return err
	}
	if _, _, err := s.Period(); err != nil {
		return err
	}
	switch s.Dataset.Format {
	case "", FormatCSV, FormatXLSX, FormatPVsyst:
	default:
		return core.NewInvalidSpecError("dataset.format", fmt.Sprintf("unknown format %q", s.Dataset.Format))
	}
	return nil
}

// ModelSpec builds the model specification.
func (s *Study) ModelSpec() (*captest.ModelSpec, error) {
	var info captest.ModelInfo
	if s.Model.Formula != nil {
		info = captest.ModelInfo{ModelType: s.Model.ModelType, Formula: *s.Model.Formula, OutputName: "P"}
	} else {
		var err error
		if info, err = captest.LookupModel(s.Model.ModelType); err != nil {
			return nil, err
		}
	}
	if len(s.Model.CoefNames) > 0 {
		info.CoefNames = s.Model.CoefNames
	}
	if s.Model.OutputName != nil {
		info.OutputName = *s.Model.OutputName
	}
	return captest.NewModelSpec(info, s.Reference.Provider, s.Model.ConfLevel)
}

// TestInfo binds the study to a model engine.
func (s *Study) TestInfo(engine ports.ModelEngine) (*captest.TestInfo, error) {
	spec, err := s.ModelSpec()
	if err != nil {
		return nil, err
	}
	return captest.NewTestInfo(spec, &s.Columns, engine)
}

// Period returns the partition period, or false for whole-dataset runs.
func (s *Study) Period() (frame.Period, bool, error) {
	if s.Run.Period == nil {
		return "", false, nil
	}
	p, err := frame.ParsePeriod(*s.Run.Period)
	if err != nil {
		return "", false, core.NewInvalidSpecError("run.period", err.Error())
	}
	return p, true, nil
}

// Apply lets environment settings override the run section.
func (s *Study) Apply(rc RunConfig) {
	if rc.Period != "" {
		s.Run.Period = &rc.Period
	}
	if rc.MinRows > 0 {
		s.Run.MinRows = &rc.MinRows
	}
	if rc.Workers > 0 {
		s.Run.Workers = &rc.Workers
	}
}

// MarshalStudy writes s as YAML. Unset optional fields are written as null.
func MarshalStudy(s *Study) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DefaultStudy is an ASTM E2848 test at a fixed reference condition over
// median-combined weather columns.
func DefaultStudy() *Study {
	linear := func(col string) columns.ComputedColumn {
		return columns.ComputedColumn{Function: columns.Linear, Inputs: map[string]float64{col: 1}, Params: map[string]float64{}}
	}
	median := func(cols ...string) columns.RedundantColumn {
		return columns.RedundantColumn{Function: columns.Median, Inputs: cols, Params: map[string]any{}}
	}
	monthly := string(frame.Monthly)
	return &Study{
		Model: ModelConfig{ModelType: captest.ModelASTME2848, ConfLevel: 0.95},
		Reference: ReferenceConfig{Provider: refcond.NewFixed(map[string]float64{
			"E": 680, "T_a": 20, "v": 3.5,
		})},
		Columns: columns.ComputedSet{
			Redundant: &columns.RedundantSet{Columns: map[string]columns.RedundantColumn{
				"GlobInc": median("GlobInc"),
				"T_Amb":   median("T_Amb"),
				"WindVel": median("WindVel"),
			}},
			Columns: map[string]columns.ComputedColumn{
				"E":   linear("GlobInc"),
				"T_a": linear("T_Amb"),
				"v":   linear("WindVel"),
				"P":   linear("EOutInv"),
			},
		},
		Dataset: DatasetConfig{Name: "All", Format: FormatCSV, TimeColumn: "Timestamp", TimeLayout: "2006-01-02 15:04:05"},
		Run:     StudyRun{Period: &monthly},
	}
}
