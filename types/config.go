package types

import (
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
	"text2phenotype.com/ner/logger"
)

var (
	ErrClassifierCount  = errors.New("classifier count mismatch")
	ErrUnknownConfigKey = errors.New("unknown configuration key")
	ErrReservedName     = errors.New("reserved configuration name")
)

// ReservedConfigurationName is the response key that reports a request failure,
// so no configuration may be called that.
const ReservedConfigurationName = "error"

const (
	ModelKindCRF    = "crf"
	ModelKindMaxEnt = "maxent"

	SearchViterbi = "viterbi"
	SearchBeam    = "beam"

	ScoringEntities = "entities"
	ScoringCuts     = "cuts"

	DefaultBackground = "O"
	DefaultBeamSize   = 3
)

var numberedClassifierKey = regexp.MustCompile(`^classifier(\d+)$`)

// ClassifierSpec names a trained base model: "crf:path/to/model.json" or "maxent:path".
// A path without a kind prefix is a CRF model.
type ClassifierSpec struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
}

func ParseClassifierSpec(value string) ClassifierSpec {
	value = strings.TrimSpace(value)
	for _, kind := range []string{ModelKindCRF, ModelKindMaxEnt} {
		if strings.HasPrefix(value, kind+":") {
			return ClassifierSpec{Kind: kind, Path: strings.TrimPrefix(value, kind+":")}
		}
	}
	return ClassifierSpec{Kind: ModelKindCRF, Path: value}
}

// Configuration describes one ensemble. Classifiers are listed either as classifier1..classifierN
// (priority order) or with the legacy classifier/auxClassifier pair.
type Configuration struct {
	Name            string            `yaml:"-" json:"name"`
	FilePath        string            `yaml:"-" json:"file_path"`
	CombinationMode CombinationMode   `yaml:"combinationMode" json:"combination_mode"`
	Background      string            `yaml:"background" json:"background"`
	Search          string            `yaml:"search" json:"search"`
	BeamSize        int               `yaml:"beamSize" json:"beam_size"`
	Scoring         string            `yaml:"scoring" json:"scoring"`
	Threads         int               `yaml:"threads" json:"threads"`
	NumClassifiers  int               `yaml:"numClassifiers" json:"num_classifiers"`
	TagDictionary   string            `yaml:"tagDictionary" json:"tag_dictionary"`
	Classifier      string            `yaml:"classifier" json:"classifier,omitempty"`
	AuxClassifier   string            `yaml:"auxClassifier" json:"aux_classifier,omitempty"`
	Numbered        map[string]string `yaml:",inline" json:"numbered,omitempty"`
}

func (mode *CombinationMode) UnmarshalYAML(value *yaml.Node) error {
	return mode.UnmarshalText([]byte(value.Value))
}

func ParseConfiguration(buf []byte, name string) (Configuration, error) {
	cfg := Configuration{Name: name}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, fmt.Errorf("configuration %q: %w", name, err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return cfg, fmt.Errorf("configuration %q: %w", name, err)
	}
	if _, err := cfg.Classifiers(); err != nil {
		return cfg, fmt.Errorf("configuration %q: %w", name, err)
	}
	return cfg, nil
}

func (cfg *Configuration) applyDefaults() error {
	if cfg.Background == "" {
		cfg.Background = DefaultBackground
	}
	switch cfg.Search {
	case "":
		cfg.Search = SearchViterbi
	case SearchViterbi, SearchBeam:
	default:
		return fmt.Errorf("unknown search %q", cfg.Search)
	}
	switch cfg.Scoring {
	case "":
		cfg.Scoring = ScoringEntities
	case ScoringEntities, ScoringCuts:
	default:
		return fmt.Errorf("unknown scoring %q", cfg.Scoring)
	}
	if cfg.BeamSize <= 0 {
		cfg.BeamSize = DefaultBeamSize
	}
	return nil
}

// Classifiers returns the base classifiers in priority order, highest first.
func (cfg Configuration) Classifiers() ([]ClassifierSpec, error) {
	numbered := make(map[int]string, len(cfg.Numbered))
	maxIndex := 0
	for key, value := range cfg.Numbered {
		match := numberedClassifierKey.FindStringSubmatch(key)
		if match == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownConfigKey, key)
		}
		idx, err := strconv.Atoi(match[1])
		if err != nil || idx < 1 {
			return nil, fmt.Errorf("%w: bad classifier number in %q", ErrClassifierCount, key)
		}
		numbered[idx] = value
		if idx > maxIndex {
			maxIndex = idx
		}
	}

	legacy := cfg.Classifier != "" || cfg.AuxClassifier != ""
	var specs []ClassifierSpec
	switch {
	case len(numbered) > 0 && legacy:
		return nil, fmt.Errorf("%w: numbered classifiers mixed with classifier/auxClassifier", ErrClassifierCount)
	case len(numbered) > 0:
		for i := 1; i <= maxIndex; i++ {
			value, ok := numbered[i]
			if !ok {
				return nil, fmt.Errorf("%w: classifier%d is missing", ErrClassifierCount, i)
			}
			specs = append(specs, ParseClassifierSpec(value))
		}
	case cfg.Classifier != "":
		specs = append(specs, ParseClassifierSpec(cfg.Classifier))
		if cfg.AuxClassifier != "" {
			specs = append(specs, ParseClassifierSpec(cfg.AuxClassifier))
		}
	case cfg.AuxClassifier != "":
		return nil, fmt.Errorf("%w: auxClassifier without classifier", ErrClassifierCount)
	default:
		return nil, fmt.Errorf("%w: no classifiers configured", ErrClassifierCount)
	}

	if cfg.NumClassifiers > 0 && cfg.NumClassifiers != len(specs) {
		return nil, fmt.Errorf("%w: numClassifiers is %d but %d are listed", ErrClassifierCount, cfg.NumClassifiers, len(specs))
	}
	return specs, nil
}

func LoadConfiguration(filePath string) (Configuration, error) {
	buf, err := os.ReadFile(filePath)
	if err != nil {
		return Configuration{}, err
	}
	_, fileName := path.Split(filePath)
	cfg, err := ParseConfiguration(buf, strings.TrimSuffix(fileName, path.Ext(fileName)))
	cfg.FilePath = filePath
	return cfg, err
}

// LoadConfigurations reads every *.yaml file in dirPath, sorted by name.
func LoadConfigurations(dirPath string) ([]Configuration, error) {
	nerLogger := logger.NewLogger("LoadConfigurations")

	files, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	for _, f := range files {
		if !f.IsDir() && f.Name() == ReservedConfigurationName+".yaml" {
			return nil, fmt.Errorf("%w: %s", ErrReservedName, path.Join(dirPath, f.Name()))
		}
	}

	var wg sync.WaitGroup
	configChan := make(chan Configuration, len(files))
	errChan := make(chan error, len(files))
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".yaml") {
			continue
		}

		wg.Add(1)
		go func(fileName string) {
			defer wg.Done()
			cfg, err := LoadConfiguration(path.Join(dirPath, fileName))
			if err != nil {
				nerLogger.Err(err).Str("file", fileName).Msg("Failed to load configuration")
				errChan <- err
				return
			}
			configChan <- cfg
		}(f.Name())
	}
	wg.Wait()
	close(configChan)
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, err
	}
	configs := make([]Configuration, 0, len(configChan))
	for cfg := range configChan {
		configs = append(configs, cfg)
	}
	sort.Slice(configs, func(i, j int) bool {
		return configs[i].Name < configs[j].Name
	})
	return configs, nil
}
