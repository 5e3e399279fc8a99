package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/joinrace/joinrace/race"
)

// TechniquesConfig represents the techniques.yaml structure.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type TechniquesConfig struct {
	Version    string           `yaml:"version"`
	Techniques []race.Technique `yaml:"techniques"`
}

// parseTechniquesConfig decodes data with strict field checking: typos must
// cause errors.
func parseTechniquesConfig(data []byte) (TechniquesConfig, error) {
	var cfg TechniquesConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing techniques YAML: %w", err)
	}
	return cfg, nil
}

// loadTechniqueTable returns the built-in techniques, with entries from path
// added or replacing built-ins of the same name. An empty path returns the
// built-ins unchanged.
func loadTechniqueTable(path string) (race.TechniqueTable, error) {
	table := race.BuiltinTechniques()
	if path == "" {
		return table, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading techniques file %s: %w", path, err)
	}
	cfg, err := parseTechniquesConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, t := range cfg.Techniques {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if _, ok := table[t.Name]; ok {
			logrus.Debugf("technique %q overridden by %s", t.Name, path)
		}
		table[t.Name] = t
	}
	return table, nil
}

// mustTechniqueTable loads the configured technique table or exits.
func mustTechniqueTable() race.TechniqueTable {
	table, err := loadTechniqueTable(techniquesFile)
	if err != nil {
		logrus.Fatalf("Failed to load techniques: %v", err)
	}
	return table
}

// mustTechnique resolves name against the configured table or exits.
func mustTechnique(name string) race.Technique {
	tech, err := mustTechniqueTable().Lookup(name)
	if err != nil {
		logrus.Fatalf("%v", err)
	}
	return tech
}
