// Package config loads the archive configuration from YAML.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"imaging-archive-service/internal/dicom"
	"imaging-archive-service/internal/query"
)

// RefreshQueue is the default queue of aggregate refresh jobs.
const RefreshQueue = "query_attributes_refresh"

// Config is the root configuration.
type Config struct {
	Database         DatabaseConfig         `yaml:"database"`
	Log              LogConfig              `yaml:"log"`
	Query            query.QueryParam       `yaml:"query"`
	AttributeFilters AttributeFiltersConfig `yaml:"attribute_filters"`
	Fuzzy            FuzzyConfig            `yaml:"fuzzy"`
	Refresh          RefreshConfig          `yaml:"refresh"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"required,oneof=postgres sqlite"`
	DSN    string `yaml:"dsn" validate:"required"`
	// MaxOpenConns caps the pool; zero leaves it unlimited. A streaming query
	// holds one connection while missing aggregates are computed on another,
	// so a cap must allow at least MinOpenConns.
	MaxOpenConns int `yaml:"max_open_conns" validate:"omitempty,gte=2"`
}

// MinOpenConns is the smallest non-zero connection cap.
const MinOpenConns = 2

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// AttributeFiltersConfig lists, per entity, the attributes kept in the stored
// blob. Entries are keywords or hex tags.
type AttributeFiltersConfig struct {
	Patient  []string `yaml:"patient" validate:"required,min=1"`
	Study    []string `yaml:"study" validate:"required,min=1"`
	Series   []string `yaml:"series" validate:"required,min=1"`
	Instance []string `yaml:"instance" validate:"required,min=1"`
}

type FuzzyConfig struct {
	Algorithm string `yaml:"algorithm" validate:"omitempty,oneof=soundex esoundex"`
}

type RefreshConfig struct {
	Enabled bool   `yaml:"enabled"`
	Queue   string `yaml:"queue" validate:"required_if=Enabled true"`
	Workers int    `yaml:"workers" validate:"gte=0,lte=64"`
}

// Filters holds the parsed attribute filters of every entity.
type Filters struct {
	Patient  *dicom.AttributeFilter
	Study    *dicom.AttributeFilter
	Series   *dicom.AttributeFilter
	Instance *dicom.AttributeFilter
}

var validate = validator.New()

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "file:archive.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Query: query.QueryParam{
			OptionalKeysPolicy: query.OptionalKeysReport,
		},
		AttributeFilters: AttributeFiltersConfig{
			Patient: []string{
				"SpecificCharacterSet", "PatientName", "PatientID", "IssuerOfPatientID",
				"IssuerOfPatientIDQualifiersSequence", "PatientBirthDate", "PatientSex",
			},
			Study: []string{
				"SpecificCharacterSet", "StudyInstanceUID", "StudyDate", "StudyTime",
				"AccessionNumber", "StudyID", "StudyDescription", "ReferringPhysicianName",
			},
			Series: []string{
				"SpecificCharacterSet", "SeriesInstanceUID", "Modality", "SeriesNumber",
				"SeriesDescription", "BodyPartExamined",
			},
			Instance: []string{
				"SpecificCharacterSet", "SOPClassUID", "SOPInstanceUID", "InstanceNumber",
			},
		},
		Fuzzy:   FuzzyConfig{Algorithm: "soundex"},
		Refresh: RefreshConfig{Queue: RefreshQueue, Workers: 1},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and that every filter entry names a tag.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Filters(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.FuzzyStr(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// QueryParam returns the default matching parameters.
func (c *Config) QueryParam() query.QueryParam {
	return c.Query
}

// Filters parses the attribute filters.
func (c *Config) Filters() (*Filters, error) {
	var f Filters
	var err error
	if f.Patient, err = parseFilter("patient", c.AttributeFilters.Patient); err != nil {
		return nil, err
	}
	if f.Study, err = parseFilter("study", c.AttributeFilters.Study); err != nil {
		return nil, err
	}
	if f.Series, err = parseFilter("series", c.AttributeFilters.Series); err != nil {
		return nil, err
	}
	if f.Instance, err = parseFilter("instance", c.AttributeFilters.Instance); err != nil {
		return nil, err
	}
	return &f, nil
}

// FuzzyStr returns the configured fuzzy code algorithm.
func (c *Config) FuzzyStr() (dicom.FuzzyStr, error) {
	return dicom.NewFuzzyStr(c.Fuzzy.Algorithm)
}

func parseFilter(entity string, names []string) (*dicom.AttributeFilter, error) {
	tags := make([]dicom.Tag, 0, len(names))
	for _, name := range names {
		tag, err := dicom.ParseTag(name)
		if err != nil {
			return nil, fmt.Errorf("attribute_filters.%s: %w", entity, err)
		}
		tags = append(tags, tag)
	}
	return dicom.NewAttributeFilter(tags...), nil
}
