// Package config loads YAML run files and merges them with profile defaults
// and command-line overrides.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/msaeedsaeedi/serialsoak/internal/domain"
)

//go:embed run.schema.json
var schemaJSON []byte

var (
	runSchema   *jsonschema.Schema
	compileOnce sync.Once
	compileErr  error
)

type File struct {
	Profile     string   `yaml:"profile"`
	Port        string   `yaml:"port"`
	Baud        int      `yaml:"baud"`
	Cycles      *int     `yaml:"cycles"`
	Delay       *float64 `yaml:"delay"`
	Commands    []string `yaml:"commands"`
	ID          string   `yaml:"id"`
	Project     string   `yaml:"project"`
	SuccessCode *int64   `yaml:"success_code"`
	TimeoutCode *int64   `yaml:"timeout_code"`
	LogDir      string   `yaml:"log_dir"`
	DB          string   `yaml:"db"`
	MQTT        *MQTT    `yaml:"mqtt"`
}

type MQTT struct {
	Broker   string `yaml:"broker"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Overrides carries values given explicitly on the command line. Nil fields
// were not set and leave the file or profile value in place.
type Overrides struct {
	Profile     *string
	Port        *string
	Baud        *int
	Cycles      *int
	Delay       *float64
	Commands    []string
	ID          *string
	Project     *string
	SuccessCode *int64
	TimeoutCode *int64
	LogDir      *string
}

// Load reads and validates a YAML run file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	if err := validate(data); err != nil {
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse run file: %w", err)
	}
	return &f, nil
}

func validate(data []byte) error {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal run schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("run.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("add run schema resource: %w", err)
			return
		}
		runSchema, compileErr = compiler.Compile("run.schema.json")
	})
	if compileErr != nil {
		return compileErr
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse run file: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	// Round-trip through JSON so numbers reach the validator as it expects them.
	js, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("run file is not representable as JSON: %w", err)
	}
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(js))
	if err != nil {
		return fmt.Errorf("run file is not representable as JSON: %w", err)
	}

	if err := runSchema.Validate(v); err != nil {
		return fmt.Errorf("run file validation failed: %w", err)
	}
	return nil
}

// Build resolves a RunConfig: profile defaults, then the run file, then
// command-line overrides.
func Build(f *File, o Overrides) (*domain.RunConfig, error) {
	if f == nil {
		f = &File{}
	}

	profileName := pick(f.Profile, o.Profile)
	if profileName == "" {
		profileName = domain.QBA.Name
	}
	profile, err := domain.LookupProfile(profileName)
	if err != nil {
		return nil, err
	}

	if code := pickPtr(f.SuccessCode, o.SuccessCode); code != nil {
		profile.SuccessCode = *code
	}
	if code := pickPtr(f.TimeoutCode, o.TimeoutCode); code != nil {
		profile.TimeoutCode = *code
	}

	defaults := profile.Defaults
	cfg := &domain.RunConfig{
		Port:     orDefault(pick(f.Port, o.Port), defaults.Port),
		BaudRate: defaults.BaudRate,
		Cycles:   defaults.Cycles,
		Delay:    defaults.Delay,
		Commands: append([]string(nil), defaults.Commands...),
		Profile:  profile,
		Project:  pick(f.Project, o.Project),
		LogDir:   orDefault(pick(f.LogDir, o.LogDir), "logs"),
	}

	if f.Baud > 0 {
		cfg.BaudRate = f.Baud
	}
	if o.Baud != nil {
		cfg.BaudRate = *o.Baud
	}
	if c := pickPtr(f.Cycles, o.Cycles); c != nil {
		cfg.Cycles = *c
	}
	if d := pickPtr(f.Delay, o.Delay); d != nil {
		cfg.Delay = Seconds(*d)
	}
	if len(f.Commands) > 0 {
		cfg.Commands = append([]string(nil), f.Commands...)
	}
	if len(o.Commands) > 0 {
		cfg.Commands = append([]string(nil), o.Commands...)
	}

	cfg.InstanceID = pick(f.ID, o.ID)
	if cfg.InstanceID == "" {
		cfg.InstanceID = fmt.Sprintf("%s_%s", profile.Name, uuid.NewString()[:8])
	}

	return cfg, nil
}

// Seconds converts a fractional number of seconds, as operators write
// delays, into a Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func pick(fileValue string, override *string) string {
	if override != nil {
		return *override
	}
	return fileValue
}

func pickPtr[T any](fileValue, override *T) *T {
	if override != nil {
		return override
	}
	return fileValue
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
