// Package config loads phpcov settings from phpcov.yaml (or .yml, .toml,
// .json), PHPCOV_* environment variables and bound command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	configName = "phpcov"
	envPrefix  = "PHPCOV"
)

// Source selects the files coverage is reported for
type Source struct {
	IncludeDirectories []string `mapstructure:"include_directories" yaml:"include_directories"`
	IncludeFiles       []string `mapstructure:"include_files" yaml:"include_files"`
	IncludePatterns    []string `mapstructure:"include_patterns" yaml:"include_patterns"`
	ExcludeDirectories []string `mapstructure:"exclude_directories" yaml:"exclude_directories"`
	ExcludeFiles       []string `mapstructure:"exclude_files" yaml:"exclude_files"`
	ExcludePatterns    []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`
	Suffix             string   `mapstructure:"suffix" yaml:"suffix" validate:"required"`
}

// Coverage configures collection and static analysis
type Coverage struct {
	Driver                string `mapstructure:"driver" yaml:"driver" validate:"oneof=auto xdebug pcov phpdbg"`
	PathCoverage          bool   `mapstructure:"path_coverage" yaml:"path_coverage"`
	DeadCode              bool   `mapstructure:"dead_code" yaml:"dead_code"`
	IncludeUncovered      bool   `mapstructure:"include_uncovered" yaml:"include_uncovered"`
	Annotations           bool   `mapstructure:"annotations" yaml:"annotations"`
	IgnoreDeprecated      bool   `mapstructure:"ignore_deprecated" yaml:"ignore_deprecated"`
	CheckUnintentional    bool   `mapstructure:"check_unintentional" yaml:"check_unintentional"`
	ExecutableLinesFilter bool   `mapstructure:"executable_lines_filter" yaml:"executable_lines_filter"`
	CacheDir              string `mapstructure:"cache_dir" yaml:"cache_dir"`
}

// Runner configures how test processes are started
type Runner struct {
	PHP        string   `mapstructure:"php" yaml:"php" validate:"required"`
	Command    []string `mapstructure:"command" yaml:"command" validate:"min=1"`
	Tests      []string `mapstructure:"tests" yaml:"tests" validate:"min=1"`
	TestSuffix string   `mapstructure:"test_suffix" yaml:"test_suffix" validate:"required"`
	Prepend    string   `mapstructure:"prepend" yaml:"prepend"`
	Jobs       int      `mapstructure:"jobs" yaml:"jobs" validate:"gte=0"`
	DumpDir    string   `mapstructure:"dump_dir" yaml:"dump_dir" validate:"required"`
	ShowOutput bool     `mapstructure:"show_output" yaml:"show_output"`
}

// Report selects the reports to write. Empty targets are skipped.
type Report struct {
	Name            string  `mapstructure:"name" yaml:"name"`
	LowUpperBound   float64 `mapstructure:"low_upper_bound" yaml:"low_upper_bound" validate:"gte=0,lte=100"`
	HighLowerBound  float64 `mapstructure:"high_lower_bound" yaml:"high_lower_bound" validate:"gte=0,lte=100,gtfield=LowUpperBound"`
	Text            bool    `mapstructure:"text" yaml:"text"`
	Colors          bool    `mapstructure:"colors" yaml:"colors"`
	ShowUncovered   bool    `mapstructure:"show_uncovered" yaml:"show_uncovered"`
	SummaryOnly     bool    `mapstructure:"summary_only" yaml:"summary_only"`
	Clover          string  `mapstructure:"clover" yaml:"clover"`
	Cobertura       string  `mapstructure:"cobertura" yaml:"cobertura"`
	Crap4j          string  `mapstructure:"crap4j" yaml:"crap4j"`
	Crap4jThreshold int     `mapstructure:"crap4j_threshold" yaml:"crap4j_threshold" validate:"gte=1"`
	HTML            string  `mapstructure:"html" yaml:"html"`
	XML             string  `mapstructure:"xml" yaml:"xml"`
	Serialized      string  `mapstructure:"serialized" yaml:"serialized"`
}

// Config is the complete phpcov configuration
type Config struct {
	Source   Source   `mapstructure:"source" yaml:"source"`
	Coverage Coverage `mapstructure:"coverage" yaml:"coverage"`
	Runner   Runner   `mapstructure:"runner" yaml:"runner"`
	Report   Report   `mapstructure:"report" yaml:"report"`
	Verbose  bool     `mapstructure:"verbose" yaml:"verbose"`
}

var defaults = map[string]any{
	"source.include_directories": []string{"src"},
	"source.include_files":       []string{},
	"source.include_patterns":    []string{},
	"source.exclude_directories": []string{},
	"source.exclude_files":       []string{},
	"source.exclude_patterns":    []string{},
	"source.suffix":              ".php",

	"coverage.driver":                  "auto",
	"coverage.path_coverage":           false,
	"coverage.dead_code":               false,
	"coverage.include_uncovered":       true,
	"coverage.annotations":             true,
	"coverage.ignore_deprecated":       false,
	"coverage.check_unintentional":     false,
	"coverage.executable_lines_filter": false,
	"coverage.cache_dir":               "",

	"runner.php":         "php",
	"runner.command":     []string{"vendor/bin/phpunit"},
	"runner.tests":       []string{"tests"},
	"runner.test_suffix": "Test.php",
	"runner.prepend":     "",
	"runner.jobs":        0,
	"runner.dump_dir":    ".phpcov",
	"runner.show_output": false,

	"report.name":             "",
	"report.low_upper_bound":  50.0,
	"report.high_lower_bound": 90.0,
	"report.text":             true,
	"report.colors":           false,
	"report.show_uncovered":   false,
	"report.summary_only":     false,
	"report.clover":           "",
	"report.cobertura":        "",
	"report.crap4j":           "",
	"report.crap4j_threshold": 30,
	"report.html":             "",
	"report.xml":              "",
	"report.serialized":       "",

	"verbose": false,
}

// validate caches struct info
var validate = validator.New()

// New returns a viper instance reading from fs with phpcov defaults and
// PHPCOV_* environment variables, e.g. PHPCOV_RUNNER_JOBS
func New(fs afero.Fs) *viper.Viper {
	v := withDefaults(fs)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func withDefaults(fs afero.Fs) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

// Load reads file into v, or phpcov.* from dir when file is empty, and
// returns the validated configuration. A missing phpcov.* is not an error;
// a missing explicit file is.
func Load(v *viper.Viper, file, dir string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	cfg, err := Load(withDefaults(afero.NewMemMapFs()), "", "/")
	if err != nil {
		panic(err)
	}
	return cfg
}

// Write stores cfg as YAML at path
func Write(fs afero.Fs, path string, cfg *Config) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return afero.WriteFile(fs, path, out, 0o644)
}
