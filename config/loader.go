package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix is the prefix for environment variable overrides.
const DefaultEnvPrefix = "LLMSERVE"

// legacyEnvAliases maps unprefixed environment variables from existing
// deployment manifests onto their prefixed equivalents. The prefixed
// form wins when both are set.
var legacyEnvAliases = map[string]string{
	"MODEL_PATH":      "MODEL_PATH",
	"N_CTX":           "MODEL_CONTEXT_SIZE",
	"N_GPU_LAYERS":    "MODEL_GPU_LAYERS",
	"LLAMA_N_THREADS": "MODEL_THREADS",
}

// Loader builds a Config from defaults, an optional YAML file, and
// environment variables, each layer overriding the previous one.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader returns a Loader with the default environment prefix and
// aggregate validation enabled.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		validators: []func(*Config) error{(*Config).Validate},
	}
}

// WithConfigPath sets the YAML file to load. A missing file is not an
// error; defaults and env overrides still apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends an extra validation step run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load assembles the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	aliases := make(map[string]string, len(legacyEnvAliases))
	for alias, suffix := range legacyEnvAliases {
		aliases[l.envPrefix+"_"+suffix] = alias
	}
	getenv := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		if alias, ok := aliases[key]; ok {
			return os.Getenv(alias)
		}
		return ""
	}
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix, getenv)
}

// setFieldsFromEnv walks the struct and applies overrides. Env keys
// are the uppercased yaml tags joined with underscores, e.g.
// LLMSERVE_BATCH_MAX_BATCH_SIZE for Config.Batch.MaxBatchSize.
func setFieldsFromEnv(v reflect.Value, prefix string, getenv func(string) string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		tag := fieldType.Tag.Get("yaml")
		if tag == "" || tag == "-" {
			continue
		}
		if idx := strings.IndexByte(tag, ','); idx >= 0 {
			tag = tag[:idx]
		}

		envKey := prefix + "_" + strings.ToUpper(tag)

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := setFieldsFromEnv(field, envKey, getenv); err != nil {
				return err
			}
			continue
		}

		envValue := getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration takes Go duration syntax ("50ms", "5m").
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the configuration from path and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads the configuration from defaults and environment
// variables only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}
