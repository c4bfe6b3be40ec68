package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/screenrec/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "SCREENREC_"

var durationType = reflect.TypeOf(time.Duration(0))

// LoadConfig fills opts, a pointer to a flat options struct, with values from
// the TOML file named by its Config field and from SCREENREC_ prefixed
// environment variables. Precedence is CLI flag > env var > config file.
// Flags explicitly set on cmd are left untouched; cmd may be nil.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()
	changed := changedFlags(cmd)

	var file map[string]any
	if path := configPath(v); path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return fmt.Errorf("failed to read config: %w", err)
		default:
			if err := toml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("failed to parse TOML config: %w", err)
			}
		}
	}

	for i := range v.NumField() {
		fieldType := t.Field(i)
		if changed[fieldNameToFlag(fieldType.Name)] {
			continue
		}
		field := v.Field(i)

		if tomlPath := fieldType.Tag.Get("toml"); tomlPath != "" && file != nil {
			if value := getNestedValue(file, tomlPath); value != nil {
				setFieldValue(field, value)
			}
		}
		if envKey := fieldType.Tag.Get("env"); envKey != "" {
			if envValue := os.Getenv(EnvPrefix + envKey); envValue != "" {
				setFieldValueFromString(field, envValue)
			}
		}
	}
	return nil
}

// changedFlags returns the names of flags set on the command line.
func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = true
		}
	})
	return changed
}

// configPath returns the value of the Config field, if any.
func configPath(v reflect.Value) string {
	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return ""
}

// fieldNameToFlag converts a struct field name to a CLI flag name.
// Example: "LoggingLevel" -> "logging-level", "Port" -> "port".
func fieldNameToFlag(fieldName string) string {
	var result []rune
	for i, r := range fieldName {
		if i > 0 && unicode.IsUpper(r) {
			result = append(result, '-')
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// getNestedValue walks a dotted path such as "capture.interval" through
// decoded TOML tables. Missing keys yield nil.
func getNestedValue(data map[string]any, path string) any {
	table := data
	keys := strings.Split(path, ".")
	for _, key := range keys[:len(keys)-1] {
		next, ok := table[key].(map[string]any)
		if !ok {
			return nil
		}
		table = next
	}
	return table[keys[len(keys)-1]]
}

// setFieldValue assigns a decoded TOML value. Values of the wrong type are
// ignored. Durations also accept integer milliseconds.
func setFieldValue(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}
	if s, ok := value.(string); ok {
		setFieldValueFromString(field, s)
		return
	}

	switch field.Kind() {
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, ok := value.(int64)
		if !ok {
			return
		}
		if field.Type() == durationType {
			n = int64(time.Duration(n) * time.Millisecond)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		if n, ok := value.(int64); ok && n >= 0 {
			field.SetUint(uint64(n))
		}
	case reflect.Float64:
		switch n := value.(type) {
		case float64:
			field.SetFloat(n)
		case int64:
			field.SetFloat(float64(n))
		}
	case reflect.Slice:
		items, ok := value.([]any)
		if !ok || field.Type().Elem().Kind() != reflect.String {
			return
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, isString := item.(string); isString {
				out = append(out, s)
			}
		}
		field.Set(reflect.ValueOf(out))
	}
}

// setFieldValueFromString parses an environment value, or a TOML string,
// into field. Slices are comma separated. Unparsable values are ignored.
func setFieldValueFromString(field reflect.Value, value string) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			if d, err := time.ParseDuration(value); err == nil {
				field.SetInt(int64(d))
			}
			return
		}
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(n)
		}
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		if n, err := strconv.ParseUint(value, 10, 64); err == nil {
			field.SetUint(n)
		}
	case reflect.Float64:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			field.SetFloat(f)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	}
}

// Runtime is the part of the configuration applied without a restart.
type Runtime struct {
	Logging logging.Config
	// IncludeCursor is nil when the file does not set recording.include_cursor.
	IncludeCursor *bool
}

// runtimeFile is the on-disk shape of the reloadable tables.
type runtimeFile struct {
	Logging   map[string]string `toml:"logging"`
	Recording struct {
		IncludeCursor *bool `toml:"include_cursor"`
	} `toml:"recording"`
}

func readRuntimeFile(configPath string) (runtimeFile, error) {
	var raw runtimeFile
	data, err := os.ReadFile(configPath)
	if err != nil {
		return raw, fmt.Errorf("failed to read config: %w", err)
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return raw, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return raw, nil
}

// LoadRuntime reads the reloadable settings from a TOML config file.
func LoadRuntime(configPath string) (Runtime, error) {
	raw, err := readRuntimeFile(configPath)
	if err != nil {
		return Runtime{}, err
	}
	return Runtime{
		Logging:       loggingConfig(raw.Logging),
		IncludeCursor: raw.Recording.IncludeCursor,
	}, nil
}

// LoadLoggingConfig returns the [logging] table of a config file, or the
// defaults when the file is missing or invalid.
func LoadLoggingConfig(configPath string) logging.Config {
	if configPath == "" {
		return loggingConfig(nil)
	}
	raw, err := readRuntimeFile(configPath)
	if err != nil {
		return loggingConfig(nil)
	}
	return loggingConfig(raw.Logging)
}

// loggingConfig splits a [logging] table into global keys and module levels.
func loggingConfig(table map[string]string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}
	for key, value := range table {
		switch key {
		case "level":
			cfg.Level = value
		case "format":
			cfg.Format = value
		default:
			cfg.Modules[key] = value
		}
	}
	return cfg
}
