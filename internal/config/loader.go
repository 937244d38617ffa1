package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables, applies defaults and
// validates the result. Every unset required variable and every unparsable
// value is reported, not just the first.
func Load() (*Config, error) {
	cfg := &Config{}

	var errs []string
	loadStruct(reflect.ValueOf(cfg).Elem(), &errs)
	if len(errs) > 0 {
		return nil, fmt.Errorf("config load: %s", strings.Join(errs, "; "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// lookupEnv returns the first non-empty value among names.
func lookupEnv(names ...string) string {
	for _, name := range names {
		if name == "" {
			continue
		}
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// loadStruct populates the tagged fields of v and its nested structs.
func loadStruct(v reflect.Value, errs *[]string) {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)
		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			loadStruct(fieldVal, errs)
			continue
		}

		envName, ok := field.Tag.Lookup("env")
		if !ok {
			continue
		}
		envAlt := field.Tag.Get("envAlt")

		value := lookupEnv(envName, envAlt)
		if value == "" {
			if field.Tag.Get("required") == "true" {
				name := envName
				if envAlt != "" {
					name += " (or " + envAlt + ")"
				}
				*errs = append(*errs, fmt.Sprintf("required environment variable %s is not set", name))
				continue
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			*errs = append(*errs, fmt.Sprintf("invalid value for %s=%q: %v", envName, value, err))
		}
	}
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			// Split comma-separated values, trim whitespace
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.RunRatePerMinute < 0 || c.Server.RunRateBurst < 0 {
		errs = append(errs, "SERVER_RUN_RATE_PER_MINUTE and SERVER_RUN_RATE_BURST must be non-negative")
	}

	// Loader validation
	l := &c.Loader
	if l.WorkDir == "" {
		errs = append(errs, "LOADER_WORK_DIR is required")
	}
	if l.ListFile == "" || l.DiffFile == "" {
		errs = append(errs, "LOADER_LIST_FILE and LOADER_DIFF_FILE must be set")
	}
	if l.MaxAgeDays < MinMaxAgeDays || l.MaxAgeDays > MaxMaxAgeDays {
		errs = append(errs, fmt.Sprintf("LOADER_MAX_AGE_DAYS (%d) must be %d-%d", l.MaxAgeDays, MinMaxAgeDays, MaxMaxAgeDays))
	}
	if l.MaxBatchBytes < 4096 {
		errs = append(errs, "LOADER_MAX_BATCH_BYTES must be at least 4096")
	}
	if l.MinEntries < 0 {
		errs = append(errs, "LOADER_MIN_ENTRIES must be non-negative")
	}
	if l.MirrorFailLimit <= 0 {
		errs = append(errs, "LOADER_MIRROR_FAIL_LIMIT must be positive")
	}
	if l.RunTimeout <= 0 {
		errs = append(errs, "LOADER_RUN_TIMEOUT must be positive")
	}
	if l.HTTPTimeout <= 0 {
		errs = append(errs, "LOADER_HTTP_TIMEOUT must be positive")
	}
	if l.VersionCheckBytes <= 0 {
		errs = append(errs, "LOADER_VERSION_CHECK_BYTES must be positive")
	}
	if l.CronInterval < MinCronInterval || l.CronInterval > MaxCronInterval {
		errs = append(errs, fmt.Sprintf("LOADER_CRON_INTERVAL (%s) must be %s-%s", l.CronInterval, MinCronInterval, MaxCronInterval))
	}
	if _, err := l.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("LOADER_TIMEZONE (%q) is not a known zone", l.Timezone))
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Bounds enforced by Validate and by command-line overrides.
const (
	MinMaxAgeDays   = 0
	MaxMaxAgeDays   = 24800
	MinCronInterval = 10 * time.Minute
	MaxCronInterval = 600 * time.Minute
)

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d, APIKeys: %d}, ", c.Server.Host, c.Server.Port, len(c.Server.APIKeys)))
	b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("Loader: {WorkDir: %q, Mirrors: %d, Schema: %q, MaxAgeDays: %d}, ",
		c.Loader.WorkDir, len(c.Loader.Mirrors), c.Loader.Schema, c.Loader.MaxAgeDays))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
