package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/dagaz/internal/metadata"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Vault   VaultConfig       `yaml:"vault"`
	Tasks   TasksConfig       `yaml:"tasks"`
	Index   IndexConfig       `yaml:"index"`
	TimeLog TimeLogConfig     `yaml:"timelog"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Tasks.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if err := c.TimeLog.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// EngineParams maps the tasks and index sections onto the metadata engine
// configuration.
func (c *Config) EngineParams() metadata.Params {
	return metadata.Params{
		TaskTag:           c.Tasks.MarkerTag,
		TaskKey:           c.Tasks.MarkerKey,
		TaskValue:         c.Tasks.MarkerValue,
		DefaultStatus:     c.Tasks.DefaultStatus,
		DefaultPriority:   c.Tasks.DefaultPriority,
		CompletedStatuses: c.Tasks.CompletedStatuses,
		IndexNotes:        c.Index.IncludeNotes,
		ExcludedFolders:   c.Index.ExcludedFolders,
		BatchSize:         c.Index.BatchSize,
	}
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// TasksConfig controls how documents are classified as tasks.
//
// A document is a task when its tags contain MarkerTag, or when MarkerKey is
// set and the frontmatter field MarkerKey equals MarkerValue.
type TasksConfig struct {
	MarkerTag         string   `yaml:"marker_tag"`
	MarkerKey         string   `yaml:"marker_key"`
	MarkerValue       string   `yaml:"marker_value"`
	Statuses          []string `yaml:"statuses"`
	CompletedStatuses []string `yaml:"completed_statuses"`
	DefaultStatus     string   `yaml:"default_status"`
	Priorities        []string `yaml:"priorities"`
	DefaultPriority   string   `yaml:"default_priority"`
	CaptureFolder     string   `yaml:"capture_folder"`
}

// Validate validates the tasks configuration.
func (c *TasksConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.MarkerTag, validation.Required),
		validation.Field(&c.DefaultStatus, validation.Required),
		validation.Field(&c.DefaultPriority, validation.Required),
	); err != nil {
		return err
	}
	if len(c.Statuses) > 0 && !contains(c.Statuses, c.DefaultStatus) {
		return fmt.Errorf("tasks: default_status %q not in statuses", c.DefaultStatus)
	}
	if len(c.Priorities) > 0 && !contains(c.Priorities, c.DefaultPriority) {
		return fmt.Errorf("tasks: default_priority %q not in priorities", c.DefaultPriority)
	}
	for _, s := range c.CompletedStatuses {
		if len(c.Statuses) > 0 && !contains(c.Statuses, s) {
			return fmt.Errorf("tasks: completed status %q not in statuses", s)
		}
	}
	return nil
}

// IndexConfig controls the metadata index build.
type IndexConfig struct {
	IncludeNotes    bool     `yaml:"include_notes"`
	ExcludedFolders []string `yaml:"excluded_folders"`
	BatchSize       int      `yaml:"batch_size"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BatchSize, validation.Min(1)),
	)
}

// TimeLogConfig holds the session log database configuration.
type TimeLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the time log configuration.
func (c *TimeLogConfig) Validate() error {
	if c.Enabled && c.Path == "" {
		return fmt.Errorf("timelog: enabled but path is empty")
	}
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		Tasks: TasksConfig{
			MarkerTag:         "task",
			Statuses:          []string{"open", "doing", "done", "cancelled"},
			CompletedStatuses: []string{"done", "cancelled"},
			DefaultStatus:     "open",
			Priorities:        []string{"low", "normal", "high", "urgent"},
			DefaultPriority:   "normal",
			CaptureFolder:     "tasks",
		},
		Index: IndexConfig{
			IncludeNotes:    true,
			ExcludedFolders: []string{"templates", ".trash"},
			BatchSize:       50,
		},
		TimeLog: TimeLogConfig{
			Enabled: true,
			Path:    "./dagaz-timelog.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
