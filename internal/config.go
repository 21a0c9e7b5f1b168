package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/screenflowr/internal/annotation"
	"github.com/starford/screenflowr/internal/device"
	"github.com/starford/screenflowr/internal/encoder"
	"github.com/starford/screenflowr/internal/sink"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// ProviderSynthetic is the only built-in device provider.
const ProviderSynthetic = "synthetic"

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Auth      AuthConfig        `yaml:"auth"`
	Canvas    CanvasConfig      `yaml:"canvas"`
	Recorder  RecorderConfig    `yaml:"recorder"`
	Devices   DevicesConfig     `yaml:"devices"`
	Sinks     SinksConfig       `yaml:"sinks"`
	Catalog   CatalogConfig     `yaml:"catalog"`
	Discovery DiscoveryConfig   `yaml:"discovery"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, section := range []struct {
		name string
		v    validation.Validatable
	}{
		{"app", &c.App},
		{"auth", &c.Auth},
		{"canvas", &c.Canvas},
		{"recorder", &c.Recorder},
		{"devices", &c.Devices},
		{"sinks", &c.Sinks},
		{"catalog", &c.Catalog},
	} {
		if err := section.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", section.name, err)
		}
	}
	return nil
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

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication, suitable for a loopback daemon.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
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

// CanvasConfig sizes the annotation surface.
type CanvasConfig struct {
	Width              int    `yaml:"width"`
	Height             int    `yaml:"height"`
	SinglePointStrokes string `yaml:"single_point_strokes"`
}

// Validate validates the canvas configuration.
func (c *CanvasConfig) Validate() error {
	if c.SinglePointStrokes == "" {
		c.SinglePointStrokes = string(annotation.SinglePointDot)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Width, validation.Required, validation.Min(16), validation.Max(8192)),
		validation.Field(&c.Height, validation.Required, validation.Min(16), validation.Max(8192)),
		validation.Field(&c.SinglePointStrokes, validation.In(
			string(annotation.SinglePointDot), string(annotation.SinglePointDiscard))),
	)
}

// Policy returns the single-point stroke policy.
func (c *CanvasConfig) Policy() annotation.SinglePointPolicy {
	return annotation.SinglePointPolicy(c.SinglePointStrokes)
}

// RecorderConfig controls recording sessions.
type RecorderConfig struct {
	Container              string        `yaml:"container"`
	Timeslice              time.Duration `yaml:"timeslice"`
	CameraEnabled          bool          `yaml:"camera_enabled"`
	MicEnabled             bool          `yaml:"mic_enabled"`
	ClearAnnotationsOnStop bool          `yaml:"clear_annotations_on_stop"`
	AutoUpload             bool          `yaml:"auto_upload"`
}

// Validate validates the recorder configuration.
func (c *RecorderConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Container, validation.Required, validation.By(func(any) error {
			_, err := encoder.ParseContainer(c.Container)
			return err
		})),
		validation.Field(&c.Timeslice, validation.Min(time.Duration(0))),
	)
}

// ContainerFormat returns the parsed container.
func (c *RecorderConfig) ContainerFormat() encoder.Container {
	container, _ := encoder.ParseContainer(c.Container)
	return container
}

// DevicesConfig selects the capture provider.
type DevicesConfig struct {
	Provider  string          `yaml:"provider"`
	Synthetic SyntheticConfig `yaml:"synthetic"`
}

// Validate validates the devices configuration.
func (c *DevicesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(ProviderSynthetic)),
		validation.Field(&c.Synthetic),
	)
}

// SyntheticConfig configures the test-pattern provider. Deny and Missing
// list sources that answer with a permission or availability error.
type SyntheticConfig struct {
	Width   int      `yaml:"width"`
	Height  int      `yaml:"height"`
	FPS     int      `yaml:"fps"`
	Deny    []string `yaml:"deny"`
	Missing []string `yaml:"missing"`
}

var sourceNames = []any{
	string(device.SourceScreen), string(device.SourceCamera), string(device.SourceMicrophone),
}

// Validate validates the synthetic provider configuration.
func (c SyntheticConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Width, validation.Required, validation.Min(16), validation.Max(8192)),
		validation.Field(&c.Height, validation.Required, validation.Min(16), validation.Max(8192)),
		validation.Field(&c.FPS, validation.Required, validation.Min(1), validation.Max(120)),
		validation.Field(&c.Deny, validation.Each(validation.In(sourceNames...))),
		validation.Field(&c.Missing, validation.Each(validation.In(sourceNames...))),
	)
}

// Device returns the provider configuration.
func (c SyntheticConfig) Device() device.SyntheticConfig {
	return device.SyntheticConfig{
		Width:   c.Width,
		Height:  c.Height,
		FPS:     c.FPS,
		Deny:    toSources(c.Deny),
		Missing: toSources(c.Missing),
	}
}

func toSources(names []string) []device.Source {
	out := make([]device.Source, 0, len(names))
	for _, n := range names {
		out = append(out, device.Source(n))
	}
	return out
}

// SinksConfig enables upload destinations.
type SinksConfig struct {
	Local  LocalSinkConfig  `yaml:"local"`
	Drive  DriveSinkConfig  `yaml:"drive"`
	Remote RemoteSinkConfig `yaml:"remote"`
}

// Validate validates the sinks configuration.
func (c *SinksConfig) Validate() error {
	if err := c.Local.Validate(); err != nil {
		return fmt.Errorf("local: %w", err)
	}
	if err := c.Drive.Validate(); err != nil {
		return fmt.Errorf("drive: %w", err)
	}
	if err := c.Remote.Validate(); err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	return nil
}

// LocalSinkConfig saves recordings to a directory.
type LocalSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the local sink configuration.
func (c *LocalSinkConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
	)
}

// DriveSinkConfig uploads recordings to Google Drive.
type DriveSinkConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Token       string `yaml:"token"`
	FolderID    string `yaml:"folder_id"`
	SharePublic bool   `yaml:"share_public"`
}

// Validate validates the drive sink configuration.
func (c *DriveSinkConfig) Validate() error {
	if c.Endpoint == "" {
		c.Endpoint = sink.DefaultDriveEndpoint
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Token, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Endpoint, validation.Required),
	)
}

// RemoteSinkConfig posts recordings to an HTTP endpoint.
type RemoteSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
}

// Validate validates the remote sink configuration.
func (c *RemoteSinkConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.When(c.Enabled, validation.Required)),
	)
}

// CatalogConfig holds the SQLite catalog location.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the catalog configuration.
func (c *CatalogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// DiscoveryConfig controls LAN advertisement.
type DiscoveryConfig struct {
	MDNS MDNSConfig `yaml:"mdns"`
}

// MDNSConfig advertises the API as _screenflowr._tcp.
type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
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
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Canvas: CanvasConfig{
			Width:              1280,
			Height:             720,
			SinglePointStrokes: string(annotation.SinglePointDot),
		},
		Recorder: RecorderConfig{
			Container:              string(encoder.ContainerWebM),
			Timeslice:              time.Second,
			MicEnabled:             true,
			ClearAnnotationsOnStop: true,
		},
		Devices: DevicesConfig{
			Provider: ProviderSynthetic,
			Synthetic: SyntheticConfig{
				Width:  1280,
				Height: 720,
				FPS:    5,
			},
		},
		Sinks: SinksConfig{
			Local: LocalSinkConfig{
				Enabled: true,
				Path:    "./recordings",
			},
			Drive: DriveSinkConfig{
				Endpoint: sink.DefaultDriveEndpoint,
			},
		},
		Catalog: CatalogConfig{
			Path: "./screenflowr.db",
		},
	}
}
