package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tendant/simple-icon-tester/internal/catalog"
	"github.com/tendant/simple-icon-tester/pkg/pipeline"
)

// EnvPrefix is prepended to every environment key (ICON_TESTER_TOOL_DIR, ...)
const EnvPrefix = "ICON_TESTER"

// Config holds process-wide configuration
type Config struct {
	// Port is the HTTP listen port
	Port int `mapstructure:"port"`

	// TmpRoot is the directory that holds per-job workspaces
	TmpRoot string `mapstructure:"tmp_root"`

	// JobPrefix is prepended to generated job ids
	JobPrefix string `mapstructure:"job_prefix"`

	// StaticDir is served at / when it exists
	StaticDir string `mapstructure:"static_dir"`

	// Concurrency bounds per-file fan-out inside one job
	Concurrency int `mapstructure:"concurrency"`

	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Tool     ToolConfig     `mapstructure:"tool"`
	Report   ReportConfig   `mapstructure:"report"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Visual   VisualConfig   `mapstructure:"visual"`
	Outline  OutlineConfig  `mapstructure:"outline"`
	Preview  PreviewConfig  `mapstructure:"preview"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Log      LogConfig      `mapstructure:"log"`
}

// CatalogConfig locates the catalog document
type CatalogConfig struct {
	Path          string `mapstructure:"path"`
	IdentifierKey string `mapstructure:"identifier_key"`
	GlyphKey      string `mapstructure:"glyph_key"`
}

// UploadConfig holds the upload constraints
type UploadConfig struct {
	Field        string   `mapstructure:"field"`
	MaxFileBytes int64    `mapstructure:"max_file_bytes"`
	MaxFiles     int      `mapstructure:"max_files"`
	Extensions   []string `mapstructure:"extensions"`
	MediaTypes   []string `mapstructure:"media_types"`
}

// ToolConfig describes the external validation tool invocation
type ToolConfig struct {
	// Command is the executable. Relative paths resolve against Dir.
	Command string `mapstructure:"command"`
	// Args may contain {workspace}, {metadata}, {report_dir}, {report_name}
	// and {report_stem} placeholders
	Args []string `mapstructure:"args"`
	// Dir is the working directory of the tool
	Dir string `mapstructure:"dir"`
	// TestDir is reported in fallback diagnostics
	TestDir        string `mapstructure:"test_dir"`
	MaxOutputBytes int64  `mapstructure:"max_output_bytes"`
}

// ReportConfig names the report artifact
type ReportConfig struct {
	Name string `mapstructure:"name"`
}

// MetadataConfig controls the metadata document
type MetadataConfig struct {
	Name            string   `mapstructure:"name"`
	BlankAttributes []string `mapstructure:"blank_attributes"`
}

// VisualConfig controls the direct-render report
type VisualConfig struct {
	// Template is a path to the report template; empty uses the built-in one
	Template string `mapstructure:"template"`
}

// OutlineConfig controls the outline transform
type OutlineConfig struct {
	Stroke string  `mapstructure:"stroke"`
	Width  float64 `mapstructure:"width"`
}

// PreviewConfig controls raster previews on the visual route
type PreviewConfig struct {
	// Size is the preview edge length in pixels, 0 disables previews
	Size int `mapstructure:"size"`
}

// MetricsConfig toggles the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LedgerConfig configures the optional Postgres job ledger
type LedgerConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
}

// LogConfig configures slog
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// defaultToolArgs runs the mocha suite with the mochawesome reporter
var defaultToolArgs = []string{
	"--reporter", "mochawesome",
	"--reporter-options",
	"quiet=true,reportDir={report_dir},reportFilename={report_stem},json=false,inline=true,code=false,cdn=true,reportTitle=OpenMoji-Tester,reportPageTitle=OpenMoji-Tester",
	"openmoji/test/*.js",
	"--openmoji-data-json", "{metadata}",
	"--openmoji-src-folder", "{workspace}",
}

// Default returns a Config with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.WithDefaults()
	return cfg
}

// WithDefaults fills in default values for unset fields
func (c *Config) WithDefaults() {
	if c.Port == 0 {
		c.Port = 3000
	}
	if c.TmpRoot == "" {
		c.TmpRoot = os.TempDir()
	}
	if c.JobPrefix == "" {
		c.JobPrefix = pipeline.DefaultJobPrefix
	}
	if c.Concurrency <= 0 {
		c.Concurrency = runtime.NumCPU()
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = "./openmoji/data/openmoji-tester.json"
	}
	if c.Catalog.IdentifierKey == "" {
		c.Catalog.IdentifierKey = catalog.DefaultIdentifierKey
	}
	if c.Catalog.GlyphKey == "" {
		c.Catalog.GlyphKey = catalog.DefaultGlyphKey
	}
	if c.Upload.Field == "" {
		c.Upload.Field = pipeline.DefaultUploadField
	}
	if c.Upload.MaxFileBytes == 0 {
		c.Upload.MaxFileBytes = 2 * 1024 * 1024
	}
	if c.Upload.MaxFiles == 0 {
		c.Upload.MaxFiles = 4000
	}
	if len(c.Upload.Extensions) == 0 {
		c.Upload.Extensions = []string{".svg"}
	}
	if len(c.Upload.MediaTypes) == 0 {
		c.Upload.MediaTypes = []string{pipeline.SVGMediaType}
	}
	if c.Tool.Command == "" {
		c.Tool.Command = "node_modules/.bin/mocha"
		if len(c.Tool.Args) == 0 {
			c.Tool.Args = append([]string(nil), defaultToolArgs...)
		}
	}
	if c.Tool.Dir == "" {
		c.Tool.Dir = "."
	}
	if c.Tool.TestDir == "" {
		c.Tool.TestDir = "openmoji/test"
	}
	if c.Tool.MaxOutputBytes == 0 {
		c.Tool.MaxOutputBytes = 10 * 1024 * 1024
	}
	if c.Report.Name == "" {
		c.Report.Name = pipeline.DefaultReportName
	}
	if c.Metadata.Name == "" {
		c.Metadata.Name = pipeline.DefaultMetadataName
	}
	if c.Metadata.BlankAttributes == nil {
		c.Metadata.BlankAttributes = []string{"group", "subgroups"}
	}
	if c.Outline.Stroke == "" {
		c.Outline.Stroke = "#FFFFFF"
	}
	if c.Outline.Width == 0 {
		c.Outline.Width = 6
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the merged configuration
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}
	if c.Upload.MaxFileBytes < 1 {
		errs = append(errs, fmt.Errorf("upload.max_file_bytes must be positive, got %d", c.Upload.MaxFileBytes))
	}
	if c.Upload.MaxFiles < 1 {
		errs = append(errs, fmt.Errorf("upload.max_files must be positive, got %d", c.Upload.MaxFiles))
	}
	if c.Preview.Size < 0 {
		errs = append(errs, fmt.Errorf("preview.size must not be negative, got %d", c.Preview.Size))
	}
	if c.Report.Name == c.Metadata.Name {
		errs = append(errs, fmt.Errorf("report.name and metadata.name must differ"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Load merges defaults, an optional config file, the environment (including a
// .env file) and command-line flags, in increasing order of precedence.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file '%s': %w", cfgFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// PORT is the conventional variable on hosting platforms
	if err := v.BindEnv("port", EnvPrefix+"_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind PORT: %w", err)
	}
	// no viper defaults for the tool: WithDefaults supplies the stock arguments
	// only when the command is the stock one
	for _, key := range []string{"tool.command", "tool.args"} {
		env := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if flags != nil {
		for flagName, key := range flagKeys {
			flag := flags.Lookup(flagName)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("error binding flag '--%s': %w", flagName, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling configuration: %w", err)
	}
	cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// flagKeys maps command-line flag names to configuration keys
var flagKeys = map[string]string{
	"port":          "port",
	"tmp-root":      "tmp_root",
	"catalog":       "catalog.path",
	"static-dir":    "static_dir",
	"tool-dir":      "tool.dir",
	"tool-command":  "tool.command",
	"template":      "visual.template",
	"preview-size":  "preview.size",
	"max-file-size": "upload.max_file_bytes",
	"max-files":     "upload.max_files",
	"concurrency":   "concurrency",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"ledger-dsn":    "ledger.database_url",
	"metrics":       "metrics.enabled",
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("port", d.Port)
	v.SetDefault("tmp_root", d.TmpRoot)
	v.SetDefault("job_prefix", d.JobPrefix)
	v.SetDefault("static_dir", "public")
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("catalog.path", d.Catalog.Path)
	v.SetDefault("catalog.identifier_key", d.Catalog.IdentifierKey)
	v.SetDefault("catalog.glyph_key", d.Catalog.GlyphKey)
	v.SetDefault("upload.field", d.Upload.Field)
	v.SetDefault("upload.max_file_bytes", d.Upload.MaxFileBytes)
	v.SetDefault("upload.max_files", d.Upload.MaxFiles)
	v.SetDefault("upload.extensions", d.Upload.Extensions)
	v.SetDefault("upload.media_types", d.Upload.MediaTypes)
	v.SetDefault("tool.dir", d.Tool.Dir)
	v.SetDefault("tool.test_dir", d.Tool.TestDir)
	v.SetDefault("tool.max_output_bytes", d.Tool.MaxOutputBytes)
	v.SetDefault("report.name", d.Report.Name)
	v.SetDefault("metadata.name", d.Metadata.Name)
	v.SetDefault("metadata.blank_attributes", d.Metadata.BlankAttributes)
	v.SetDefault("visual.template", "")
	v.SetDefault("outline.stroke", d.Outline.Stroke)
	v.SetDefault("outline.width", d.Outline.Width)
	v.SetDefault("preview.size", 72)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("ledger.database_url", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}
