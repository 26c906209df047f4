package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
)

const defaultConfigPath = "~/.config/photofinish/config.json"

// Config holds user-editable settings for the pipeline.
type Config struct {
	Paths       Paths          `json:"paths"`
	Logging     Logging        `json:"logging"`
	Performance Performance    `json:"performance"`
	Preprocess  Preprocess     `json:"preprocessing"`
	Whitening   Whitening      `json:"whitening"`
	Background  BackgroundCrop `json:"background_crop"`
	Padding     Padding        `json:"padding"`
	Tone        Tone           `json:"brightness_contrast"`
	Merge       MergeSettings  `json:"merge_settings"`
	Collage     Collage        `json:"collage"`
	Individual  Individual     `json:"individual_mode"`
}

// Paths configures default input/output locations.
type Paths struct {
	DefaultInput  string `json:"default_input"`
	DefaultOutput string `json:"default_output"`
	DatabasePath  string `json:"database_path"`
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // text, json
	FileOutput bool   `json:"file_output"` // Enable file logging
	LogDir     string `json:"log_dir"`     // Directory for log files
	MaxSize    int    `json:"max_size"`    // Max size in MB before rotation
	MaxBackups int    `json:"max_backups"` // Number of backup files to keep
	MaxAge     int    `json:"max_age"`     // Days to keep log files
}

// Performance captures execution preferences. MaxWorkers 0 sizes the pool
// from the CPU count.
type Performance struct {
	MaxWorkers int `json:"max_workers"`
	QueueSize  int `json:"queue_size"`
}

// Preprocess optionally downscales inputs before any other stage.
type Preprocess struct {
	Enabled bool `json:"enable_preresize"`
	Width   int  `json:"preresize_width"`
	Height  int  `json:"preresize_height"`
}

// Whitening rescales channels so a color cast on the border becomes pure
// white. CancelThreshold is a summed channel threshold in [0,765]; a darkest
// border pixel at or below it means a real backdrop, and whitening is
// skipped.
type Whitening struct {
	Enabled         bool `json:"enable_whitening"`
	CancelThreshold int  `json:"whitening_cancel_threshold"`
}

// BackgroundCrop controls background segmentation and cropping.
type BackgroundCrop struct {
	Enabled               bool    `json:"enable_bg_crop"`
	RemovalMode           string  `json:"removal_mode"` // full, edges
	WhiteTolerance        int     `json:"white_tolerance"`
	PerimeterTolerance    int     `json:"perimeter_tolerance"`
	EnableCrop            bool    `json:"enable_crop"`
	CropSymmetricAbsolute bool    `json:"crop_symmetric_absolute"`
	CropSymmetricAxes     bool    `json:"crop_symmetric_axes"`
	ExtraCropPercent      float64 `json:"extra_crop_percent"`
	CheckPerimeter        bool    `json:"check_perimeter"`
	PerimeterMode         string  `json:"perimeter_mode"` // always, if_white, if_not_white
	UseMask               bool    `json:"use_mask_instead_of_transparency"`
	TwoPhase              bool    `json:"use_two_phase_processing"`
	ScaleFactor           float64 `json:"scale_factor"` // 1.0 selects automatically
	HaloReductionLevel    int     `json:"halo_reduction_level"`
}

// Padding controls the symmetric pad stage.
type Padding struct {
	Mode                    string  `json:"mode"` // never, always, if_white
	Percent                 float64 `json:"padding_percent"`
	AllowExpansion          bool    `json:"allow_expansion"`
	PerimeterCheckTolerance int     `json:"perimeter_check_tolerance"`
}

// Tone is the linear brightness/contrast map.
type Tone struct {
	Enabled    bool    `json:"enabled"`
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
}

// MergeSettings control the template overlay.
type MergeSettings struct {
	TemplatePath    string  `json:"template_path"`
	Position        string  `json:"position"`
	TemplateOnTop   bool    `json:"template_on_top"`
	ProcessTemplate bool    `json:"process_template"`
	WidthPercent    float64 `json:"template_width_percent"`
	HeightPercent   float64 `json:"template_height_percent"`
	OpacityPercent  float64 `json:"opacity_percent"`
}

// Collage controls grid assembly of multiple finished images.
type Collage struct {
	ForcedCols            int       `json:"forced_cols"`
	ForcedRows            int       `json:"forced_rows"`
	EnableSpacing         bool      `json:"enable_spacing"`
	SpacingPercent        float64   `json:"spacing_percent"`
	EnableOuterMargins    bool      `json:"enable_outer_margins"`
	OuterMarginsPercent   float64   `json:"outer_margins_percent"`
	ProportionalPlacement bool      `json:"proportional_placement"`
	PlacementRatios       []float64 `json:"placement_ratios"`
	ForceAspectRatio      []int     `json:"force_collage_aspect_ratio"`
	EnableMaxDimensions   bool      `json:"enable_max_dimensions"`
	MaxWidth              int       `json:"max_width"`
	MaxHeight             int       `json:"max_height"`
	ExactWidth            int       `json:"exact_width"`
	ExactHeight           int       `json:"exact_height"`
	OutputFormat          string    `json:"output_format"`
	JPEGQuality           int       `json:"jpeg_quality"`
	JPEGBackgroundColor   string    `json:"jpg_background_color"`
	WebPQuality           int       `json:"webp_quality"`
	WebPLossless          bool      `json:"webp_lossless"`
}

// Individual controls standalone outputs.
type Individual struct {
	EnableRename          bool   `json:"enable_rename"`
	ArticleName           string `json:"article_name"`
	ForceAspectRatio      []int  `json:"force_aspect_ratio"`
	EnableMaxDimensions   bool   `json:"enable_max_dimensions"`
	MaxWidth              int    `json:"max_width"`
	MaxHeight             int    `json:"max_height"`
	EnableExactDimensions bool   `json:"enable_exact_dimensions"`
	ExactWidth            int    `json:"exact_width"`
	ExactHeight           int    `json:"exact_height"`
	OutputFormat          string `json:"output_format"`
	JPEGQuality           int    `json:"jpeg_quality"`
	JPEGBackgroundColor   string `json:"jpg_background_color"`
}

// Load reads configuration from disk, falling back to sensible defaults.
func Load() (*Config, error) {
	cfg := Default()

	configPath := os.Getenv("PHOTOFINISH_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	expanded, err := expandUser(configPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Paths: Paths{
			DefaultInput:  ".",
			DefaultOutput: "./output",
			DatabasePath:  filepath.Join(os.TempDir(), "photofinish.db"),
		},
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: true,
			LogDir:     "./logs",
			MaxSize:    100, // 100MB
			MaxBackups: 5,
			MaxAge:     30, // 30 days
		},
		Performance: Performance{
			MaxWorkers: 0,
			QueueSize:  64,
		},
		Whitening: Whitening{
			Enabled:         false,
			CancelThreshold: 765,
		},
		Background: BackgroundCrop{
			Enabled:            true,
			RemovalMode:        "full",
			WhiteTolerance:     10,
			PerimeterTolerance: 10,
			EnableCrop:         true,
			CheckPerimeter:     true,
			PerimeterMode:      "if_white",
			TwoPhase:           true,
			ScaleFactor:        1.0,
			HaloReductionLevel: 0,
		},
		Padding: Padding{
			Mode:                    "never",
			Percent:                 5,
			AllowExpansion:          true,
			PerimeterCheckTolerance: 10,
		},
		Tone: Tone{
			Enabled:    false,
			Brightness: 1.0,
			Contrast:   1.0,
		},
		Merge: MergeSettings{
			Position:       "center",
			TemplateOnTop:  true,
			OpacityPercent: 100,
		},
		Collage: Collage{
			EnableSpacing:       true,
			SpacingPercent:      2,
			OutputFormat:        "png",
			JPEGQuality:         90,
			JPEGBackgroundColor: "#ffffff",
			WebPQuality:         90,
		},
		Individual: Individual{
			OutputFormat:        "png",
			JPEGQuality:         95,
			JPEGBackgroundColor: "#ffffff",
		},
	}
}

// Validate performs the type and range checks the core assumes have already
// happened. The first offending parameter is reported by name.
func (c *Config) Validate() error {
	checks := []struct {
		ok    bool
		param string
		val   any
	}{
		{c.Whitening.CancelThreshold >= 0 && c.Whitening.CancelThreshold <= 765, "whitening_cancel_threshold", c.Whitening.CancelThreshold},
		{c.Background.WhiteTolerance >= 0 && c.Background.WhiteTolerance <= 255, "white_tolerance", c.Background.WhiteTolerance},
		{c.Background.PerimeterTolerance >= 0 && c.Background.PerimeterTolerance <= 765, "perimeter_tolerance", c.Background.PerimeterTolerance},
		{c.Background.RemovalMode == "full" || c.Background.RemovalMode == "edges", "removal_mode", c.Background.RemovalMode},
		{c.Background.ExtraCropPercent >= 0 && c.Background.ExtraCropPercent <= 50, "extra_crop_percent", c.Background.ExtraCropPercent},
		{validPerimeterMode(c.Background.PerimeterMode), "perimeter_mode", c.Background.PerimeterMode},
		{c.Background.ScaleFactor > 0 && c.Background.ScaleFactor <= 1.0, "scale_factor", c.Background.ScaleFactor},
		{c.Background.HaloReductionLevel >= 0 && c.Background.HaloReductionLevel <= 5, "halo_reduction_level", c.Background.HaloReductionLevel},
		{validPadMode(c.Padding.Mode), "padding.mode", c.Padding.Mode},
		{c.Padding.Percent >= -50 && c.Padding.Percent <= 100, "padding_percent", c.Padding.Percent},
		{c.Padding.PerimeterCheckTolerance >= 0 && c.Padding.PerimeterCheckTolerance <= 255, "perimeter_check_tolerance", c.Padding.PerimeterCheckTolerance},
		{c.Tone.Brightness >= 0 && c.Tone.Brightness <= 3, "brightness", c.Tone.Brightness},
		{c.Tone.Contrast >= 0 && c.Tone.Contrast <= 3, "contrast", c.Tone.Contrast},
		{c.Merge.OpacityPercent >= 0 && c.Merge.OpacityPercent <= 100, "opacity_percent", c.Merge.OpacityPercent},
		{c.Collage.SpacingPercent >= 0 && c.Collage.SpacingPercent <= 100, "spacing_percent", c.Collage.SpacingPercent},
		{c.Collage.OuterMarginsPercent >= 0 && c.Collage.OuterMarginsPercent <= 100, "outer_margins_percent", c.Collage.OuterMarginsPercent},
		{c.Collage.JPEGQuality >= 1 && c.Collage.JPEGQuality <= 100, "collage.jpeg_quality", c.Collage.JPEGQuality},
		{c.Collage.WebPQuality >= 1 && c.Collage.WebPQuality <= 100, "webp_quality", c.Collage.WebPQuality},
		{c.Individual.JPEGQuality >= 1 && c.Individual.JPEGQuality <= 100, "individual_mode.jpeg_quality", c.Individual.JPEGQuality},
		{c.Performance.MaxWorkers >= 0, "max_workers", c.Performance.MaxWorkers},
		{len(c.Collage.ForceAspectRatio) == 0 || validAspect(c.Collage.ForceAspectRatio), "force_collage_aspect_ratio", c.Collage.ForceAspectRatio},
		{len(c.Individual.ForceAspectRatio) == 0 || validAspect(c.Individual.ForceAspectRatio), "force_aspect_ratio", c.Individual.ForceAspectRatio},
	}
	for _, ch := range checks {
		if !ch.ok {
			return fmt.Errorf("invalid configuration: %s=%v", ch.param, ch.val)
		}
	}
	if _, err := ParseHexColor(c.Collage.JPEGBackgroundColor); err != nil {
		return fmt.Errorf("invalid configuration: jpg_background_color=%q", c.Collage.JPEGBackgroundColor)
	}
	if _, err := ParseHexColor(c.Individual.JPEGBackgroundColor); err != nil {
		return fmt.Errorf("invalid configuration: jpg_background_color=%q", c.Individual.JPEGBackgroundColor)
	}
	return nil
}

// ParseHexColor reads a "#rrggbb" string. Empty means white.
func ParseHexColor(s string) (color.NRGBA, error) {
	if s == "" {
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}, nil
	}
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return color.NRGBA{}, fmt.Errorf("expected #rrggbb, got %q", s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.NRGBA{}, fmt.Errorf("expected #rrggbb, got %q", s)
	}
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

func validPerimeterMode(m string) bool {
	return m == "always" || m == "if_white" || m == "if_not_white"
}

func validPadMode(m string) bool {
	return m == "never" || m == "always" || m == "if_white"
}

func validAspect(a []int) bool {
	return len(a) == 2 && a[0] > 0 && a[1] > 0
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
