package app

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/bodeplot/internal/bench/hantek"
	"github.com/roman-kulish/bodeplot/internal/bench/sim"
	"github.com/roman-kulish/bodeplot/internal/bench/tone"
	"github.com/roman-kulish/bodeplot/internal/plot"
	"github.com/roman-kulish/bodeplot/internal/sweep"
)

const (
	BenchSimulator BenchType = "simulator"
	BenchHantek    BenchType = "hantek"

	defaultFilename = "bodeplot.csv"
)

type BenchType string

// Config represents the main application configuration
type Config struct {
	Settings Settings      `yaml:"settings"`
	Sweep    sweep.Config  `yaml:"sweep"`
	Bench    BenchConfig   `yaml:"bench"`
	Output   OutputConfig  `yaml:"output"`
	Storage  StorageConfig `yaml:"storage"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// Level parses the configured log level, defaulting to info
func (s *Settings) Level() (slog.Level, error) {
	var level slog.Level
	if s.LogLevel == "" {
		return level, nil
	}
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return level, fmt.Errorf("invalid log level: %w", err)
	}
	return level, nil
}

// BenchConfig selects the instruments. The simulator drives both roles;
// the hantek bench pairs the Hantek digitizer with the SoX tone generator.
type BenchConfig struct {
	Type      BenchType      `yaml:"type"`
	Simulator *sim.Config    `yaml:"simulator"`
	Hantek    *hantek.Config `yaml:"hantek"`
	Tone      *tone.Config   `yaml:"tone"`
}

// OutputConfig represents result files
type OutputConfig struct {
	Filename string `yaml:"filename"` // Results CSV (default: bodeplot.csv)
	Plot     string `yaml:"plot"`     // Bode plot image, .png or .jpg (optional)
	Title    string `yaml:"title"`    // Plot title (optional)
	DumpDir  string `yaml:"dumpDir"`  // Per-step capture CSV directory (optional)
}

// StorageConfig represents storage settings
type StorageConfig struct {
	Database string `yaml:"database"` // SQLite database file (optional)
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // Node exporter textfile to write after the sweep (optional)
}

// NewConfig returns the configuration of the reference bench
func NewConfig() *Config {
	return &Config{
		Sweep: sweep.DefaultConfig(),
		Bench: BenchConfig{
			Type:   BenchHantek,
			Hantek: &hantek.Config{},
			Tone:   &tone.Config{},
		},
		Output: OutputConfig{
			Filename: defaultFilename,
		},
	}
}

// LoadConfig reads a YAML configuration file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	c := NewConfig()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}
	if err = yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	return c, nil
}

// NewConfigFromCLI loads the optional configuration file given by -c and
// applies the flags given explicitly on top of it
func NewConfigFromCLI(args []string) (*Config, error) {
	fs := flag.NewFlagSet("bodeplot", flag.ContinueOnError)

	var (
		configPath string
		fStart     float64
		fStop      float64
		fStep      float64
		filename   string
		port       string
		plotFile   string
		database   string
		simulate   bool
	)
	fs.StringVar(&configPath, "c", "", "Path to the configuration file")
	fs.Float64Var(&fStart, "fstart", sweep.DefaultStartFrequency, "Start frequency, Hz")
	fs.Float64Var(&fStop, "fstop", sweep.DefaultStopFrequency, "Stop frequency, Hz")
	fs.Float64Var(&fStep, "fstep", sweep.DefaultStepRatio, "Frequency step ratio")
	fs.StringVar(&filename, "filename", defaultFilename, "Output CSV file")
	fs.StringVar(&port, "port", "", "Sound device of the tone generator")
	fs.StringVar(&plotFile, "plot", "", "Output Bode plot image (.png or .jpg)")
	fs.StringVar(&database, "db", "", "SQLite database to store the session in")
	fs.BoolVar(&simulate, "sim", false, "Run against the simulated bench")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	c := NewConfig()
	if configPath != "" {
		var err error
		if c, err = LoadConfig(configPath); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "fstart":
			c.Sweep.StartFrequency = fStart
		case "fstop":
			c.Sweep.StopFrequency = fStop
		case "fstep":
			c.Sweep.StepRatio = fStep
		case "filename":
			c.Output.Filename = filename
		case "port":
			if c.Bench.Tone == nil {
				c.Bench.Tone = &tone.Config{}
			}
			c.Bench.Tone.Device = port
		case "plot":
			c.Output.Plot = plotFile
		case "db":
			c.Storage.Database = database
		case "sim":
			if simulate {
				c.Bench.Type = BenchSimulator
			}
		}
	})

	if err := c.Validate(); err != nil {
		fs.Usage()
		return nil, err
	}

	return c, nil
}

func (c *Config) Validate() error {
	if _, err := c.Settings.Level(); err != nil {
		return err
	}
	if err := c.Sweep.Validate(); err != nil {
		return err
	}
	if err := c.Bench.Validate(); err != nil {
		return err
	}
	if c.Output.Filename == "" {
		return errors.New("output filename is required")
	}
	if c.Output.Plot != "" {
		if _, err := plot.FormatFromPath(c.Output.Plot); err != nil {
			return err
		}
	}
	return nil
}

func (c *BenchConfig) Validate() error {
	switch c.Type {
	case BenchSimulator:
		if c.Simulator == nil {
			c.Simulator = &sim.Config{}
		}
		return c.Simulator.Validate()

	case BenchHantek:
		if c.Hantek == nil {
			c.Hantek = &hantek.Config{}
		}
		if c.Tone == nil {
			c.Tone = &tone.Config{}
		}
		if err := c.Hantek.Validate(); err != nil {
			return err
		}
		return c.Tone.Validate()

	default:
		return fmt.Errorf("unknown bench type: %q", c.Type)
	}
}
