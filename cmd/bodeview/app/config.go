package app

import (
	"errors"
	"flag"
	"fmt"

	"github.com/roman-kulish/bodeplot/internal/plot"
)

type Config struct {
	DBPath     string
	SessionID  int64
	RunID      string
	CSVPath    string
	OutputFile string
	Title      string
	Width      int
	Height     int
	List       bool

	MinFrequency *float64
	MaxFrequency *float64
}

func NewConfigFromCLI(args []string) (*Config, error) {
	fs := flag.NewFlagSet("bodeview", flag.ContinueOnError)

	c := Config{}

	var minFreq, maxFreq float64
	fs.StringVar(&c.DBPath, "db", "", "Path to the database file")
	fs.Int64Var(&c.SessionID, "s", 0, "Session ID")
	fs.StringVar(&c.RunID, "run", "", "Run ID, instead of the session ID")
	fs.StringVar(&c.CSVPath, "csv", "", "Results CSV file, instead of the database")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output image (.png or .jpg)")
	fs.StringVar(&c.Title, "title", "", "Plot title")
	fs.IntVar(&c.Width, "width", 0, "Image width in pixels")
	fs.IntVar(&c.Height, "height", 0, "Image height in pixels")
	fs.BoolVar(&c.List, "list", false, "List the sessions stored in the database")
	fs.Float64Var(&minFreq, "min-freq", 0, "Minimum frequency to plot, Hz")
	fs.Float64Var(&maxFreq, "max-freq", 0, "Maximum frequency to plot, Hz")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "min-freq" {
			c.MinFrequency = &minFreq
		}
		if f.Name == "max-freq" {
			c.MaxFrequency = &maxFreq
		}
	})

	if err := c.Validate(); err != nil {
		fs.Usage()
		return nil, err
	}

	return &c, nil
}

func (c *Config) Validate() error {
	if c.List {
		if c.DBPath == "" {
			return errors.New("db path is required")
		}
		return nil
	}

	switch {
	case c.DBPath == "" && c.CSVPath == "":
		return errors.New("db path or csv file is required")
	case c.DBPath != "" && c.CSVPath != "":
		return errors.New("db path and csv file are mutually exclusive")
	case c.DBPath != "" && c.SessionID <= 0 && c.RunID == "":
		return errors.New("session id or run id is required")
	case c.OutputFile == "":
		return errors.New("output file is required")
	case c.Width < 0 || c.Height < 0:
		return fmt.Errorf("invalid image size: %dx%d", c.Width, c.Height)
	case c.MinFrequency != nil && c.MaxFrequency != nil && *c.MinFrequency > *c.MaxFrequency:
		return fmt.Errorf("invalid frequency range: %v > %v", *c.MinFrequency, *c.MaxFrequency)
	}

	_, err := plot.FormatFromPath(c.OutputFile)
	return err
}
