// Package config parses bsqparserd's CLI configuration, in the shape of
// kasparovd/config.Parse: a flags.Parser over a package-level Config with
// defaults set before parsing.
package config

import (
	"path/filepath"

	flags "github.com/jessevdk/go-flags"

	"github.com/Pranacoin/exchange/blockparser"
	"github.com/Pranacoin/exchange/internal/appdata"
)

const (
	logFilename    = "bsqparserd.log"
	errLogFilename = "bsqparserd_err.log"
)

var (
	defaultLogDir = appdata.Dir("bsqparserd")
	activeConfig  *Config
)

// Config defines the configuration options for bsqparserd.
type Config struct {
	GenesisBlockHeight      uint32 `long:"genesisheight" description:"Height at which the genesis tx is expected"`
	GenesisTxID             string `long:"genesistx" description:"Hex id of the genesis tx"`
	MaxIntraBlockRecursions uint32 `long:"maxrecursions" description:"Fixed-point depth cap"`
	WarnRecursionThreshold  uint32 `long:"warnrecursions" description:"Depth past which the fixed-point logs a warning"`
	DevMode                 bool   `long:"devmode" description:"Panic on invariant violations instead of logging and rejecting the block"`
	StartHeight             uint32 `long:"startheight" description:"Height to begin the catch-up sweep from"`
	DebugLevel              string `long:"debuglevel" description:"Logging level: trace, debug, info, warn, error, critical" default:"info"`
	LogDir                  string `long:"logdir" description:"Directory to write log files to"`
}

// ActiveConfig returns the parsed configuration.
func ActiveConfig() *Config {
	return activeConfig
}

// ParserConfig converts the parsed flags into a blockparser.Config.
func (cfg *Config) ParserConfig() blockparser.Config {
	pc := blockparser.DefaultConfig(cfg.GenesisBlockHeight, cfg.GenesisTxID)
	if cfg.MaxIntraBlockRecursions != 0 {
		pc.MaxIntraBlockRecursions = cfg.MaxIntraBlockRecursions
	}
	if cfg.WarnRecursionThreshold != 0 {
		pc.WarnRecursionThreshold = cfg.WarnRecursionThreshold
	}
	pc.DevMode = cfg.DevMode
	return pc
}

// LogFilePath and ErrLogFilePath resolve logFilename/errLogFilename
// against LogDir, mirroring kasparovd. bsqparserd rotates its combined
// log to LogFilePath; nothing in this module writes to ErrLogFilePath.
func (cfg *Config) LogFilePath() string {
	return filepath.Join(cfg.LogDir, logFilename)
}

func (cfg *Config) ErrLogFilePath() string {
	return filepath.Join(cfg.LogDir, errLogFilename)
}

// Parse parses the CLI arguments into the active configuration.
func Parse() (*Config, error) {
	activeConfig = &Config{
		MaxIntraBlockRecursions: blockparser.DefaultMaxIntraBlockRecursions,
		WarnRecursionThreshold:  blockparser.DefaultWarnRecursionThreshold,
		DebugLevel:              "info",
		LogDir:                  defaultLogDir,
	}
	parser := flags.NewParser(activeConfig, flags.PrintErrors|flags.HelpFlag)
	_, err := parser.Parse()
	if err != nil {
		return nil, err
	}
	return activeConfig, nil
}
