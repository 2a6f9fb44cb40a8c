package config

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

// Defaults
const (
	DefaultPort      = 3000
	DefaultLogLevel  = "info"
	DefaultLogFormat = FormatConsole
)

// Log formats
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config holds everything the relay needs at startup
type Config struct {
	Host       string
	Port       int
	LogLevel   string
	LogFormat  string
	StrictHost bool
	Ngrok      Ngrok
}

// Ngrok configures the optional public tunnel
type Ngrok struct {
	Enabled   bool
	AuthToken string
	Domain    string
}

// Addr returns the listen address
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// BaseURL returns the URL local clients use to reach the HTTP API
func (c Config) BaseURL() string {
	host := c.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// Validate checks values the flag parser cannot
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	switch c.LogFormat {
	case FormatConsole, FormatJSON:
	default:
		return fmt.Errorf("invalid log format %q, expected %s or %s", c.LogFormat, FormatConsole, FormatJSON)
	}
	return nil
}

// Flags returns the command line flags, each with its environment source.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Usage:   "HTTP server port",
			Value:   DefaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:    "host",
			Usage:   "HTTP server host, empty for all interfaces",
			Sources: cli.EnvVars("HOST"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "trace, debug, info, warn or error",
			Value:   DefaultLogLevel,
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "console or json",
			Value:   DefaultLogFormat,
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
		&cli.BoolFlag{
			Name:    "strict-host",
			Usage:   "only relay start-game, update-panel and choice from the room host",
			Sources: cli.EnvVars("STRICT_HOST"),
		},
		&cli.BoolFlag{
			Name:    "ngrok",
			Usage:   "Enable ngrok tunnel",
			Sources: cli.EnvVars("NGROK_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "ngrok-auth",
			Usage:   "Ngrok auth token",
			Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "ngrok-domain",
			Usage:   "Custom ngrok domain (optional)",
			Sources: cli.EnvVars("NGROK_DOMAIN"),
		},
	}
}

// FromCommand reads the flags declared by Flags
func FromCommand(cmd *cli.Command) Config {
	return Config{
		Host:       cmd.String("host"),
		Port:       int(cmd.Int("port")),
		LogLevel:   cmd.String("log-level"),
		LogFormat:  cmd.String("log-format"),
		StrictHost: cmd.Bool("strict-host"),
		Ngrok: Ngrok{
			Enabled:   cmd.Bool("ngrok"),
			AuthToken: cmd.String("ngrok-auth"),
			Domain:    cmd.String("ngrok-domain"),
		},
	}
}

// NewLogger builds a zerolog logger writing to w
func NewLogger(level, format string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var out io.Writer
	switch format {
	case FormatConsole:
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case FormatJSON:
		out = w
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", format)
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}
