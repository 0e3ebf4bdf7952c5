package transfer

import (
	"time"

	"github.com/google/uuid"
	"github.com/jaywantadh/pullsrc/pkg/logging"
	"github.com/sirupsen/logrus"
)

// DefaultReadTimeout bounds a single resource read.
const DefaultReadTimeout = 30 * time.Second

// Config holds per-transfer settings.
type Config struct {
	TransferID  string
	ReadTimeout time.Duration
	Logger      *logrus.Entry
}

// OptionFunc modifies a Config.
type OptionFunc func(*Config)

// NewConfig creates a Config with default values, applying any provided option functions.
func NewConfig(options ...OptionFunc) Config {
	c := Config{
		ReadTimeout: DefaultReadTimeout,
	}
	for _, option := range options {
		option(&c)
	}
	if c.TransferID == "" {
		c.TransferID = uuid.New().String()
	}
	if c.Logger == nil {
		c.Logger = logging.Entry()
	}
	c.Logger = c.Logger.WithField("transfer_id", c.TransferID)
	return c
}

// WithTransferID sets the id used in logs and history.
func WithTransferID(id string) OptionFunc {
	return func(c *Config) {
		c.TransferID = id
	}
}

// WithReadTimeout bounds each resource read. Zero disables the bound.
func WithReadTimeout(timeout time.Duration) OptionFunc {
	return func(c *Config) {
		c.ReadTimeout = timeout
	}
}

// WithLogger sets the base log entry.
func WithLogger(logger *logrus.Entry) OptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}
