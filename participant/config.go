package participant

import (
	"errors"
	"time"

	"github.com/0x6flab/namegenerator"
)

type Config struct {
	ID                string            `env:"ID"`
	Name              string            `env:"NAME"`
	DomainID          string            `env:"DOMAIN_ID"          envDefault:"flcoord"`
	ChannelID         string            `env:"CHANNEL_ID"         envDefault:"training"`
	HeartbeatInterval time.Duration     `env:"HEARTBEAT_INTERVAL" envDefault:"10s"`
	Properties        map[string]string `env:"PROPERTIES"`
}

// Validate fills in a generated name when none is set.
func (c *Config) Validate() error {
	var errs []error
	if c.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if c.DomainID == "" {
		errs = append(errs, errors.New("domain_id is required"))
	}
	if c.ChannelID == "" {
		errs = append(errs, errors.New("channel_id is required"))
	}
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("heartbeat_interval must be positive"))
	}
	if c.Name == "" {
		c.Name = namegenerator.NewGenerator().Generate()
	}

	return errors.Join(errs...)
}
