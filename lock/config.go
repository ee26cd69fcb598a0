package lock

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-dal/dberrors"
)

// Config holds the loose mode wait bounds.
type Config struct {
	// LooseTimeout is how long Loose keeps trying before giving up.
	LooseTimeout time.Duration `yaml:"loose_timeout"`

	// PollInterval is the pause between two Loose attempts.
	PollInterval time.Duration `yaml:"poll_interval"`
}

func DefaultConfig() Config {
	return Config{
		LooseTimeout: 5 * time.Second,
		PollInterval: 100 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.LooseTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.PollInterval, validation.Required, validation.Min(time.Millisecond)),
	)
	if err == nil {
		return nil
	}
	e := goerrors.FromOzzoValidation(err, "invalid lock configuration")
	e.Category = dberrors.CategoryConfiguration
	e.TextCode = dberrors.CodeInvalidConfig
	return e
}
