package catalog

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/hmdyt/melodio/internal/infra/config"
)

// pipedSettings are the settings accepted by the "piped" source type.
type pipedSettings struct {
	BaseURL   string `mapstructure:"base_url" default:"https://pipedapi.kavin.rocks" validate:"required,url"`
	Region    string `mapstructure:"region" default:"US" validate:"len=2"`
	TimeoutMs int    `mapstructure:"timeout_ms" default:"10000" validate:"gte=1000,lte=60000"`
}

// NewFromConfig creates a catalog client from the typed settings block.
func NewFromConfig(cfg config.CatalogConfig) (*Client, error) {
	switch cfg.Type {
	case "piped", "":
		var settings pipedSettings
		if err := mapstructure.Decode(cfg.Settings, &settings); err != nil {
			return nil, errors.Wrap(err, "failed to decode catalog settings")
		}
		if err := defaults.Set(&settings); err != nil {
			return nil, errors.Wrap(err, "failed to set catalog defaults")
		}
		if err := validator.New().Struct(settings); err != nil {
			return nil, errors.Wrap(err, "invalid catalog settings")
		}
		zlog.Info().Str("base_url", settings.BaseURL).Str("region", settings.Region).Msg("using piped catalog source")
		return New(Config{
			BaseURL: settings.BaseURL,
			Region:  settings.Region,
			Timeout: time.Duration(settings.TimeoutMs) * time.Millisecond,
		})

	default:
		return nil, errors.Newf("unsupported catalog source type: %s", cfg.Type)
	}
}
