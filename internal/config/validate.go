package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ConfigurationError reports an invalid configuration value. It is fatal:
// a world never starts with a configuration that fails validation.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Field + " " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var (
	validateOnce sync.Once
	structs      *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		structs = validator.New(validator.WithRequiredStructEnabled())
		structs.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return structs
}

// Validate checks the configuration and returns the first problem found as a
// *ConfigurationError.
func (c *Config) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fieldError(fieldErrs[0])
		}
		return fmt.Errorf("validate config: %w", err)
	}

	if c.World.Seed > MaxSeed || c.World.Seed < -MaxSeed {
		return invalid("world.seed", "must be within [-%d, %d]", MaxSeed, MaxSeed)
	}

	names := make(map[string]int, len(c.Tiles))
	for i, tile := range c.Tiles {
		if prev, ok := names[tile.Name]; ok {
			return invalid(fmt.Sprintf("tiles[%d].name", i), "duplicates tiles[%d]", prev)
		}
		names[tile.Name] = i
	}
	for i, tile := range c.Tiles {
		if tile.Anchor && tile.Offset == nil {
			return invalid(fmt.Sprintf("tiles[%d].offset", i), "must be set for anchor tiles")
		}
		if tile.Companion != "" {
			if _, ok := names[tile.Companion]; !ok {
				return invalid(fmt.Sprintf("tiles[%d].companion", i), "references undefined tile %q", tile.Companion)
			}
		}
	}

	fallback, ok := names[c.World.FallbackTile]
	if !ok {
		return invalid("world.fallbackTile", "references undefined tile %q", c.World.FallbackTile)
	}
	if c.Tiles[fallback].Anchor {
		return invalid("world.fallbackTile", "cannot be an anchor tile")
	}

	if err := c.validateBands(names); err != nil {
		return err
	}

	if c.Streaming.UnloadDistance < float64(c.Streaming.LoadRadius) {
		return invalid("streaming.unloadDistance", "must be >= streaming.loadRadius")
	}
	if c.Observer.Mode == ObserverPatrol && len(c.Observer.Waypoints) == 0 {
		return invalid("observer.waypoints", "must be set for patrol mode")
	}
	if c.Network.Enabled && c.Network.MaxDatagramSizeBytes > 1<<16 {
		return invalid("network.maxDatagramSizeBytes", "must be <= 65536")
	}
	return nil
}

// validateBands rejects tables that leave gaps or overlaps: every band but
// the last needs an upper bound in (0, 1], bounds must strictly increase, and
// the last band is open ended.
func (c *Config) validateBands(names map[string]int) error {
	last := len(c.Bands) - 1
	prev := 0.0
	for i, band := range c.Bands {
		field := fmt.Sprintf("bands[%d]", i)
		if _, ok := names[band.Tile]; !ok {
			return invalid(field+".tile", "references undefined tile %q", band.Tile)
		}
		if i == last {
			if band.Upper != nil {
				return invalid(field+".upper", "must be omitted on the last band")
			}
			break
		}
		if band.Upper == nil {
			return invalid(field+".upper", "must be set")
		}
		upper := *band.Upper
		if upper <= 0 || upper > 1 {
			return invalid(field+".upper", "must be within (0, 1]")
		}
		if i > 0 && upper <= prev {
			return invalid(field+".upper", "must be greater than bands[%d].upper", i-1)
		}
		prev = upper
	}
	return nil
}

func fieldError(fe validator.FieldError) error {
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}
	switch fe.Tag() {
	case "required", "required_if":
		return invalid(field, "must be set")
	case "gt":
		if fe.Param() == "0" {
			return invalid(field, "must be positive")
		}
		return invalid(field, "must be greater than %s", fe.Param())
	case "gte":
		if fe.Param() == "0" {
			return invalid(field, "cannot be negative")
		}
		return invalid(field, "must be >= %s", fe.Param())
	case "min":
		return invalid(field, "must contain at least %s entries", fe.Param())
	case "oneof":
		return invalid(field, "must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "hexcolor":
		return invalid(field, "must be a hex color")
	default:
		return invalid(field, "failed %s validation", fe.Tag())
	}
}
