package terrain

import (
	"fmt"
	"math"

	"tileworld/internal/config"
	"tileworld/internal/world"
)

// Band assigns Tile to noise values below Upper. The last band of a table
// uses math.Inf(1).
type Band struct {
	Upper float64
	Tile  world.TileID
}

// Classifier maps noise values to tile types through an ordered band table.
type Classifier struct {
	bands []Band
}

// NewClassifier validates that bounds strictly increase and that the final
// band is open ended, so every value in [0, 1) lands in exactly one band.
func NewClassifier(bands []Band) (*Classifier, error) {
	if len(bands) == 0 {
		return nil, &config.ConfigurationError{Field: "bands", Message: "must contain at least 1 entries"}
	}
	last := len(bands) - 1
	for i, band := range bands {
		field := fmt.Sprintf("bands[%d].upper", i)
		if i == last {
			if !math.IsInf(band.Upper, 1) {
				return nil, &config.ConfigurationError{Field: field, Message: "must be unbounded on the last band"}
			}
			break
		}
		if band.Upper <= 0 || band.Upper > 1 || math.IsNaN(band.Upper) {
			return nil, &config.ConfigurationError{Field: field, Message: "must be within (0, 1]"}
		}
		if i > 0 && band.Upper <= bands[i-1].Upper {
			return nil, &config.ConfigurationError{Field: field, Message: fmt.Sprintf("must be greater than bands[%d].upper", i-1)}
		}
	}
	dup := make([]Band, len(bands))
	copy(dup, bands)
	return &Classifier{bands: dup}, nil
}

// ClassifierFromConfig resolves band tile names against the catalog.
func ClassifierFromConfig(bands []config.BandConfig, catalog *Catalog) (*Classifier, error) {
	resolved := make([]Band, len(bands))
	for i, band := range bands {
		id, ok := catalog.Lookup(band.Tile)
		if !ok {
			return nil, &config.ConfigurationError{Field: fmt.Sprintf("bands[%d].tile", i), Message: fmt.Sprintf("references undefined tile %q", band.Tile)}
		}
		upper := math.Inf(1)
		if band.Upper != nil {
			upper = *band.Upper
		}
		resolved[i] = Band{Upper: upper, Tile: id}
	}
	return NewClassifier(resolved)
}

// Classify returns the tile of the first band whose upper bound exceeds value.
func (c *Classifier) Classify(value float64) world.TileID {
	for _, band := range c.bands {
		if value < band.Upper {
			return band.Tile
		}
	}
	return c.bands[len(c.bands)-1].Tile
}

// Bands returns a copy of the table.
func (c *Classifier) Bands() []Band {
	out := make([]Band, len(c.bands))
	copy(out, c.bands)
	return out
}
