package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/image/draw"

	"tileworld/internal/render"
	"tileworld/internal/terrain"
	"tileworld/internal/world"
)

const overlayShade = 0.75

var (
	background   = color.NRGBA{R: 10, G: 10, B: 18, A: 255}
	unknownColor = color.NRGBA{R: 128, G: 128, B: 128, A: 255}
)

// Palette maps tile IDs to preview colors.
type Palette map[world.TileID]color.NRGBA

// PaletteFromCatalog resolves catalog colors. Tiles with a missing or
// malformed color render grey.
func PaletteFromCatalog(catalog *terrain.Catalog) Palette {
	p := make(Palette, catalog.Len())
	for _, meta := range catalog.Tiles() {
		if col, ok := parseHexColor(meta.Color); ok {
			p[meta.ID] = col
		}
	}
	return p
}

func (p Palette) lookup(id world.TileID) color.NRGBA {
	if col, ok := p[id]; ok {
		return col
	}
	return unknownColor
}

// Render draws a top-down map of the cells, north up, with each cell scale
// pixels wide. Overlay tiles are drawn as a shaded inset over the ground.
func Render(cells []render.Cell, bounds world.Bounds, palette Palette, scale int) *image.NRGBA {
	if scale <= 0 {
		scale = 1
	}
	base := image.NewNRGBA(image.Rect(0, 0, bounds.Width(), bounds.Height()))
	draw.Draw(base, base.Bounds(), &image.Uniform{background}, image.Point{}, draw.Src)
	for _, c := range cells {
		if c.Ground == world.NoTile {
			continue
		}
		x, y := pixel(c.Pos, bounds)
		base.SetNRGBA(x, y, palette.lookup(c.Ground))
	}

	img := image.NewNRGBA(image.Rect(0, 0, bounds.Width()*scale, bounds.Height()*scale))
	draw.NearestNeighbor.Scale(img, img.Bounds(), base, base.Bounds(), draw.Src, nil)

	inset := scale / 4
	for _, c := range cells {
		if c.Overlay == world.NoTile {
			continue
		}
		x, y := pixel(c.Pos, bounds)
		rect := image.Rect(x*scale+inset, y*scale+inset, (x+1)*scale-inset, (y+1)*scale-inset)
		shade := applyLighting(palette.lookup(c.Overlay), overlayShade)
		draw.Draw(img, rect, &image.Uniform{shade}, image.Point{}, draw.Src)
	}
	return img
}

func pixel(pos world.WorldCoord, bounds world.Bounds) (int, int) {
	return pos.X - bounds.Min.X, bounds.Max.Y - pos.Y
}

// FromRecorder renders whatever the recorder currently shows. ok is false
// when the recorder is empty.
func FromRecorder(rec *render.Recorder, palette Palette, scale int) (*image.NRGBA, world.Bounds, bool) {
	cells, bounds, ok := rec.Cells()
	if !ok {
		return nil, world.Bounds{}, false
	}
	return Render(cells, bounds, palette, scale), bounds, true
}

// Save writes img as a PNG, creating parent directories.
func Save(path string, img image.Image) error {
	if path == "" {
		return fmt.Errorf("preview path is empty")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create preview dir: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	return nil
}

func parseHexColor(value string) (color.NRGBA, bool) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(trimmed) == 3 {
		trimmed = string([]byte{
			trimmed[0], trimmed[0],
			trimmed[1], trimmed[1],
			trimmed[2], trimmed[2],
		})
	}
	if len(trimmed) != 6 {
		return color.NRGBA{}, false
	}
	r, ok := parseHexByte(trimmed[0:2])
	if !ok {
		return color.NRGBA{}, false
	}
	g, ok := parseHexByte(trimmed[2:4])
	if !ok {
		return color.NRGBA{}, false
	}
	b, ok := parseHexByte(trimmed[4:6])
	if !ok {
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: r, G: g, B: b, A: 255}, true
}

func parseHexByte(value string) (uint8, bool) {
	v, err := strconv.ParseUint(value, 16, 8)
	if err != nil {
		return 0, false
	}
	return uint8(v), true
}

func applyLighting(base color.NRGBA, factor float64) color.NRGBA {
	factor = math.Max(0, math.Min(1, factor))
	return color.NRGBA{
		R: uint8(math.Round(float64(base.R) * factor)),
		G: uint8(math.Round(float64(base.G) * factor)),
		B: uint8(math.Round(float64(base.B) * factor)),
		A: 255,
	}
}
