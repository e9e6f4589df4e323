package world

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"voxelstream/internal/generation"
	"voxelstream/internal/mesh"
	"voxelstream/internal/noise"
	"voxelstream/internal/terrain"
)

const (
	previewTileWidth    = 16
	previewTileHeight   = 8
	previewBlockHeight  = 8
	previewAmbientLight = 0.2
	previewLabelHeight  = 16
)

type voxelPreview struct {
	x, y, z int
	color   color.NRGBA
	screenX int
	screenY int
}

// SavePreview renders an isometric PNG of a chunk's voxel columns coloured by
// terrain type and returns the written path.
func SavePreview(key Key, grid noise.HeightGrid, vol terrain.Volume, table terrain.Table, outputDir string) (string, error) {
	if grid.Width <= 0 || grid.Depth <= 0 || vol.Height <= 0 {
		return "", fmt.Errorf("invalid chunk dimensions: %dx%dx%d", grid.Width, vol.Height, grid.Depth)
	}
	if err := ensurePreviewDir(outputDir); err != nil {
		return "", err
	}

	width := (grid.Width+grid.Depth)*previewTileWidth/2 + previewTileWidth
	height := (grid.Width+grid.Depth)*previewTileHeight/2 + vol.Height*previewBlockHeight + previewTileHeight + previewLabelHeight
	img := image.NewNRGBA(image.Rect(0, 0, width, height))

	background := color.NRGBA{R: 10, G: 10, B: 18, A: 255}
	draw.Draw(img, img.Bounds(), &image.Uniform{background}, image.Point{}, draw.Src)

	voxels := collectPreviewVoxels(grid, vol, table)
	sort.Slice(voxels, func(i, j int) bool {
		vi, vj := voxels[i], voxels[j]
		if vi.screenY == vj.screenY {
			if vi.screenX == vj.screenX {
				return vi.y < vj.y
			}
			return vi.screenX < vj.screenX
		}
		return vi.screenY < vj.screenY
	})

	offsetX := grid.Depth * previewTileWidth / 2
	offsetY := vol.Height*previewBlockHeight + previewLabelHeight
	for _, v := range voxels {
		renderVoxelPreview(img, offsetX+v.screenX, offsetY+v.screenY, v.color)
	}
	drawLabel(img, 4, 12, key.String())

	path := filepath.Join(outputDir, fmt.Sprintf("%s_%d_%d.png", key.Variant, key.Coord.X, key.Coord.Z))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create preview: %w", err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		return "", fmt.Errorf("encode preview: %w", err)
	}
	return path, nil
}

func collectPreviewVoxels(grid noise.HeightGrid, vol terrain.Volume, table terrain.Table) []voxelPreview {
	voxels := make([]voxelPreview, 0, grid.Width*grid.Depth*2)
	for z := 0; z < grid.Depth; z++ {
		for x := 0; x < grid.Width; x++ {
			h := mesh.ColumnHeight(grid.At(x, z), vol.Height)
			for y := 0; y < h; y++ {
				// Only voxels with an exposed top or an outer side can be seen.
				if y < h-1 && x > 0 && z > 0 && x < grid.Width-1 && z < grid.Depth-1 {
					continue
				}
				tt := table.Type(vol.At(x, y, z))
				voxels = append(voxels, voxelPreview{
					x:       x,
					y:       y,
					z:       z,
					color:   resolveTerrainColor(tt),
					screenX: (x - z) * previewTileWidth / 2,
					screenY: (x+z)*previewTileHeight/2 - y*previewBlockHeight,
				})
			}
		}
	}
	return voxels
}

func renderVoxelPreview(img *image.NRGBA, baseX, baseY int, base color.NRGBA) {
	topColor := applyLighting(base, previewAmbientLight+0.8)
	leftColor := applyLighting(base, previewAmbientLight+0.45)
	rightColor := applyLighting(base, previewAmbientLight+0.3)

	top := []image.Point{
		{X: baseX, Y: baseY - previewBlockHeight},
		{X: baseX + previewTileWidth/2, Y: baseY - previewBlockHeight + previewTileHeight/2},
		{X: baseX, Y: baseY - previewBlockHeight + previewTileHeight},
		{X: baseX - previewTileWidth/2, Y: baseY - previewBlockHeight + previewTileHeight/2},
	}
	left := []image.Point{
		{X: baseX - previewTileWidth/2, Y: baseY - previewBlockHeight + previewTileHeight/2},
		{X: baseX, Y: baseY - previewBlockHeight + previewTileHeight},
		{X: baseX, Y: baseY + previewTileHeight},
		{X: baseX - previewTileWidth/2, Y: baseY + previewTileHeight/2},
	}
	right := []image.Point{
		{X: baseX + previewTileWidth/2, Y: baseY - previewBlockHeight + previewTileHeight/2},
		{X: baseX, Y: baseY - previewBlockHeight + previewTileHeight},
		{X: baseX, Y: baseY + previewTileHeight},
		{X: baseX + previewTileWidth/2, Y: baseY + previewTileHeight/2},
	}

	fillPolygon(img, left, leftColor)
	fillPolygon(img, right, rightColor)
	fillPolygon(img, top, topColor)
}

func drawLabel(img *image.NRGBA, x, y int, text string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.NRGBA{R: 230, G: 230, B: 230, A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func resolveTerrainColor(tt terrain.TerrainType) color.NRGBA {
	col, ok := parseHexColor(tt.Color)
	if !ok {
		col = color.NRGBA{R: 128, G: 128, B: 128, A: 255}
	}
	col.A = uint8(math.Round(255 * clamp(1-tt.Transparency, 0, 1)))
	return col
}

func parseHexColor(value string) (color.NRGBA, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return color.NRGBA{}, false
	}
	trimmed = strings.TrimPrefix(trimmed, "#")
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
	if len(value) != 2 {
		return 0, false
	}
	v, err := strconv.ParseUint(value, 16, 8)
	if err != nil {
		return 0, false
	}
	return uint8(v), true
}

// applyLighting scales the colour channels and keeps alpha.
func applyLighting(base color.NRGBA, factor float64) color.NRGBA {
	factor = clamp(factor, 0, 1)
	r := uint8(math.Round(float64(base.R) * factor))
	g := uint8(math.Round(float64(base.G) * factor))
	b := uint8(math.Round(float64(base.B) * factor))
	return color.NRGBA{R: r, G: g, B: b, A: base.A}
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// fillPolygon scanline-fills pts, blending translucent colours over the
// existing pixels.
func fillPolygon(img *image.NRGBA, pts []image.Point, col color.NRGBA) {
	if len(pts) < 3 {
		return
	}
	minY := pts[0].Y
	maxY := pts[0].Y
	for _, p := range pts[1:] {
		minY = min(minY, p.Y)
		maxY = max(maxY, p.Y)
	}
	bounds := img.Bounds()
	minY = max(minY, bounds.Min.Y)
	maxY = min(maxY, bounds.Max.Y-1)

	alpha := uint32(col.A)
	tmp := make([]int, 0, len(pts))
	for y := minY; y <= maxY; y++ {
		tmp = tmp[:0]
		for i := range pts {
			j := (i + 1) % len(pts)
			x1, y1 := pts[i].X, pts[i].Y
			x2, y2 := pts[j].X, pts[j].Y
			if y1 == y2 {
				continue
			}
			if y < min(y1, y2) || y >= max(y1, y2) {
				continue
			}
			tmp = append(tmp, x1+(y-y1)*(x2-x1)/(y2-y1))
		}
		if len(tmp) < 2 {
			continue
		}
		sort.Ints(tmp)
		for i := 0; i+1 < len(tmp); i += 2 {
			xStart, xEnd := tmp[i], tmp[i+1]
			if xStart > xEnd {
				xStart, xEnd = xEnd, xStart
			}
			if xEnd < bounds.Min.X || xStart >= bounds.Max.X {
				continue
			}
			xStart = max(xStart, bounds.Min.X)
			xEnd = min(xEnd, bounds.Max.X-1)
			for x := xStart; x <= xEnd; x++ {
				idx := (y-bounds.Min.Y)*img.Stride + (x-bounds.Min.X)*4
				px := img.Pix[idx : idx+4 : idx+4]
				px[0] = blend(px[0], col.R, alpha)
				px[1] = blend(px[1], col.G, alpha)
				px[2] = blend(px[2], col.B, alpha)
				px[3] = 255
			}
		}
	}
}

func blend(dst, src uint8, alpha uint32) uint8 {
	return uint8((uint32(src)*alpha + uint32(dst)*(255-alpha)) / 255)
}

func ensurePreviewDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("output directory is empty")
	}
	return os.MkdirAll(dir, 0o755)
}

// PreviewWriter renders a PNG for every ground chunk whose first data
// generation is applied. Rendering happens off the tick goroutine.
type PreviewWriter struct {
	dir    string
	table  terrain.Table
	logger *log.Logger
	wg     sync.WaitGroup
}

func NewPreviewWriter(dir string, table terrain.Table, logger *log.Logger) *PreviewWriter {
	if logger == nil {
		logger = log.Default()
	}
	return &PreviewWriter{dir: dir, table: table, logger: logger}
}

func (p *PreviewWriter) RecordCompletion(res generation.Result) {
	if res.Kind != generation.KindData || res.Key.Variant != terrain.Ground || res.Generation != 1 {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if _, err := SavePreview(res.Key, res.Grid, res.Volume, p.table, p.dir); err != nil {
			p.logger.Printf("chunk %v preview: %v", res.Key, err)
		}
	}()
}

// Wait blocks until pending previews are written.
func (p *PreviewWriter) Wait() {
	p.wg.Wait()
}
