package world

import (
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"voxelstream/internal/generation"
	"voxelstream/internal/noise"
	"voxelstream/internal/terrain"
)

func previewTable() terrain.Table {
	return terrain.Table{
		{Name: "sand", Threshold: 0.5, Color: "#ff0000"},
		{Name: "rock", Threshold: 1, Color: "#00ff00"},
	}
}

func TestSavePreviewWritesPNG(t *testing.T) {
	dir := t.TempDir()
	spec := terrain.VariantSpec{Variant: terrain.Ground, VerticalExtent: 6}
	grid := noise.Generate(4, 4, 3, noise.Params{Scale: 5, Octaves: 2, Persistence: 0.5, Lacunarity: 2})
	vol := terrain.BuildVolume(spec, previewTable(), 4)

	path, err := SavePreview(groundKey(2, -1), grid, vol, previewTable(), dir)
	if err != nil {
		t.Fatalf("save preview: %v", err)
	}
	if filepath.Base(path) != "ground_2_-1.png" {
		t.Fatalf("expected ground_2_-1.png, got %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open preview: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		t.Fatalf("expected non-empty image, got %v", b)
	}

	coloured := false
	for y := b.Min.Y; y < b.Max.Y && !coloured; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, _, _ := img.At(x, y).RGBA()
			r, g = r>>8, g>>8
			if (r > 200 && g < 50) || (g > 200 && r < 50) {
				coloured = true
				break
			}
		}
	}
	if !coloured {
		t.Fatal("expected terrain colours in preview")
	}
}

func TestSavePreviewRejectsEmptyDir(t *testing.T) {
	grid := noise.HeightGrid{Width: 1, Depth: 1, Values: []float64{0.5}}
	vol := terrain.BuildVolume(terrain.VariantSpec{VerticalExtent: 4}, previewTable(), 1)
	if _, err := SavePreview(groundKey(0, 0), grid, vol, previewTable(), ""); err == nil {
		t.Fatal("expected error for empty output directory")
	}
}

func TestParseHexColor(t *testing.T) {
	col, ok := parseHexColor(" #1a2B3c ")
	if !ok || col.R != 0x1a || col.G != 0x2b || col.B != 0x3c || col.A != 255 {
		t.Fatalf("unexpected colour %+v ok=%v", col, ok)
	}
	for _, bad := range []string{"", "#12345", "zzzzzz"} {
		if _, ok := parseHexColor(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestPreviewWriterOnlyFirstGroundData(t *testing.T) {
	dir := t.TempDir()
	w := NewPreviewWriter(dir, previewTable(), log.New(io.Discard, "", 0))
	spec := terrain.VariantSpec{Variant: terrain.Ground, VerticalExtent: 4}
	grid := noise.HeightGrid{Width: 2, Depth: 2, Values: []float64{0, 0.3, 0.6, 1}}
	vol := terrain.BuildVolume(spec, previewTable(), 2)

	w.RecordCompletion(generation.Result{Kind: generation.KindData, Key: groundKey(0, 0), Generation: 1, Grid: grid, Volume: vol})
	w.RecordCompletion(generation.Result{Kind: generation.KindMesh, Key: groundKey(1, 0), Generation: 1, Grid: grid, Volume: vol})
	w.RecordCompletion(generation.Result{Kind: generation.KindData, Key: Key{Variant: terrain.Water}, Generation: 1, Grid: grid, Volume: vol})
	w.RecordCompletion(generation.Result{Kind: generation.KindData, Key: groundKey(2, 0), Generation: 3, Grid: grid, Volume: vol})
	w.Wait()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "ground_0_0.png" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected only ground_0_0.png, got %v", names)
	}
}
