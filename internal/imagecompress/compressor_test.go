package imagecompress

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pmeyes/internal/config"
	ferrors "git.home.luguber.info/inful/pmeyes/internal/foundation/errors"
	"git.home.luguber.info/inful/pmeyes/internal/metrics"
)

type fixture struct {
	cfg *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Assets.Dir = filepath.Join(dir, "data", "assets")
	cfg.Output.ArticlesDir = filepath.Join(dir, "data", "articles-json")
	cfg.Output.IndexFile = filepath.Join(dir, "data", "articles.json")
	return &fixture{cfg: cfg}
}

func (f *fixture) writeAsset(t *testing.T, rel string, data []byte) string {
	t.Helper()
	p := filepath.Join(f.cfg.Assets.Dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func (f *fixture) writeDoc(t *testing.T, name string, doc map[string]any) string {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	p := filepath.Join(f.cfg.Output.ArticlesDir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func noisePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	r := rand.New(rand.NewPCG(1, 2))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(r.IntN(256)), uint8(r.IntN(256)), uint8(r.IntN(256)), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func fake(name string, f Format, size int) Strategy {
	return Strategy{Name: name, Format: f, Encode: func(image.Image) ([]byte, error) {
		return bytes.Repeat([]byte{'x'}, size), nil
	}}
}

func TestRun_NoiseImageMeetsBudgetOrIsSmallest(t *testing.T) {
	f := newFixture(t)
	data := noisePNG(t, 128, 128)
	require.Greater(t, len(data), 40*1024)
	f.writeAsset(t, "pm/noise.png", data)
	doc := f.writeDoc(t, "a.json", map[string]any{"content": "![n](/data/assets/pm/noise.png)"})

	rep, err := New(f.cfg).Run(t.Context())
	require.NoError(t, err)
	require.Len(t, rep.Images, 1)
	out := rep.Images[0]
	require.NotEqual(t, metrics.ImageFailed, out.Result, "%v", out.Err)
	require.NotEmpty(t, out.Attempts)

	smallest := out.Attempts[0].Size
	for _, a := range out.Attempts {
		smallest = min(smallest, a.Size)
	}
	switch out.Result {
	case metrics.ImageKept:
		assert.GreaterOrEqual(t, int64(smallest), out.Before)
	default:
		assert.True(t, out.After <= f.cfg.Images.MaxBytes || out.After == int64(smallest),
			"after=%d smallest=%d", out.After, smallest)
	}

	if out.NewPath != out.Path {
		assert.NoFileExists(t, filepath.Join(f.cfg.Assets.Dir, "pm", "noise.png"))
		assert.FileExists(t, filepath.Join(f.cfg.Assets.Dir, filepath.FromSlash(out.NewPath)))
		content, err := os.ReadFile(doc)
		require.NoError(t, err)
		assert.NotContains(t, string(content), "/data/assets/pm/noise.png")
	}
}

func TestRun_AlreadySmall(t *testing.T) {
	f := newFixture(t)
	data := noisePNG(t, 4, 4)
	p := f.writeAsset(t, "tiny.png", data)

	rep, err := New(f.cfg).Run(t.Context())
	require.NoError(t, err)
	require.Len(t, rep.Images, 1)
	assert.Equal(t, metrics.ImageAlreadySmall, rep.Images[0].Result)

	after, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, data, after)
}

func TestRun_FormatChangeRenamesAndRewritesReferences(t *testing.T) {
	f := newFixture(t)
	f.cfg.Images.MaxBytes = 1000
	f.writeAsset(t, "项目/图 1.png", noisePNG(t, 64, 64))
	f.writeAsset(t, "项目/图 1.png.bak.png", bytes.Repeat([]byte{'y'}, 10))
	oldURL := "/data/assets/%E9%A1%B9%E7%9B%AE/%E5%9B%BE%201.png"
	newURL := "/data/assets/%E9%A1%B9%E7%9B%AE/%E5%9B%BE%201.webp"
	doc := f.writeDoc(t, "a.json", map[string]any{"content": "![x](" + oldURL + ") ![y](" + oldURL + "x)"})
	other := f.writeDoc(t, "b.json", map[string]any{"content": "unrelated"})
	require.NoError(t, os.WriteFile(f.cfg.Output.IndexFile, []byte(`{"cover":"`+oldURL+`"}`), 0o644))
	otherBefore, err := os.ReadFile(other)
	require.NoError(t, err)

	c := New(f.cfg)
	c.strategies = func(Format) []Strategy {
		return []Strategy{fake("png", FormatPNG, 5000), fake("webp", FormatWebP, 800), fake("jpeg", FormatJPEG, 700)}
	}
	rep, err := c.Run(t.Context())
	require.NoError(t, err)

	var out Outcome
	for _, o := range rep.Images {
		if o.Path == "项目/图 1.png" {
			out = o
		}
	}
	assert.Equal(t, metrics.ImageRenamed, out.Result)
	assert.Equal(t, "项目/图 1.webp", out.NewPath)
	assert.Equal(t, int64(800), out.After)
	assert.Equal(t, 1, rep.Renamed)
	assert.Equal(t, 2, rep.Rewrites)

	assert.NoFileExists(t, filepath.Join(f.cfg.Assets.Dir, "项目", "图 1.png"))
	assert.FileExists(t, filepath.Join(f.cfg.Assets.Dir, "项目", "图 1.webp"))

	content, err := os.ReadFile(doc)
	require.NoError(t, err)
	assert.Contains(t, string(content), "!["+"x]("+newURL+")")
	assert.Contains(t, string(content), oldURL+"x)")
	index, err := os.ReadFile(f.cfg.Output.IndexFile)
	require.NoError(t, err)
	assert.JSONEq(t, `{"cover":"`+newURL+`"}`, string(index))
	otherAfter, err := os.ReadFile(other)
	require.NoError(t, err)
	assert.Equal(t, otherBefore, otherAfter)
}

func TestRun_SmallestWhenNothingMeetsBudget(t *testing.T) {
	f := newFixture(t)
	f.cfg.Images.MaxBytes = 100
	original := noisePNG(t, 64, 64)
	f.writeAsset(t, "a.png", original)

	c := New(f.cfg)
	c.strategies = func(Format) []Strategy {
		return []Strategy{fake("png-a", FormatPNG, 3000), fake("png-b", FormatPNG, 2000), fake("png-c", FormatPNG, 2500)}
	}
	rep, err := c.Run(t.Context())
	require.NoError(t, err)
	out := rep.Images[0]
	assert.Equal(t, metrics.ImageCompressed, out.Result)
	assert.Equal(t, int64(2000), out.After)
	assert.Len(t, out.Attempts, 3)
	assert.Equal(t, int64(len(original))-2000, rep.Saved)
}

func TestRun_KeepsOriginalWhenNothingSmaller(t *testing.T) {
	f := newFixture(t)
	f.cfg.Images.MaxBytes = 100
	original := noisePNG(t, 32, 32)
	p := f.writeAsset(t, "a.png", original)

	c := New(f.cfg)
	c.strategies = func(Format) []Strategy {
		return []Strategy{fake("big", FormatWebP, len(original)+10)}
	}
	rep, err := c.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, metrics.ImageKept, rep.Images[0].Result)
	after, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, original, after)
}

func TestRun_FailuresAreNonFatal(t *testing.T) {
	f := newFixture(t)
	f.cfg.Images.MaxBytes = 10
	broken := f.writeAsset(t, "broken.png", bytes.Repeat([]byte{'z'}, 100))
	f.writeAsset(t, "ok.png", noisePNG(t, 16, 16))

	c := New(f.cfg)
	c.strategies = func(Format) []Strategy {
		return []Strategy{{Name: "err", Format: FormatPNG, Encode: func(image.Image) ([]byte, error) {
			return nil, errors.New("encoder unavailable")
		}}}
	}
	rep, err := c.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Failed)
	for _, o := range rep.Images {
		assert.Equal(t, metrics.ImageFailed, o.Result)
	}
	assert.ErrorIs(t, rep.Images[1].Err, ErrNoEncoding)
	assert.True(t, ferrors.HasCategory(rep.Images[1].Err, ferrors.CategoryImage))
	assert.FileExists(t, broken)
}

func TestRun_MissingAssetRoot(t *testing.T) {
	f := newFixture(t)
	rep, err := New(f.cfg).Run(t.Context())
	require.NoError(t, err)
	assert.Empty(t, rep.Images)
}

func TestRun_SkipsCrossFormatWhenTargetExists(t *testing.T) {
	f := newFixture(t)
	f.cfg.Images.MaxBytes = 1000
	f.writeAsset(t, "a.png", noisePNG(t, 32, 32))
	taken := f.writeAsset(t, "a.webp", []byte("other asset"))

	c := New(f.cfg)
	c.strategies = func(Format) []Strategy {
		return []Strategy{fake("png", FormatPNG, 2000), fake("webp", FormatWebP, 10)}
	}
	rep, err := c.Run(t.Context())
	require.NoError(t, err)

	var out Outcome
	for _, o := range rep.Images {
		if o.Path == "a.png" {
			out = o
		}
	}
	assert.Equal(t, "a.png", out.NewPath)
	data, err := os.ReadFile(taken)
	require.NoError(t, err)
	assert.Equal(t, "other asset", string(data))
}

func TestReplaceURL(t *testing.T) {
	old, repl := "/data/assets/a.png", "/data/assets/a.webp"
	cases := []struct {
		in   string
		want string
		n    int
	}{
		{`![x](/data/assets/a.png)`, `![x](/data/assets/a.webp)`, 1},
		{`"/data/assets/a.png"`, `"/data/assets/a.webp"`, 1},
		{`/data/assets/a.png?v=1 /data/assets/a.png#f`, `/data/assets/a.webp?v=1 /data/assets/a.webp#f`, 2},
		{`/data/assets/a.png.bak`, `/data/assets/a.png.bak`, 0},
		{`/data/assets/a.pngx`, `/data/assets/a.pngx`, 0},
		{`/data/assets/a.png/x`, `/data/assets/a.png/x`, 0},
		{`/data/assets/a.png`, `/data/assets/a.webp`, 1},
		{`none`, `none`, 0},
	}
	for _, tc := range cases {
		got, n := ReplaceURL(tc.in, old, repl)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.n, n, tc.in)
	}
}

func TestFormatOf(t *testing.T) {
	for ext, want := range map[string]Format{".PNG": FormatPNG, ".jpg": FormatJPEG, ".jpeg": FormatJPEG, ".webp": FormatWebP} {
		got, ok := FormatOf(ext)
		assert.True(t, ok, ext)
		assert.Equal(t, want, got, ext)
	}
	_, ok := FormatOf(".gif")
	assert.False(t, ok)
	assert.Equal(t, ".jpg", FormatJPEG.Extension())
	assert.Equal(t, ".webp", FormatWebP.Extension())
}

func TestStrategiesRoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for _, src := range []Format{FormatPNG, FormatJPEG, FormatWebP} {
		for _, s := range Strategies(src) {
			data, err := s.Encode(img)
			require.NoError(t, err, s.Name)
			decoded, err := Decode(bytes.NewReader(data), s.Format)
			require.NoError(t, err, s.Name)
			assert.Equal(t, img.Bounds(), decoded.Bounds(), s.Name)
		}
	}
}

func TestStrategiesOrder(t *testing.T) {
	names := func(src Format) []string {
		var out []string
		for _, s := range Strategies(src) {
			out = append(out, s.Name)
		}
		return out
	}
	assert.Equal(t, []string{"png-best", "webp-q80", "jpeg-q85", "png-paletted"}, names(FormatPNG))
	assert.Equal(t, []string{"jpeg-q85", "jpeg-q75", "jpeg-q65", "jpeg-q55", "webp-q60"}, names(FormatJPEG))
	assert.Equal(t, []string{"webp-q80", "webp-q70", "webp-q60", "webp-q50", "jpeg-q55"}, names(FormatWebP))
}
