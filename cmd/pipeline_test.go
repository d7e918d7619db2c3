package cmd

import (
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kamusis/catsdogs/internal/config"
	"github.com/kamusis/catsdogs/internal/errs"
)

func writeSolidPNG(t *testing.T, path string, c color.RGBA) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 12, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

// run executes the root command with args and returns what it printed to stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	old := os.Stdout
	os.Stdout = w

	done := make(chan string)
	go func() {
		b, _ := io.ReadAll(r)
		done <- string(b)
	}()

	rootCmd.SetArgs(args)
	runErr := rootCmd.Execute()

	os.Stdout = old
	_ = w.Close()
	return <-done, runErr
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("catsdogs %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestPipeline(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GIT_SHA", "feedbeef")
	for i := 0; i < 6; i++ {
		d := uint8(i * 8)
		writeSolidPNG(t, filepath.Join("data", "raw", "cats", "c"+string(rune('0'+i))+".png"), color.RGBA{R: 230 - d, G: 20 + d, B: 10, A: 255})
		writeSolidPNG(t, filepath.Join("data", "raw", "dogs", "d"+string(rune('0'+i))+".png"), color.RGBA{R: 10, G: 20 + d, B: 230 - d, A: 255})
	}

	mustRun(t, "init")
	for _, p := range []string{config.DefaultPath, config.DotEnvFile, "artifacts", filepath.Join("data", "splits")} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("init did not create %s: %v", p, err)
		}
	}

	out := mustRun(t, "split", "--train", "0.5", "--val", "0.25", "--test", "0.25")
	if !strings.Contains(out, "[train] 6 samples (cat=3, dog=3)") {
		t.Fatalf("unexpected split output:\n%s", out)
	}

	mustRun(t, "train", "--epochs", "3", "--batch-size", "4", "--bins", "4", "--image-size", "16", "--augmentations", "0")
	bundlePath := filepath.Join("artifacts", "model", "model.bundle")
	for _, p := range []string{
		bundlePath,
		filepath.Join("artifacts", "figures", "training_curve.png"),
		filepath.Join("artifacts", "figures", "confusion_matrix_test.png"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("train did not write %s: %v", p, err)
		}
	}

	out = mustRun(t, "evaluate", "--split", "val")
	if !strings.Contains(out, "accuracy=") || !strings.Contains(out, "2 evaluated, 0 skipped") {
		t.Fatalf("unexpected evaluate output:\n%s", out)
	}

	out = mustRun(t, "predict", "--json", filepath.Join("data", "raw", "cats", "c0.png"))
	var pred struct {
		Path          string             `json:"path"`
		Label         string             `json:"label"`
		Probability   float64            `json:"probability"`
		Probabilities map[string]float64 `json:"probabilities"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &pred); err != nil {
		t.Fatalf("predict output is not JSON: %v\n%s", err, out)
	}
	if pred.Label != "cat" && pred.Label != "dog" {
		t.Fatalf("unexpected label %q", pred.Label)
	}
	if len(pred.Probabilities) != 2 {
		t.Fatalf("expected 2 probabilities, got %v", pred.Probabilities)
	}

	out = mustRun(t, "inspect")
	if !strings.Contains(out, "git_sha") || !strings.Contains(out, "feedbeef") {
		t.Fatalf("inspect does not show build info:\n%s", out)
	}
	out = mustRun(t, "inspect", "--splits")
	if !strings.Contains(out, "Seed:     1337") {
		t.Fatalf("unexpected inspect --splits output:\n%s", out)
	}

	mustRun(t, "doctor")

	_, err := run(t, "evaluate", "--split", "holdout")
	if !errors.Is(err, errs.ErrConfig) {
		t.Fatalf("expected config error for unknown split, got %v", err)
	}
}

func TestFindLeftovers(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Serve.ModelPath = filepath.Join(tmp, "model", "model.bundle")
	cfg.Train.ArtifactsDir = tmp

	for _, p := range []string{
		filepath.Join(tmp, "model", "model.bundle"),
		filepath.Join(tmp, "model", "model.bundle.bak"),
		filepath.Join(tmp, "model", ".model-123.tmp"),
	} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	for _, d := range []string{"train", ".train-4567", "val.bak"} {
		if err := os.MkdirAll(filepath.Join(tmp, "cache", d), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	got := findLeftovers(cfg)
	want := map[string]bool{}
	for _, p := range []string{
		filepath.Join(tmp, "model", ".model-123.tmp"),
		filepath.Join(tmp, "model", "model.bundle.bak"),
		filepath.Join(tmp, "cache", ".train-4567"),
		filepath.Join(tmp, "cache", "val.bak"),
	} {
		want[p] = true
	}
	if len(got) != len(want) {
		t.Fatalf("findLeftovers = %v, want %d entries", got, len(want))
	}
	for _, p := range got {
		if !want[p] {
			t.Fatalf("unexpected leftover %s", p)
		}
	}
}

func TestResolveGitSHA(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GIT_SHA", "")
	t.Setenv("GITHUB_SHA", "cafe")
	if got := resolveGitSHA(); got != "cafe" {
		t.Fatalf("resolveGitSHA = %q, want cafe", got)
	}
	t.Setenv("GIT_SHA", "beef")
	if got := resolveGitSHA(); got != "beef" {
		t.Fatalf("resolveGitSHA = %q, want beef", got)
	}
}
