package extractor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/testdata"
)

// TestNetExtractor_Pretrained downloads the real network, so it only runs
// when MUDRA_MODEL_TEST is set.
func TestNetExtractor_Pretrained(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping model download in short mode")
	}
	if os.Getenv("MUDRA_MODEL_TEST") == "" {
		t.Skip("MUDRA_MODEL_TEST not set")
	}

	e, err := Load(context.Background(), Config{
		URL:      config.DefaultModelURL,
		CacheDir: filepath.Join(os.TempDir(), "mudra-model-cache"),
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer e.Close()

	emb, err := e.Embed(frameFromMat(t, testdata.CenteredSquareFrame(255, 255, 255)))
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	// 7x7 spatial grid with 256 channels for the 0.25 width multiplier.
	if emb.Len() != 7*7*256 {
		t.Errorf("Len() = %d, want %d (shape %v)", emb.Len(), 7*7*256, emb.Shape())
	}
}
