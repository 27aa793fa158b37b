package extractor

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// fetch returns a local path to the model at rawURL, downloading and
// unpacking it into cacheDir when needed.
func fetch(ctx context.Context, rawURL, cacheDir string) (string, error) {
	if rawURL == "" {
		return "", errors.New("no model URL configured")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse model URL: %w", err)
	}

	var local string
	switch u.Scheme {
	case "http", "https":
		if err := os.MkdirAll(cacheDir, 0755); err != nil {
			return "", fmt.Errorf("create cache dir: %w", err)
		}
		local = filepath.Join(cacheDir, path.Base(u.Path))
		if _, err := os.Stat(local); err != nil {
			if err := download(ctx, rawURL, local); err != nil {
				return "", err
			}
		}
	case "file":
		local = u.Path
	default:
		local = rawURL
	}

	if isArchive(local) {
		return unpack(local, cacheDir)
	}

	if _, err := os.Stat(local); err != nil {
		return "", err
	}
	return local, nil
}

func download(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download model: unexpected status %s", resp.Status)
	}

	// Write to a temporary file first so an interrupted download is never
	// mistaken for a cached model.
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("download model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), dest)
}

func isArchive(name string) bool {
	return strings.HasSuffix(name, ".tgz") || strings.HasSuffix(name, ".tar.gz")
}

// unpack extracts the frozen graph from a model archive and returns its path.
func unpack(archive, cacheDir string) (string, error) {
	f, err := os.Open(archive)
	if err != nil {
		return "", err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(hdr.Name, "_frozen.pb") {
			continue
		}

		if err := os.MkdirAll(cacheDir, 0755); err != nil {
			return "", err
		}
		dest := filepath.Join(cacheDir, path.Base(hdr.Name))
		if _, err := os.Stat(dest); err == nil {
			return dest, nil
		}

		out, err := os.Create(dest)
		if err != nil {
			return "", err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			os.Remove(dest)
			return "", fmt.Errorf("extract %s: %w", hdr.Name, err)
		}
		if err := out.Close(); err != nil {
			return "", err
		}
		return dest, nil
	}

	return "", fmt.Errorf("no frozen graph in %s", filepath.Base(archive))
}
