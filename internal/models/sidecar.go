package models

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/zeebo/xxh3"

	apperrors "github.com/transcendia/platform/internal/errors"
)

// SidecarSuffix is appended to a model path for its download record.
const SidecarSuffix = ".status.json"

// Sidecar records where a model came from and what it hashed to.
type Sidecar struct {
	URL          string    `json:"url"`
	SizeBytes    int64     `json:"size_bytes"`
	XXH3         string    `json:"xxh3"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

func writeSidecar(path string, s Sidecar) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path+SidecarSuffix, data, 0o644)
}

func readSidecar(path string) (Sidecar, error) {
	var s Sidecar
	data, err := os.ReadFile(path + SidecarSuffix)
	if err != nil {
		return s, err
	}
	err = json.Unmarshal(data, &s)
	return s, err
}

func formatSum(sum uint64) string { return fmt.Sprintf("%016x", sum) }

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := xxh3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return formatSum(h.Sum64()), n, nil
}

// Verify checks a model file against its sidecar. Files without a sidecar
// (placed by hand) are accepted.
func (p *Provisioner) Verify(name string) error {
	path := p.Path(name)
	want, err := readSidecar(path)
	if os.IsNotExist(err) {
		if _, statErr := os.Stat(path); statErr != nil {
			return apperrors.Wrapf(statErr, apperrors.DownloadFailed, "model %s missing", name)
		}
		return nil
	}
	if err != nil {
		return apperrors.Wrapf(err, apperrors.DownloadFailed, "read sidecar for %s", name)
	}
	sum, size, err := hashFile(path)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.DownloadFailed, "hash %s", name)
	}
	if sum != want.XXH3 || size != want.SizeBytes {
		return apperrors.Newf(apperrors.DownloadFailed, "model %s is corrupt", name).
			WithMetadata("want", want.XXH3).
			WithMetadata("got", sum)
	}
	return nil
}
