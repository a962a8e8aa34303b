package media

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// FileSink writes artifacts into a directory.
type FileSink struct {
	Dir string
}

// Save implements ArtifactSink.
func (s FileSink) Save(a *Artifact) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create record dir: %w", err)
	}
	path := filepath.Join(s.Dir, a.Name)
	if err := os.WriteFile(path, a.Data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	log.Info().Str("module", "record").Str("path", path).Int("bytes", len(a.Data)).Msg("recording saved")
	return nil
}
