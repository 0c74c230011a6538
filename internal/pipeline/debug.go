package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// dumpAudio writes the submitted recording under the dump dir when enabled.
func (r *Runner) dumpAudio(job Job) {
	if r.audioDumpDir == "" || job.Payload.Empty() {
		return
	}
	if err := os.MkdirAll(r.audioDumpDir, 0o700); err != nil {
		r.logger.Warn().Err(err).Msg("unable to create debug audio dir")
		return
	}

	name := fmt.Sprintf("answer-%02d-%d-%s.wav", job.Index, job.Token, time.Now().Format("20060102-150405.000"))
	path := filepath.Join(r.audioDumpDir, name)
	if err := os.WriteFile(path, job.Payload.Data, 0o600); err != nil {
		r.logger.Warn().Err(err).Str("path", path).Msg("unable to write debug audio dump")
	}
}
