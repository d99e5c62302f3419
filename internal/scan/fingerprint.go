package scan

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vodkeep/vodsync/internal/model"
)

// fingerprintChunk is how much of each end of the file is hashed.
const fingerprintChunk = 64 * 1024

// Fingerprint derives a stable content key from the file size plus the first
// and last 64 KiB. Hashing multi-gigabyte recordings in full would dominate
// the run; the sampled hash is collision-safe enough for a personal archive
// and survives renames and moves between runs.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "fingerprint: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return "", eris.Wrapf(err, "fingerprint: stat %s", path)
	}

	h := sha256.New()
	if err := binary.Write(h, binary.BigEndian, info.Size()); err != nil {
		return "", eris.Wrap(err, "fingerprint: hash size")
	}

	if _, err := io.CopyN(h, f, min(fingerprintChunk, info.Size())); err != nil {
		return "", eris.Wrapf(err, "fingerprint: read head of %s", path)
	}

	if info.Size() > fingerprintChunk {
		if _, err := f.Seek(-fingerprintChunk, io.SeekEnd); err != nil {
			return "", eris.Wrapf(err, "fingerprint: seek tail of %s", path)
		}
		if _, err := io.Copy(h, f); err != nil {
			return "", eris.Wrapf(err, "fingerprint: read tail of %s", path)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// WithFingerprints fills in the content fingerprint for each candidate.
// A candidate whose file cannot be hashed keeps its path as the ledger key.
func WithFingerprints(candidates []model.VideoCandidate) []model.VideoCandidate {
	out := make([]model.VideoCandidate, len(candidates))
	for i, c := range candidates {
		fp, err := Fingerprint(c.Path)
		if err != nil {
			zap.L().Warn("scan: fingerprint failed, keying by path",
				zap.String("path", c.Path),
				zap.Error(err),
			)
		} else {
			c.Fingerprint = fp
		}
		out[i] = c
	}
	return out
}
