package scan

import (
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
)

// ProbeDuration reads the duration of an MP4/MOV file from its movie header
// (mvhd) box without decoding any media. Only the box framing of the ISO
// base media format is parsed, which every capture tool in practice emits.
func ProbeDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "probe: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	moov, err := findBox(f, "moov")
	if err != nil {
		return 0, eris.Wrapf(err, "probe: %s", path)
	}

	mvhd, err := findBox(io.LimitReader(f, moov), "mvhd")
	if err != nil {
		return 0, eris.Wrapf(err, "probe: %s", path)
	}

	return readMvhd(io.LimitReader(f, mvhd))
}

// findBox scans top-level boxes in r until it reaches the named one,
// returning the payload size and leaving r positioned at the payload.
func findBox(r io.Reader, name string) (int64, error) {
	var header [8]byte
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return 0, eris.Errorf("box %q not found", name)
			}
			return 0, eris.Wrap(err, "read box header")
		}

		size := int64(binary.BigEndian.Uint32(header[:4]))
		payload := size - 8
		if size == 1 {
			// 64-bit largesize follows the type field.
			var large [8]byte
			if _, err := io.ReadFull(r, large[:]); err != nil {
				return 0, eris.Wrap(err, "read box largesize")
			}
			payload = int64(binary.BigEndian.Uint64(large[:])) - 16
		}
		if payload < 0 {
			return 0, eris.Errorf("malformed box size %d", size)
		}

		if string(header[4:8]) == name {
			return payload, nil
		}

		if _, err := io.CopyN(io.Discard, r, payload); err != nil {
			return 0, eris.Errorf("box %q not found", name)
		}
	}
}

// readMvhd extracts timescale and duration from an mvhd payload.
func readMvhd(r io.Reader) (time.Duration, error) {
	var version [4]byte // version byte + 3 flag bytes
	if _, err := io.ReadFull(r, version[:]); err != nil {
		return 0, eris.Wrap(err, "read mvhd version")
	}

	var timescale uint32
	var duration uint64

	switch version[0] {
	case 0:
		// creation(4) + modification(4) + timescale(4) + duration(4)
		var body [16]byte
		if _, err := io.ReadFull(r, body[:]); err != nil {
			return 0, eris.Wrap(err, "read mvhd v0")
		}
		timescale = binary.BigEndian.Uint32(body[8:12])
		duration = uint64(binary.BigEndian.Uint32(body[12:16]))
	case 1:
		// creation(8) + modification(8) + timescale(4) + duration(8)
		var body [28]byte
		if _, err := io.ReadFull(r, body[:]); err != nil {
			return 0, eris.Wrap(err, "read mvhd v1")
		}
		timescale = binary.BigEndian.Uint32(body[16:20])
		duration = binary.BigEndian.Uint64(body[20:28])
	default:
		return 0, eris.Errorf("unsupported mvhd version %d", version[0])
	}

	if timescale == 0 {
		return 0, eris.New("mvhd timescale is zero")
	}
	return time.Duration(duration) * time.Second / time.Duration(timescale), nil
}
