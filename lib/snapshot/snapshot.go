// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

var magic = [4]byte{'P', 'B', 'S', 'N'}

const containerFormat = 1

// maxBodySize bounds the uncompressed body a header may announce, so a
// corrupt length cannot trigger a huge allocation.
const maxBodySize = 1 << 30

// ErrCorrupt is wrapped by every error caused by a malformed file.
var ErrCorrupt = errors.New("snapshot: corrupt file")

// IncompatibleVersionError reports a snapshot written with a different
// document schema. Loading never migrates.
type IncompatibleVersionError struct {
	Found    string
	Expected string
}

func (e *IncompatibleVersionError) Error() string {
	return fmt.Sprintf("snapshot: incompatible schema version %q (this build reads %q)", e.Found, e.Expected)
}

// IsIncompatibleVersion reports whether err is or wraps an
// IncompatibleVersionError.
func IsIncompatibleVersion(err error) bool {
	var incompatible *IncompatibleVersionError
	return errors.As(err, &incompatible)
}

// Digest is the BLAKE3 keyed digest of an uncompressed body.
type Digest [32]byte

// String returns the digest in hex.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// bodyDomainKey keys the body digest so it never collides with a plain
// BLAKE3 hash of the same bytes.
var bodyDomainKey = [32]byte{
	'p', 'a', 't', 'c', 'h', 'b', 'a', 'y', '.', 's', 'n', 'a', 'p', 's', 'h', 'o',
	't', '.', 'b', 'o', 'd', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// DigestBody computes the digest stored in the header for body.
func DigestBody(body []byte) Digest {
	hasher, err := blake3.NewKeyed(bodyDomainKey[:])
	if err != nil {
		panic("snapshot: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(body)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// Header is the decoded snapshot header.
type Header struct {
	Schema           string
	Compression      CompressionTag
	UncompressedSize uint64
	CompressedSize   uint64
	Digest           Digest
}

// Encode builds a complete snapshot file image. The requested
// compression is dropped for bodies that do not shrink.
func Encode(schema string, body []byte, compression CompressionTag) ([]byte, error) {
	if len(schema) > math.MaxUint16 {
		return nil, fmt.Errorf("snapshot: schema string too long")
	}
	payload, used, err := compress(body, compression)
	if err != nil {
		return nil, fmt.Errorf("snapshot: compressing body: %w", err)
	}
	digest := DigestBody(body)

	var buffer bytes.Buffer
	buffer.Grow(len(magic) + 1 + 2 + len(schema) + 1 + 8 + len(digest) + len(payload))
	buffer.Write(magic[:])
	buffer.WriteByte(containerFormat)
	binary.Write(&buffer, binary.BigEndian, uint16(len(schema)))
	buffer.WriteString(schema)
	buffer.WriteByte(byte(used))
	binary.Write(&buffer, binary.BigEndian, uint64(len(body)))
	buffer.Write(digest[:])
	buffer.Write(payload)
	return buffer.Bytes(), nil
}

// ReadHeader parses the header of a snapshot image without checking
// the schema or the body. Used by tooling that inspects files from
// other builds.
func ReadHeader(data []byte) (Header, []byte, error) {
	var header Header
	if len(data) < len(magic)+1+2 || !bytes.Equal(data[:len(magic)], magic[:]) {
		return header, nil, fmt.Errorf("%w: missing PBSN magic", ErrCorrupt)
	}
	offset := len(magic)
	if data[offset] != containerFormat {
		return header, nil, fmt.Errorf("%w: unknown container format %d", ErrCorrupt, data[offset])
	}
	offset++

	schemaLength := int(binary.BigEndian.Uint16(data[offset:]))
	offset += 2
	if len(data) < offset+schemaLength+1+8+len(header.Digest) {
		return header, nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	header.Schema = string(data[offset : offset+schemaLength])
	offset += schemaLength

	header.Compression = CompressionTag(data[offset])
	offset++
	header.UncompressedSize = binary.BigEndian.Uint64(data[offset:])
	offset += 8
	copy(header.Digest[:], data[offset:])
	offset += len(header.Digest)

	payload := data[offset:]
	header.CompressedSize = uint64(len(payload))
	return header, payload, nil
}

// Decode validates a snapshot image against the expected schema and
// returns its uncompressed body.
func Decode(data []byte, expectedSchema string) ([]byte, error) {
	header, payload, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}
	if header.Schema != expectedSchema {
		return nil, &IncompatibleVersionError{Found: header.Schema, Expected: expectedSchema}
	}
	if header.UncompressedSize > maxBodySize {
		return nil, fmt.Errorf("%w: body of %d bytes exceeds limit", ErrCorrupt, header.UncompressedSize)
	}
	body, err := decompress(payload, header.Compression, int(header.UncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if DigestBody(body) != header.Digest {
		return nil, fmt.Errorf("%w: body digest mismatch", ErrCorrupt)
	}
	return body, nil
}

// Save atomically writes a snapshot file. The image is written to a
// temporary file in the same directory, fsynced, and renamed into
// place.
func Save(path, schema string, body []byte, compression CompressionTag) error {
	data, err := Encode(schema, body, compression)
	if err != nil {
		return err
	}

	file, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("snapshot: creating temporary file: %w", err)
	}
	temporaryPath := file.Name()

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("snapshot: writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("snapshot: syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("snapshot: closing temporary file: %w", err)
	}
	if err := os.Chmod(temporaryPath, 0o644); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("snapshot: setting file mode: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("snapshot: renaming into place: %w", err)
	}

	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}

// Load reads and validates a snapshot file.
func Load(path, expectedSchema string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: reading %s: %w", path, err)
	}
	body, err := Decode(data, expectedSchema)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return body, nil
}

// Inspect reads only the header of a snapshot file.
func Inspect(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, fmt.Errorf("snapshot: reading %s: %w", path, err)
	}
	header, _, err := ReadHeader(data)
	return header, err
}
