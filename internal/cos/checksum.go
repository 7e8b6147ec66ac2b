// Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
package cos

import (
	"crypto/sha512"
	"encoding/hex"
	"io"
	"os"

	"github.com/pkg/errors"
)

// CopyAndChecksum copies src to dst byte-for-byte while simultaneously
// computing the SHA-512 digest of the bytes written, mirroring the
// cos.CopyAndChecksum idiom used throughout core/lom.go (copy once, hash in
// the same pass, no second read of the destination).
func CopyAndChecksum(dst io.Writer, src io.Reader) (written int64, digest string, err error) {
	h := sha512.New()
	mw := io.MultiWriter(dst, h)
	written, err = io.Copy(mw, src)
	if err != nil {
		return written, "", errors.Wrap(err, "copy-and-checksum")
	}
	return written, hex.EncodeToString(h.Sum(nil)), nil
}

// ChecksumFile recomputes the SHA-512 digest of an already-written file, used
// by write_copy's post-fsync verification pass (§4.G step 5) where the digest
// must be read back from the destination rather than trusted from the copy.
func ChecksumFile(path string) (digest string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "checksum-file open")
	}
	defer f.Close()
	h := sha512.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrap(err, "checksum-file read")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FlushToDisk fsyncs f, the final step before trusting a copy to be durable
// (§4.A flush_to_disk).
func FlushToDisk(f *os.File) error {
	if err := f.Sync(); err != nil {
		return errors.Wrap(err, "fsync")
	}
	return nil
}
