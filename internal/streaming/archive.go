package streaming

import (
	"archive/tar"
	"archive/zip"
	"io"
	"os"

	"github.com/listenupapp/castshelf/internal/apperr"
)

// maxArchiveMember is the ZIP/TAR32 boundary: entries and total archive size
// must each stay under 2^32 bytes.
const maxArchiveMember = 1 << 32

// tarNameLimit is ustar's fixed-width name field.
const tarNameLimit = 100

// Entry describes one file to add to an archive: the on-disk path to read
// from, the name to give it inside the archive, and its declared size (used
// both to write the header and to precompute the archive's total size
// without touching the filesystem).
type Entry struct {
	FullPath string
	Name     string
	Size     int64
}

// NewTarStream produces a complete ustar archive of entries as a streamed
// reader, padding each file to a 512-byte boundary and terminating with the
// two zero blocks ustar requires.
func NewTarStream(entries []Entry) (io.ReadCloser, error) {
	for _, e := range entries {
		if len(e.Name) > tarNameLimit {
			return nil, apperr.InvalidInput("tar entry name exceeds ustar's 100-byte limit: " + e.Name)
		}
	}

	pr, pw := io.Pipe()
	go func() {
		tw := tar.NewWriter(pw)
		for _, e := range entries {
			if err := writeTarEntry(tw, e); err != nil {
				_ = pw.CloseWithError(err)
				return
			}
		}
		if err := tw.Close(); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.Close()
	}()
	return pr, nil
}

func writeTarEntry(tw *tar.Writer, e Entry) error {
	hdr := &tar.Header{
		Name:   e.Name,
		Size:   e.Size,
		Mode:   0o644,
		Format: tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(e.FullPath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.CopyN(tw, f, e.Size)
	return err
}

// TarSize precomputes the exact byte length NewTarStream will produce for
// entries, without reading any of them.
func TarSize(entries []Entry) int64 {
	const block = 512
	var total int64
	for _, e := range entries {
		total += block // header
		total += ((e.Size + block - 1) / block) * block
	}
	total += 2 * block // end-of-archive marker
	return total
}

// NewZipStream produces a complete stored-method (uncompressed) ZIP archive
// of entries as a streamed reader: each entry is a local file header, its
// raw bytes, and a data descriptor, followed by a central directory and an
// end-of-central-directory record.
func NewZipStream(entries []Entry) (io.ReadCloser, error) {
	if _, err := ZipSize(entries); err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	go func() {
		zw := zip.NewWriter(pw)
		for _, e := range entries {
			if err := writeZipEntry(zw, e); err != nil {
				_ = pw.CloseWithError(err)
				return
			}
		}
		if err := zw.Close(); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.Close()
	}()
	return pr, nil
}

func writeZipEntry(zw *zip.Writer, e Entry) error {
	hdr := &zip.FileHeader{Name: e.Name, Method: zip.Store}
	hdr.UncompressedSize64 = uint64(e.Size)
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	f, err := os.Open(e.FullPath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.CopyN(w, f, e.Size)
	return err
}

// zip format overheads, RFC-fixed and independent of the data they carry.
const (
	zipLocalHeaderFixed   = 30
	zipDataDescriptorSize = 16 // Go always emits the optional 4-byte signature
	zipCentralHeaderFixed = 46
	zipEOCDSize           = 22
)

// ZipSize precomputes the exact byte length NewZipStream will produce for
// entries, without reading any of them. It returns ArchiveTooBig/FileTooBig
// under the same bounds NewZipStream itself enforces.
func ZipSize(entries []Entry) (int64, error) {
	var total int64
	for _, e := range entries {
		if e.Size >= maxArchiveMember {
			return 0, apperr.FileTooBig("zip entry exceeds 2^32 bytes: " + e.Name)
		}
		nameLen := int64(len(e.Name))
		total += zipLocalHeaderFixed + nameLen + e.Size + zipDataDescriptorSize
		total += zipCentralHeaderFixed + nameLen
	}
	total += zipEOCDSize
	if total >= maxArchiveMember {
		return 0, apperr.ArchiveTooBig("zip archive exceeds 2^32 bytes")
	}
	return total, nil
}
