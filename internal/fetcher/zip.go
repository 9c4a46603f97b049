package fetcher

import (
	"archive/zip"
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// maxMemberBytes caps how much of a single archive member is read.
const maxMemberBytes = 512 << 20

var tableExts = []string{".csv", ".txt", ".tsv", ".xlsx"}

// ReadZIPMember returns the first member of a ZIP archive that looks like a
// table (by extension), in archive order. Registry dumps are usually
// published as one zipped text file per province.
func ReadZIPMember(data []byte) (string, []byte, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, eris.Wrap(err, "zip: open archive")
	}

	for _, f := range r.File {
		if f.FileInfo().IsDir() || !isTableName(f.Name) {
			continue
		}
		body, err := readZIPEntry(f)
		if err != nil {
			return "", nil, err
		}
		return filepath.Base(f.Name), body, nil
	}

	return "", nil, eris.New("zip: no table file in archive")
}

func isTableName(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(name, "__MACOSX/") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range tableExts {
		if ext == e {
			return true
		}
	}
	return false
}

func readZIPEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(rc, maxMemberBytes+1))
	if err != nil {
		return nil, eris.Wrapf(err, "zip: read entry %s", f.Name)
	}
	if len(body) > maxMemberBytes {
		return nil, eris.Errorf("zip: entry %s exceeds %d bytes", f.Name, maxMemberBytes)
	}
	return body, nil
}
