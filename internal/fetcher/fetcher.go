// Package fetcher loads registry exports (delimited text, XLSX, or a ZIP
// holding either, from disk or over HTTP) into a model.Table. All cells are
// kept as text; no type coercion happens here.
package fetcher

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bookmap/internal/model"
)

// LoadOptions configures table loading.
type LoadOptions struct {
	Delimiter rune // 0 = sniff
	SheetName string
	HTTP      *HTTPFetcher // used for URL sources; nil builds a default one
}

// LoadFile reads a local path or http(s) URL and parses it according to its
// extension.
func LoadFile(ctx context.Context, src string, opts LoadOptions) (*model.Table, error) {
	if IsURL(src) {
		f := opts.HTTP
		if f == nil {
			f = NewHTTPFetcher(HTTPOptions{})
		}
		data, err := f.Download(ctx, src)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: download %s", src)
		}
		return Load(ctx, urlBase(src), data, opts)
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read %s", src)
	}
	return Load(ctx, filepath.Base(src), data, opts)
}

// Load parses data as a table. name is used to pick the format and is
// recorded as the table source. A ZIP archive is unwrapped to its first
// table member, whose name becomes the source.
func Load(ctx context.Context, name string, data []byte, opts LoadOptions) (*model.Table, error) {
	if strings.EqualFold(filepath.Ext(name), ".zip") {
		member, body, err := ReadZIPMember(data)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: unpack %s", name)
		}
		zap.L().Debug("fetcher: using archive member",
			zap.String("archive", name),
			zap.String("member", member),
		)
		name, data = member, body
	}

	var (
		tbl *model.Table
		err error
	)
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		tbl, err = ReadXLSX(data, XLSXOptions{SheetName: opts.SheetName})
	} else {
		tbl, err = ReadDelimited(ctx, data, opts.Delimiter)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse %s", name)
	}
	tbl.Source = name

	zap.L().Debug("fetcher: table loaded",
		zap.String("source", name),
		zap.Int("rows", tbl.Len()),
		zap.Int("columns", len(tbl.Headers)),
		zap.String("delimiter", string(tbl.Delimiter)),
	)
	return tbl, nil
}

func urlBase(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "download.csv"
	}
	return path.Base(u.Path)
}
