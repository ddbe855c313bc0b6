package extract

import (
	"context"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jinwoohan/appgrader/internal/store"
)

// localizeImages downloads every embedded image once, stores it under a
// uuid filename in the image directory, and rewrites the document's src
// attributes so the rich fields render local paths. Download failures
// become diagnostics; the original URL stays in place.
func (e *Extractor) localizeImages(ctx context.Context, doc *goquery.Document, r *Result) {
	if e.fetcher == nil || e.imageDir == "" {
		return
	}

	seen := make(map[string]string)
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" {
			src, _ = img.Attr("data-image-src")
		}
		if src == "" {
			return
		}

		if local, done := seen[src]; done {
			if local != "" {
				img.SetAttr("src", local)
			}
			return
		}

		local, err := e.saveImage(ctx, src)
		if err != nil {
			seen[src] = ""
			r.Diagnostics = append(r.Diagnostics, "image download failed: "+src)
			e.log.Warn("image download failed", zap.String("url", src), zap.Error(err))
			return
		}
		seen[src] = local
		r.Images = append(r.Images, store.ImageRef{SourceURL: src, LocalPath: local})
		img.SetAttr("src", local)
	})
}

func (e *Extractor) saveImage(ctx context.Context, src string) (string, error) {
	body, contentType, err := e.fetcher.Download(ctx, src)
	if err != nil {
		return "", err
	}

	name := e.newID() + imageExt(src, contentType)
	local := filepath.Join(e.imageDir, name)
	if err := os.MkdirAll(e.imageDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(local, body, 0o644); err != nil {
		return "", err
	}
	return local, nil
}

func newImageID() string {
	return uuid.NewString()
}

// imageExt picks a file extension from the URL path, falling back to the
// content type.
func imageExt(src, contentType string) string {
	if u, err := url.Parse(src); err == nil {
		if ext := path.Ext(u.Path); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".img"
}
