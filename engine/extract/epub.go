package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"
)

const epubContainer = "META-INF/container.xml"

var tagRe = regexp.MustCompile(`<[^>]*>`)

type epubContainerXML struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type epubPackage struct {
	Manifest []struct {
		ID   string `xml:"id,attr"`
		Href string `xml:"href,attr"`
	} `xml:"manifest>item"`
	Spine []struct {
		IDRef string `xml:"idref,attr"`
	} `xml:"spine>itemref"`
}

// EPUB concatenates the book's content documents in reading order and
// replaces markup with spaces. Entities are left as-is.
func EPUB(p string) (string, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return "", fmt.Errorf("open epub: %w", err)
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	sections := spineEntries(files)
	if len(sections) == 0 {
		for _, f := range zr.File {
			if isHTML(f.Name) {
				sections = append(sections, f)
			}
		}
	}

	parts := make([]string, 0, len(sections))
	for _, f := range sections {
		html, err := readZipFile(f)
		if err != nil {
			return "", err
		}
		parts = append(parts, html)
	}
	return tagRe.ReplaceAllString(strings.Join(parts, "\n"), " "), nil
}

// spineEntries resolves the OPF spine to archive entries. It returns nil
// when the container or package document cannot be resolved.
func spineEntries(files map[string]*zip.File) []*zip.File {
	cf, ok := files[epubContainer]
	if !ok {
		return nil
	}
	var c epubContainerXML
	if err := decodeZipXML(cf, &c); err != nil || len(c.Rootfiles) == 0 {
		return nil
	}
	opfPath := c.Rootfiles[0].FullPath
	of, ok := files[opfPath]
	if !ok {
		return nil
	}
	var pkg epubPackage
	if err := decodeZipXML(of, &pkg); err != nil {
		return nil
	}

	hrefs := make(map[string]string, len(pkg.Manifest))
	for _, it := range pkg.Manifest {
		hrefs[it.ID] = it.Href
	}
	base := path.Dir(opfPath)
	var out []*zip.File
	for _, ref := range pkg.Spine {
		href, ok := hrefs[ref.IDRef]
		if !ok {
			continue
		}
		if u, err := url.PathUnescape(href); err == nil {
			href = u
		}
		if f, ok := files[path.Join(base, href)]; ok {
			out = append(out, f)
		}
	}
	return out
}

func isHTML(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".xhtml", ".html", ".htm":
		return true
	}
	return false
}

func readZipFile(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", f.Name, err)
	}
	return string(data), nil
}

func decodeZipXML(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(v)
}
