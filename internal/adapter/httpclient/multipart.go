package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/domain"
)

// Multipart is a multipart/form-data body: plain fields plus file parts.
type Multipart struct {
	Fields map[string]string
	Files  []FilePart
}

// FilePart is one file field. Content comes from Data when set, otherwise
// from the file at Path.
type FilePart struct {
	Field string
	Path  string
	// Name overrides the filename sent in Content-Disposition.
	Name string
	Data []byte
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (m *Multipart) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(m.Fields))
	for k := range m.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, m.Fields[k]); err != nil {
			return nil, "", err
		}
	}

	for _, f := range m.Files {
		data, name, err := f.load()
		if err != nil {
			return nil, "", err
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(f.Field), quoteEscaper.Replace(name)))
		// Content sniffing with mimetype so the server sees a realistic type
		h.Set("Content-Type", mimetype.Detect(data).String())
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (f FilePart) load() ([]byte, string, error) {
	if f.Field == "" {
		return nil, "", fmt.Errorf("%w: file part without field name", domain.ErrInvalidArgument)
	}
	name := f.Name
	if f.Data != nil {
		if name == "" {
			name = f.Field
		}
		return f.Data, name, nil
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading %s: %w", domain.ErrSetup, f.Path, err)
	}
	if name == "" {
		name = filepath.Base(f.Path)
	}
	return data, name, nil
}
