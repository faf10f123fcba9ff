package apiclient

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/fpang/dni-capture/internal/capture"
	"github.com/go-resty/resty/v2"
)

// Form is a multipart/form-data body. Its parts are kept in memory so the
// body can be rebuilt for every retry attempt.
type Form struct {
	fields map[string]string
	files  []filePart
}

type filePart struct {
	param       string
	fileName    string
	contentType string
	data        []byte
}

// NewForm returns an empty multipart body.
func NewForm() *Form {
	return &Form{fields: make(map[string]string)}
}

// Field sets a text field. Empty values are skipped.
func (f *Form) Field(name, value string) *Form {
	if value != "" {
		f.fields[name] = value
	}
	return f
}

// File adds a file part.
func (f *Form) File(param, fileName, contentType string, data []byte) *Form {
	f.files = append(f.files, filePart{param: param, fileName: fileName, contentType: contentType, data: data})
	return f
}

// DataURIFile decodes a base64 data URI and adds it as a file part.
func (f *Form) DataURIFile(param, fileName, dataURI string) error {
	mimeType, data, err := capture.DecodeDataURI(dataURI)
	if err != nil {
		return fmt.Errorf("form file %s: %w", param, err)
	}
	f.File(param, fileName, mimeType, data)
	return nil
}

// Value returns a text field and whether it is set.
func (f *Form) Value(name string) (string, bool) {
	v, ok := f.fields[name]
	return v, ok
}

// FileCount returns the number of file parts.
func (f *Form) FileCount() int {
	return len(f.files)
}

func (f *Form) apply(r *resty.Request) {
	r.SetMultipartFormData(f.fields)
	for _, p := range f.files {
		r.SetMultipartField(p.param, p.fileName, p.contentType, bytes.NewReader(p.data))
	}
}

// ImageKey is the MakeForm key whose data URI value becomes the "file" part.
const ImageKey = "imageString"

// MakeForm builds a multipart body from loosely typed request data:
// the ImageKey entry is decoded into a "file" part named image.jpg, zero
// values are dropped, and slices are joined with commas.
func MakeForm(data map[string]any) (*Form, error) {
	form := NewForm()

	if img, ok := data[ImageKey].(string); ok && img != "" {
		if err := form.DataURIFile("file", "image.jpg", img); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if k == ImageKey {
			continue
		}
		form.Field(k, formValue(data[k]))
	}
	return form, nil
}

func formValue(v any) string {
	if v == nil {
		return ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = fmt.Sprint(rv.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	case reflect.Bool:
		if !rv.Bool() {
			return ""
		}
	}
	if rv.IsZero() {
		return ""
	}
	return fmt.Sprint(v)
}
