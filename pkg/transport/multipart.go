package transport

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Boundary is the multipart boundary expected by the controller's upload
// endpoint.
const Boundary = "----WebKitFormBoundary7MA4YWxkTrZu0gW"

const (
	FieldModelName = "modelName"
	FieldFile      = "file"
)

// MultipartContentType is the Content-Type header value for EncodeMultipart
// bodies.
func MultipartContentType() string {
	return "multipart/form-data; boundary=" + Boundary
}

// EncodeMultipart frames an upload body: the text field modelName first, then
// the binary part "file" named after the base name of filePath, then the
// closing delimiter. The wire layout is part of the controller contract and is
// written out explicitly rather than through mime/multipart, which picks its
// own boundary and header order.
func EncodeMultipart(fieldValue, filePath string, content []byte) []byte {
	var b bytes.Buffer
	b.Grow(len(content) + 256)

	b.WriteString("--" + Boundary + "\r\n")
	b.WriteString(`Content-Disposition: form-data; name="` + FieldModelName + `"` + "\r\n\r\n")
	b.WriteString(fieldValue + "\r\n")

	b.WriteString("--" + Boundary + "\r\n")
	b.WriteString(`Content-Disposition: form-data; name="` + FieldFile + `"; filename="` + baseName(filePath) + `"` + "\r\n")
	b.WriteString("Content-Type: application/octet-stream\r\n\r\n")
	b.Write(content)

	b.WriteString("\r\n--" + Boundary + "--\r\n")
	return b.Bytes()
}

// baseName accepts both separators so paths reported by other hosts resolve
// the same way.
func baseName(p string) string {
	if i := strings.LastIndexAny(p, `\/`); i >= 0 {
		return p[i+1:]
	}
	return filepath.Base(p)
}
