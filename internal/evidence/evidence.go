// Package evidence stores the proof files members attach when completing a duty.
package evidence

import (
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"

	dErrors "dutyflow/pkg/domain-errors"
)

// KeyPrefix groups all evidence objects.
const KeyPrefix = "evidence"

// File is an uploaded file as received from the client.
type File struct {
	Name        string
	ContentType string
	// Size is the declared size; -1 when unknown.
	Size int64
	Body io.Reader
}

// Limits constrains accepted uploads. Zero values disable a check.
type Limits struct {
	MaxBytes     int64
	AllowedTypes []string
}

// Check validates the declared metadata of f.
func (l Limits) Check(f File) error {
	if f.Body == nil {
		return dErrors.New(dErrors.CodeValidation, "evidence file is required")
	}
	if l.MaxBytes > 0 && f.Size > l.MaxBytes {
		return dErrors.New(dErrors.CodeValidation, "evidence file is too large")
	}
	if len(l.AllowedTypes) > 0 {
		ct := strings.ToLower(strings.TrimSpace(strings.SplitN(f.ContentType, ";", 2)[0]))
		allowed := false
		for _, t := range l.AllowedTypes {
			if strings.EqualFold(t, ct) {
				allowed = true
				break
			}
		}
		if !allowed {
			return dErrors.New(dErrors.CodeValidation, "evidence content type is not allowed")
		}
	}
	return nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// NewKey returns a collision-free object key that keeps a readable hint of the
// original file name.
func NewKey(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if len(base) > 100 {
		base = base[len(base)-100:]
	}
	if base == "" {
		base = "file"
	}
	return KeyPrefix + "/" + uuid.NewString() + "-" + base
}

// KeyFromURL extracts the object key from a URL produced by a store with baseURL.
func KeyFromURL(baseURL, url string) (string, bool) {
	prefix := strings.TrimRight(baseURL, "/") + "/"
	key, ok := strings.CutPrefix(url, prefix)
	if !ok || !strings.HasPrefix(key, KeyPrefix+"/") || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}
