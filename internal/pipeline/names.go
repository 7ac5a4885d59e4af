package pipeline

import (
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// maxNameBytes bounds the sanitized part of a temp file name.
const maxNameBytes = 128

// tempName returns a unique local file name for item: a random UUID prefix
// plus the sanitized, NFC-normalized source name.
func tempName(item RemoteItem) string {
	return uuid.NewString() + "-" + sanitizeName(item.Name)
}

// sanitizeName makes a remote name safe as a single local path component.
func sanitizeName(name string) string {
	name = norm.NFC.String(name)

	clean := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':':
			return '_'
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, name)

	clean = strings.Trim(clean, ". ")
	if clean == "" {
		clean = "item"
	}

	for len(clean) > maxNameBytes {
		_, size := utf8.DecodeLastRuneInString(clean)
		clean = clean[:len(clean)-size]
	}

	return clean
}

// uploadName is the file name the media item is created with: the NFC
// source stem with a .jpg extension, since the payload is re-encoded.
func uploadName(name string) string {
	name = norm.NFC.String(name)
	stem := strings.TrimSuffix(name, path.Ext(name))

	if stem == "" {
		stem = name
	}

	return stem + ".jpg"
}

// extOf returns the lower-cased extension of name including the dot.
func extOf(name string) string {
	return strings.ToLower(path.Ext(name))
}
