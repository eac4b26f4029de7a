package util

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"mime"
	"path/filepath"
	"strings"

	"github.com/wailsapp/mimetype"
)

// SniffMime picks the media type of an uploaded file: content sniffing first,
// then the declared type, then the file extension.
func SniffMime(b []byte, declared, filename string) string {
	if len(b) > 0 {
		if mt := BaseMediaType(mimetype.Detect(b).String()); mt != "" && mt != "application/octet-stream" {
			return mt
		}
	}
	if mt := BaseMediaType(declared); mt != "" && mt != "application/octet-stream" {
		return mt
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		if mt := BaseMediaType(mime.TypeByExtension(ext)); mt != "" {
			return mt
		}
	}
	return "application/octet-stream"
}

// BaseMediaType strips parameters and lower-cases a media type.
func BaseMediaType(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if base, _, err := mime.ParseMediaType(s); err == nil {
		return strings.ToLower(base)
	}
	return strings.ToLower(s)
}

func MakeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ContentHash is a stable hex sha256 over parts, each length-prefixed so that
// ("ab","c") and ("a","bc") differ.
func ContentHash(parts ...[]byte) string {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		l := uint64(len(p))
		for i := 0; i < 8; i++ {
			n[i] = byte(l >> (8 * i))
		}
		h.Write(n[:])
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
