// Package cos ("common, OS-agnostic, small") collects the handful of
// low-level helpers shared by every package in this module: byte-count
// formatting and the spilled-object URL codec.
/*
 * Copyright (c) 2024-2025, Ray Project contributors.
 */
package cos

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

// B2S renders a byte count in human-readable form, e.g. B2S(3*MiB, 1) == "3.0MiB".
func B2S(b int64, digits int) string {
	switch {
	case b >= GiB:
		return fmt.Sprintf("%.*fGiB", digits, float64(b)/GiB)
	case b >= MiB:
		return fmt.Sprintf("%.*fMiB", digits, float64(b)/MiB)
	case b >= KiB:
		return fmt.Sprintf("%.*fKiB", digits, float64(b)/KiB)
	default:
		return fmt.Sprintf("%dB", b)
	}
}

// ObjectURL is the bit-level wire contract for a spilled object's
// location: "<base-url>?offset=<uint64>&size=<uint64>". base-url is
// opaque to the manager; two URLs are fused into the same physical file
// iff their base-url strings are byte-equal.
type ObjectURL struct {
	BaseURL string
	Offset  uint64
	Size    uint64
}

func (u ObjectURL) String() string {
	return fmt.Sprintf("%s?offset=%d&size=%d", u.BaseURL, u.Offset, u.Size)
}

var errMalformedURL = errors.New("malformed spilled-object url")

// ParseObjectURL parses the wire format produced by String(). It is
// intentionally strict: a URL missing either the offset or the size
// parameter is rejected.
func ParseObjectURL(raw string) (ObjectURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ObjectURL{}, errors.Wrap(err, "parse object url")
	}
	q := u.Query()
	offStr, sizeStr := q.Get("offset"), q.Get("size")
	if offStr == "" || sizeStr == "" {
		return ObjectURL{}, errMalformedURL
	}
	off, err := strconv.ParseUint(offStr, 10, 64)
	if err != nil {
		return ObjectURL{}, errors.Wrap(err, "parse offset")
	}
	size, err := strconv.ParseUint(sizeStr, 10, 64)
	if err != nil {
		return ObjectURL{}, errors.Wrap(err, "parse size")
	}
	u.RawQuery = ""
	return ObjectURL{BaseURL: u.String(), Offset: off, Size: size}, nil
}

// BaseURL extracts the base-url (fusion key) out of a wire-format URL
// string without allocating an ObjectURL.
func BaseURL(raw string) string {
	if i := indexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}
