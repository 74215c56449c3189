// Package pagination normalizes page sizes and the opaque tokens that resume
// a listing.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// PageSizeConfig configures page size normalization.
type PageSizeConfig struct {
	Default int
	Max     int
}

// ClampPageSize applies defaults and limits for page sizes.
func ClampPageSize(value int32, cfg PageSizeConfig) int {
	pageSize := int(value)
	if pageSize <= 0 {
		pageSize = cfg.Default
	}
	if cfg.Max > 0 && pageSize > cfg.Max {
		pageSize = cfg.Max
	}
	if pageSize <= 0 {
		pageSize = 1
	}
	return pageSize
}

const tokenPrefix = "seq:"

// EncodeToken returns a token that resumes a listing at sequence next.
func EncodeToken(next uint64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(tokenPrefix + strconv.FormatUint(next, 10)))
}

// DecodeToken parses a token from EncodeToken. The empty token starts at 0.
func DecodeToken(token string) (uint64, error) {
	if token == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("invalid page token: %w", err)
	}
	value, ok := strings.CutPrefix(string(raw), tokenPrefix)
	if !ok {
		return 0, fmt.Errorf("invalid page token")
	}
	next, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid page token: %w", err)
	}
	return next, nil
}
