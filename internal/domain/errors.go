package domain

import "errors"

var ErrNotFound = errors.New("not found")

var (
	ErrCacheNotFound   = errors.New("result set not found or expired")
	ErrCacheForbidden  = errors.New("result set belongs to another user")
	ErrCacheOutOfRange = errors.New("page out of range")
)
