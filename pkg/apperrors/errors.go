package apperrors

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidAction    = errors.New("invalid action")
	ErrStaleVersion     = errors.New("content is not the latest version")
	ErrAuditWriteFailed = errors.New("audit log write failed")
)
