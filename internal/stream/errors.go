package stream

import "errors"

var (
	errEmptyName      = errors.New("stream: name is required")
	errEmptyURL       = errors.New("stream: url is required")
	errUnsupportedURL = errors.New("stream: unsupported or malformed input URL")
)
