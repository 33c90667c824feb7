package service

import "errors"

var (
	ErrNotFound         = errors.New("error not found")
	ErrExecutionTimeout = errors.New("order execution timed out")
)
