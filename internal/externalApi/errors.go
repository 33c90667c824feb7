package externalApi

import "errors"

var (
	ErrNotFound           = errors.New("error not found")
	ErrUnexpectedResponse = errors.New("unexpected api response")
)
