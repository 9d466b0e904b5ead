package domain

import "errors"

// Error kinds shared by the adapters. None of them is fatal: transport errors
// degrade to an empty fetch, parse and persistence errors skip one record,
// config errors fall back to defaults.
var (
	ErrTransport   = errors.New("transport error")
	ErrParse       = errors.New("parse error")
	ErrPersistence = errors.New("persistence error")
	ErrConfig      = errors.New("config error")
)
