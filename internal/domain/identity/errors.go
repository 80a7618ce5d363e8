package identity

import "errors"

var (
	ErrMappingNotFound      = errors.New("identity mapping not found")
	ErrActiveMappingExists  = errors.New("provider code already has an active mapping")
	ErrInvalidMappingStatus = errors.New("invalid mapping status")
	ErrIdentityNotFound     = errors.New("local identity not found")
)
