package sigv4

import "errors"

var (
	ErrMissingOrDuplicateAuth = errors.New("sigv4: exactly one of header or presigned authentication must be present")
	ErrInvalidAccessKeyID     = errors.New("sigv4: unknown access key id")
	ErrSignatureDoesNotMatch  = errors.New("sigv4: signature does not match")
	ErrRequestTimeTooSkewed   = errors.New("sigv4: request time too skewed")
	ErrExpired                = errors.New("sigv4: presigned url expired")
	ErrMalformed              = errors.New("sigv4: malformed authentication")
	ErrChunkSignatureMismatch = errors.New("sigv4: chunk signature mismatch")
)
