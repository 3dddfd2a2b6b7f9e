package storage

import "errors"

var (
	ErrNoSuchBucket       = errors.New("storage: no such bucket")
	ErrBucketAlreadyExists = errors.New("storage: bucket already exists")
	ErrBucketAlreadyOwned  = errors.New("storage: bucket already owned by you")
	ErrBucketNotEmpty      = errors.New("storage: bucket not empty")
	ErrInvalidBucketName   = errors.New("storage: invalid bucket name")
	ErrNoSuchKey           = errors.New("storage: no such key")
	ErrInvalidObjectKey    = errors.New("storage: invalid object key")
	ErrInvalidRange        = errors.New("storage: invalid range")
	ErrNoSuchUpload        = errors.New("storage: no such upload")
	ErrInvalidPart         = errors.New("storage: invalid part")
	ErrInvalidPartOrder    = errors.New("storage: parts not in ascending order")
	ErrPartTooSmall        = errors.New("storage: non-final part smaller than 5 MiB")
	ErrAccessDenied        = errors.New("storage: access denied")
)
