package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrUploadConfigNil indicates that a nil Config was provided.
	ErrUploadConfigNil = errors.New("upload: config is nil")

	// ErrManagerNil indicates that a nil Manager was provided.
	ErrManagerNil = errors.New("upload: manager is nil")

	// ErrNothingToUpload indicates an upload started without images.
	ErrNothingToUpload = errors.New("upload: no images to upload")

	// ErrInvalidData indicates an image without data.
	ErrInvalidData = errors.New("upload: invalid image data")

	// ErrInvalidPayload indicates a device response without an offset.
	ErrInvalidPayload = errors.New("upload: response payload is missing the offset")

	// ErrOffsetMismatch indicates the device rejected the offset of a chunk.
	ErrOffsetMismatch = errors.New("upload: offset mismatch")

	// ErrUploadInProgress indicates Start was called while an upload is running.
	ErrUploadInProgress = errors.New("upload: upload already in progress")

	// ErrCanceled indicates the upload was canceled.
	ErrCanceled = errors.New("upload: canceled")
)

// OffsetMismatchError is returned when the device reports an offset it could not have reached
// or explicitly flags a chunk as not matching.
type OffsetMismatchError struct {
	Image  int
	Offset uint64
}

func (e *OffsetMismatchError) Error() string {
	return fmt.Sprintf("upload: offset mismatch at %d of image %d", e.Offset, e.Image)
}

func (e *OffsetMismatchError) Is(target error) bool {
	return target == ErrOffsetMismatch
}
