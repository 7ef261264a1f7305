package core

import (
	"errors"
)

var (
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrUnknown          = errors.New("unknown")

	// fatal class
	ErrDeviceLost           = errors.New("device lost or fence wait timed out")
	ErrDeviceObjectCreation = errors.New("failed to create device object")
	ErrShaderLoad           = errors.New("failed to load shader binary")
	ErrPresentFailed        = errors.New("presentation failed repeatedly")

	// resource class
	ErrDescriptorAllocation = errors.New("descriptor set allocation failed after retry")
	ErrFormatUnsupported    = errors.New("format does not support the requested usage")

	// validation class
	ErrNotHostVisible        = errors.New("buffer memory is not host visible")
	ErrSizeMismatch          = errors.New("data size does not match resource size")
	ErrInvalidSize           = errors.New("resource size must be greater than zero")
	ErrUnsupportedTransition = errors.New("unsupported image layout transition")
	ErrLayoutMismatch        = errors.New("image layout does not match the tracked layout")
	ErrBuilderEmpty          = errors.New("descriptor builder has no pending bindings")
)
