package core

import (
	"github.com/cockroachdb/errors"
)

var (
	ErrSwapchainOutOfDate      = errors.New("swapchain out of date or suboptimal")
	ErrPoolExhausted           = errors.New("resource pool exhausted")
	ErrInvalidHandle           = errors.New("invalid resource handle")
	ErrShaderCompilation       = errors.New("shader compilation failed")
	ErrDynamicBufferOverrun    = errors.New("dynamic buffer overrun")
	ErrNoSuitableDevice        = errors.New("no physical device meets the requirements")
	ErrNoSuitableSurfaceFormat = errors.New("no suitable surface format")
	ErrInvalidConfig           = errors.New("invalid configuration")
	ErrUnsupported             = errors.New("unsupported")
	ErrVulkan                  = errors.New("vulkan call failed")
	ErrUnknown                 = errors.New("unknown")
)

// WrapInvalidConfig marks err as a configuration problem.
func WrapInvalidConfig(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrInvalidConfig)
}

// NewVulkanError builds an error for a failed native call, matching ErrVulkan.
func NewVulkanError(call string, result string) error {
	return errors.Mark(errors.Newf("%s failed: %s", call, result), ErrVulkan)
}
