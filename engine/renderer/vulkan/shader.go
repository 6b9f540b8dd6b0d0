package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

type VulkanShaderModule struct {
	Handle vk.ShaderModule
	Stage  vk.ShaderStageFlagBits
}

func (b *Backend) CreateShaderModule(stage vk.ShaderStageFlagBits, code []uint32, name string) (interface{}, error) {
	if len(code) == 0 {
		return nil, errors.Wrapf(core.ErrShaderCompilation, "%s: empty SPIR-V", name)
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}

	module := &VulkanShaderModule{Stage: stage}
	if err := b.context.lockPool.SafeCall(ShaderManagement, func() error {
		if res := vk.CreateShaderModule(b.context.Device.LogicalDevice, &createInfo, b.context.Allocator, &module.Handle); res != vk.Success {
			return errors.Mark(core.NewVulkanError("vkCreateShaderModule", VulkanResultString(res, true)), core.ErrShaderCompilation)
		}
		return nil
	}); err != nil {
		core.LogError("shader %s: %s", name, err)
		return nil, err
	}
	setObjectName(b.context, vk.ObjectTypeShaderModule, unsafe.Pointer(module.Handle), name)
	return module, nil
}

func (b *Backend) DestroyShaderModule(module interface{}) {
	native, ok := module.(*VulkanShaderModule)
	if !ok || native.Handle == vk.NullShaderModule {
		return
	}
	b.context.lockPool.SafeCall(ShaderManagement, func() error {
		vk.DestroyShaderModule(b.context.Device.LogicalDevice, native.Handle, b.context.Allocator)
		return nil
	})
	native.Handle = vk.NullShaderModule
}
