package metadata

import "github.com/spaghettifunk/anima-gpu/engine/containers"

// ResourceIndex is the slot index of a resource inside its pool.
type ResourceIndex = uint32

const INVALID_INDEX ResourceIndex = containers.INVALID_INDEX

type BufferHandle struct{ Index ResourceIndex }
type TextureHandle struct{ Index ResourceIndex }
type SamplerHandle struct{ Index ResourceIndex }
type ShaderStateHandle struct{ Index ResourceIndex }
type PipelineHandle struct{ Index ResourceIndex }
type DescriptorSetLayoutHandle struct{ Index ResourceIndex }
type DescriptorSetHandle struct{ Index ResourceIndex }
type FramebufferHandle struct{ Index ResourceIndex }
type RenderPassHandle struct{ Index ResourceIndex }

func (h BufferHandle) IsValid() bool              { return h.Index != INVALID_INDEX }
func (h TextureHandle) IsValid() bool             { return h.Index != INVALID_INDEX }
func (h SamplerHandle) IsValid() bool             { return h.Index != INVALID_INDEX }
func (h ShaderStateHandle) IsValid() bool         { return h.Index != INVALID_INDEX }
func (h PipelineHandle) IsValid() bool            { return h.Index != INVALID_INDEX }
func (h DescriptorSetLayoutHandle) IsValid() bool { return h.Index != INVALID_INDEX }
func (h DescriptorSetHandle) IsValid() bool       { return h.Index != INVALID_INDEX }
func (h FramebufferHandle) IsValid() bool         { return h.Index != INVALID_INDEX }
func (h RenderPassHandle) IsValid() bool          { return h.Index != INVALID_INDEX }

var (
	InvalidBuffer              = BufferHandle{INVALID_INDEX}
	InvalidTexture             = TextureHandle{INVALID_INDEX}
	InvalidSampler             = SamplerHandle{INVALID_INDEX}
	InvalidShaderState         = ShaderStateHandle{INVALID_INDEX}
	InvalidPipeline            = PipelineHandle{INVALID_INDEX}
	InvalidDescriptorSetLayout = DescriptorSetLayoutHandle{INVALID_INDEX}
	InvalidDescriptorSet       = DescriptorSetHandle{INVALID_INDEX}
	InvalidFramebuffer         = FramebufferHandle{INVALID_INDEX}
	InvalidRenderPass          = RenderPassHandle{INVALID_INDEX}
)
