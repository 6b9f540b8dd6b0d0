package metadata

const (
	MAX_IMAGE_OUTPUTS          uint32 = 8
	MAX_DESCRIPTOR_SET_LAYOUTS uint32 = 8
	MAX_SHADER_STAGES          uint32 = 5
	MAX_DESCRIPTORS_PER_SET    uint32 = 16
	MAX_VERTEX_STREAMS         uint32 = 16
	MAX_VERTEX_ATTRIBUTES      uint32 = 16
	MAX_SWAPCHAIN_IMAGES       uint32 = 3

	BINDLESS_DESCRIPTOR_SET_INDEX uint32 = 0
	BINDLESS_TEXTURE_BINDING      uint32 = 10
	BINDLESS_IMAGE_BINDING        uint32 = 11

	// Number of timestamp pairs a command pool can record per frame.
	GPU_TIME_QUERIES_PER_FRAME uint32 = 32
	// Counters gathered by the pipeline statistics pool.
	GPU_PIPELINE_STATISTICS_COUNT uint32 = 7
)

/** @brief How often the content of a resource is expected to change. */
type ResourceUsageType int

const (
	RESOURCE_USAGE_TYPE_IMMUTABLE ResourceUsageType = iota
	/** @brief Rewritten every frame, lives inside the shared dynamic buffer. */
	RESOURCE_USAGE_TYPE_DYNAMIC
	RESOURCE_USAGE_TYPE_STREAM
)

/**
 * @brief Kind of resource tracked by the deferred deletion queue.
 * The same tag drives the instant destruction dispatch.
 */
type ResourceDeletionType int

const (
	RESOURCE_DELETION_TYPE_SAMPLER ResourceDeletionType = iota
	RESOURCE_DELETION_TYPE_TEXTURE
	RESOURCE_DELETION_TYPE_BUFFER
	RESOURCE_DELETION_TYPE_SHADER_STATE
	RESOURCE_DELETION_TYPE_PIPELINE
	RESOURCE_DELETION_TYPE_DESCRIPTOR_SET_LAYOUT
	RESOURCE_DELETION_TYPE_DESCRIPTOR_SET
	RESOURCE_DELETION_TYPE_RENDER_PASS
	RESOURCE_DELETION_TYPE_FRAMEBUFFER
)

func (t ResourceDeletionType) String() string {
	switch t {
	case RESOURCE_DELETION_TYPE_SAMPLER:
		return "sampler"
	case RESOURCE_DELETION_TYPE_TEXTURE:
		return "texture"
	case RESOURCE_DELETION_TYPE_BUFFER:
		return "buffer"
	case RESOURCE_DELETION_TYPE_SHADER_STATE:
		return "shader state"
	case RESOURCE_DELETION_TYPE_PIPELINE:
		return "pipeline"
	case RESOURCE_DELETION_TYPE_DESCRIPTOR_SET_LAYOUT:
		return "descriptor set layout"
	case RESOURCE_DELETION_TYPE_DESCRIPTOR_SET:
		return "descriptor set"
	case RESOURCE_DELETION_TYPE_RENDER_PASS:
		return "render pass"
	case RESOURCE_DELETION_TYPE_FRAMEBUFFER:
		return "framebuffer"
	}
	return "unknown"
}

/**
 * @brief An entry of the deletion queue or of the bindless update queue.
 * CurrentFrame is the frame slot that was being recorded when the entry was pushed.
 */
type ResourceUpdate struct {
	Type         ResourceDeletionType
	Index        ResourceIndex
	CurrentFrame uint32
	/** @brief Set on bindless entries queued by a texture destruction. */
	Deleting bool
}
