package renderer

import (
	"encoding/binary"
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/spirv"
)

type fakeCommandBuffer struct {
	calls      []string
	timestamps []uint32
	offsets    [][]uint32
}

func (c *fakeCommandBuffer) record(call string) { c.calls = append(c.calls, call) }

func (c *fakeCommandBuffer) Begin() error                                   { c.record("begin"); return nil }
func (c *fakeCommandBuffer) BeginSecondary(*metadata.RenderPassOutput) error { c.record("begin_secondary"); return nil }
func (c *fakeCommandBuffer) End() error                                     { c.record("end"); return nil }
func (c *fakeCommandBuffer) BeginRendering(*metadata.RenderingInfo, bool)    { c.record("begin_rendering") }
func (c *fakeCommandBuffer) EndRendering()                                  { c.record("end_rendering") }
func (c *fakeCommandBuffer) BindPipeline(*metadata.Pipeline)                { c.record("bind_pipeline") }
func (c *fakeCommandBuffer) BindDescriptorSets(_ *metadata.Pipeline, _ uint32, _ []*metadata.DescriptorSet, offsets []uint32) {
	c.record("bind_descriptor_sets")
	c.offsets = append(c.offsets, offsets)
}
func (c *fakeCommandBuffer) BindVertexBuffer(*metadata.Buffer, uint32, uint64)          { c.record("bind_vertex_buffer") }
func (c *fakeCommandBuffer) BindIndexBuffer(*metadata.Buffer, uint64, vk.IndexType)     { c.record("bind_index_buffer") }
func (c *fakeCommandBuffer) SetViewport(float32, float32, float32, float32)            { c.record("set_viewport") }
func (c *fakeCommandBuffer) SetScissor(int32, int32, uint32, uint32)                    { c.record("set_scissor") }
func (c *fakeCommandBuffer) Draw(uint32, uint32, uint32, uint32)                        { c.record("draw") }
func (c *fakeCommandBuffer) DrawIndexed(uint32, uint32, uint32, int32, uint32)          { c.record("draw_indexed") }
func (c *fakeCommandBuffer) Dispatch(uint32, uint32, uint32)                            { c.record("dispatch") }
func (c *fakeCommandBuffer) ExecuteCommands([]NativeCommandBuffer)                      { c.record("execute_commands") }
func (c *fakeCommandBuffer) ResetQueries(uint32, uint32)                                { c.record("reset_queries") }
func (c *fakeCommandBuffer) WriteTimestamp(query uint32) {
	c.record("write_timestamp")
	c.timestamps = append(c.timestamps, query)
}

// fakeBackend keeps native objects as integers and counts every call.
type fakeBackend struct {
	nextID int

	width, height uint32
	swapchain     metadata.SwapchainInfo

	created   map[string]int
	destroyed map[string]int

	waits            []uint32
	submits          int
	copies           []*metadata.Texture
	presents         int
	swapchainResizes int
	bindlessWrites   []metadata.BindlessWrite
	descriptorWrites [][]metadata.DescriptorWrite
	pipelines        []*metadata.PipelineCreation

	acquireErr     error
	presentErr     error
	pipelineErr    error
	textureErr     error
	shaderErr      error
	timestampTicks map[uint32][]uint64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		width:          1280,
		height:         720,
		created:        map[string]int{},
		destroyed:      map[string]int{},
		timestampTicks: map[uint32][]uint64{},
	}
}

func (f *fakeBackend) id() int {
	f.nextID++
	return f.nextID
}

func (f *fakeBackend) live(kind string) int {
	return f.created[kind] - f.destroyed[kind]
}

func (f *fakeBackend) Initialize(*core.DeviceConfig) error { return nil }
func (f *fakeBackend) Shutdown() error                     { return nil }
func (f *fakeBackend) WaitIdle() error                     { return nil }

func (f *fakeBackend) DeviceInfo() metadata.DeviceInfo {
	return metadata.DeviceInfo{Name: "fake gpu", TimestampPeriod: 1, MinUniformBufferOffsetAlignment: 16}
}

func (f *fakeBackend) CreateSwapchain() (metadata.SwapchainInfo, error) {
	f.swapchain = metadata.SwapchainInfo{Width: f.width, Height: f.height, ImageCount: 3, Format: vk.FormatB8g8r8a8Unorm}
	return f.swapchain, nil
}

func (f *fakeBackend) ResizeSwapchain(width, height uint32) (metadata.SwapchainInfo, error) {
	f.swapchainResizes++
	f.swapchain.Width, f.swapchain.Height = width, height
	return f.swapchain, nil
}

func (f *fakeBackend) DestroySwapchain()                 {}
func (f *fakeBackend) FramebufferSize() (uint32, uint32) { return f.width, f.height }

func (f *fakeBackend) WaitForFrame(frame uint32) error {
	f.waits = append(f.waits, frame)
	return nil
}

func (f *fakeBackend) AcquireNextImage(frame uint32) (uint32, error) {
	if err := f.acquireErr; err != nil {
		f.acquireErr = nil
		return 0, err
	}
	return frame % 3, nil
}

func (f *fakeBackend) Submit(uint32, []NativeCommandBuffer) error {
	f.submits++
	return nil
}

func (f *fakeBackend) SubmitSwapchainCopy(_, _ uint32, command NativeCommandBuffer, source *metadata.Texture) error {
	command.End()
	f.copies = append(f.copies, source)
	return nil
}

func (f *fakeBackend) Present(uint32, uint32) error {
	f.presents++
	if err := f.presentErr; err != nil {
		f.presentErr = nil
		return err
	}
	return nil
}

func (f *fakeBackend) AllocateCommandBuffers(_, primaries, secondaries uint32) ([]NativeCommandBuffer, []NativeCommandBuffer, error) {
	p := make([]NativeCommandBuffer, primaries)
	for i := range p {
		p[i] = &fakeCommandBuffer{}
	}
	s := make([]NativeCommandBuffer, secondaries)
	for i := range s {
		s[i] = &fakeCommandBuffer{}
	}
	return p, s, nil
}

func (f *fakeBackend) ResetCommandPool(uint32) error { return nil }

func (f *fakeBackend) GetTimestampResults(pool, count uint32) ([]uint64, error) {
	ticks := make([]uint64, count)
	copy(ticks, f.timestampTicks[pool])
	return ticks, nil
}

func (f *fakeBackend) GetPipelineStatistics(uint32) ([]uint64, error) {
	return make([]uint64, metadata.GPU_PIPELINE_STATISTICS_COUNT), nil
}

func (f *fakeBackend) CreateSampler(sampler *metadata.Sampler) error {
	f.created["sampler"]++
	sampler.InternalData = f.id()
	return nil
}

func (f *fakeBackend) DestroySampler(*metadata.Sampler) { f.destroyed["sampler"]++ }

func (f *fakeBackend) CreateTexture(texture *metadata.Texture, _ *metadata.Texture, _ []byte) error {
	if f.textureErr != nil {
		return f.textureErr
	}
	f.created["texture"]++
	texture.InternalData = f.id()
	return nil
}

func (f *fakeBackend) DestroyTexture(*metadata.Texture) { f.destroyed["texture"]++ }

func (f *fakeBackend) CreateShaderModule(vk.ShaderStageFlagBits, []uint32, string) (interface{}, error) {
	if f.shaderErr != nil {
		return nil, f.shaderErr
	}
	f.created["shader_module"]++
	return f.id(), nil
}

func (f *fakeBackend) DestroyShaderModule(interface{}) { f.destroyed["shader_module"]++ }

func (f *fakeBackend) CreatePipeline(pipeline *metadata.Pipeline, creation *metadata.PipelineCreation, _ *metadata.ShaderState, _ []*metadata.DescriptorSetLayout) error {
	if f.pipelineErr != nil {
		return f.pipelineErr
	}
	f.created["pipeline"]++
	f.pipelines = append(f.pipelines, creation)
	pipeline.InternalData = f.id()
	return nil
}

func (f *fakeBackend) DestroyPipeline(*metadata.Pipeline) { f.destroyed["pipeline"]++ }

func (f *fakeBackend) CreateBuffer(buffer *metadata.Buffer, data []byte) error {
	f.created["buffer"]++
	buffer.InternalData = f.id()
	if buffer.Persistent {
		buffer.MappedData = make([]byte, buffer.Size)
		copy(buffer.MappedData, data)
	}
	return nil
}

func (f *fakeBackend) DestroyBuffer(*metadata.Buffer) { f.destroyed["buffer"]++ }

func (f *fakeBackend) MapBuffer(buffer *metadata.Buffer, offset, size uint32) ([]byte, error) {
	return make([]byte, size), nil
}

func (f *fakeBackend) UnmapBuffer(*metadata.Buffer) {}

func (f *fakeBackend) CreateDescriptorSetLayout(layout *metadata.DescriptorSetLayout) error {
	f.created["descriptor_set_layout"]++
	layout.InternalData = f.id()
	return nil
}

func (f *fakeBackend) DestroyDescriptorSetLayout(*metadata.DescriptorSetLayout) {
	f.destroyed["descriptor_set_layout"]++
}

func (f *fakeBackend) CreateDescriptorSet(set *metadata.DescriptorSet, _ *metadata.DescriptorSetLayout, writes []metadata.DescriptorWrite) error {
	f.created["descriptor_set"]++
	f.descriptorWrites = append(f.descriptorWrites, writes)
	set.InternalData = f.id()
	return nil
}

func (f *fakeBackend) DestroyDescriptorSet(*metadata.DescriptorSet) { f.destroyed["descriptor_set"]++ }

func (f *fakeBackend) UpdateBindlessTextures(_ *metadata.DescriptorSet, writes []metadata.BindlessWrite) error {
	f.bindlessWrites = append(f.bindlessWrites, writes...)
	return nil
}

func (f *fakeBackend) bindlessWritesFor(index uint32) []metadata.BindlessWrite {
	var writes []metadata.BindlessWrite
	for _, w := range f.bindlessWrites {
		if w.ArrayElement == index {
			writes = append(writes, w)
		}
	}
	return writes
}

// fakeCompiler returns a minimal module for the stage, whatever the source.
type fakeCompiler struct {
	err   error
	calls int
}

func (c *fakeCompiler) Compile(_ []byte, stage vk.ShaderStageFlagBits, _ string) ([]uint32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	model := uint32(0)
	switch stage {
	case vk.ShaderStageFragmentBit:
		model = 4
	case vk.ShaderStageComputeBit:
		model = 5
	}
	return minimalModule(model), nil
}

func spvInst(op uint32, operands ...uint32) []uint32 {
	return append([]uint32{uint32(len(operands)+1)<<16 | op}, operands...)
}

// "main" padded to two words.
var mainName = []uint32{0x6e69616d, 0}

func minimalModule(model uint32) []uint32 {
	words := []uint32{spirv.MAGIC_NUMBER, 0x00010000, 0, 10, 0}
	return append(words, spvInst(15, append([]uint32{model, 1}, mainName...)...)...)
}

// uniformModule declares a uniform block at set 1 binding 0.
func uniformModule(model uint32) []uint32 {
	words := minimalModule(model)
	for _, i := range [][]uint32{
		spvInst(71, 4, 34, 1),
		spvInst(71, 4, 33, 0),
		spvInst(71, 2, 2),
		spvInst(22, 1, 32),
		spvInst(23, 5, 1, 4),
		spvInst(30, 2, 5),
		spvInst(32, 3, 2, 2),
		spvInst(59, 3, 4, 2),
	} {
		words = append(words, i...)
	}
	return words
}

func spvBytes(words []uint32) []byte {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

func testConfig() *core.DeviceConfig {
	config := core.DefaultDeviceConfig()
	config.DynamicPerFrameSize = 1024
	config.UBOAlignment = 256
	config.MaxFramesInFlight = 3
	return config
}

func newTestDevice(t *testing.T, config *core.DeviceConfig) (*GPUDevice, *fakeBackend) {
	t.Helper()
	if config == nil {
		config = testConfig()
	}
	backend := newFakeBackend()
	device, err := NewGPUDevice(backend, config)
	if err != nil {
		t.Fatalf("NewGPUDevice() error = %v", err)
	}
	device.SetShaderCompiler(&fakeCompiler{})
	if err := device.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return device, backend
}

func runFrame(t *testing.T, device *GPUDevice, final metadata.TextureHandle) {
	t.Helper()
	if err := device.NewFrame(); err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}
	if err := device.Present(final); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
}

func graphicsCreation(name string, vertex []uint32) metadata.PipelineCreation {
	creation := metadata.PipelineCreation{Name: name}
	creation.Shaders.SpvInput = true
	creation.Shaders.
		AddStage(spvBytes(vertex), vk.ShaderStageVertexBit).
		AddStage(spvBytes(minimalModule(4)), vk.ShaderStageFragmentBit)
	return creation
}
