package spirv

import (
	"encoding/binary"
	"sort"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

const MAGIC_NUMBER uint32 = 0x07230203

var ErrInvalidModule = errors.New("invalid SPIR-V module")

// Opcodes used by the reflection pass.
const (
	opName             uint32 = 5
	opEntryPoint       uint32 = 15
	opExecutionMode    uint32 = 16
	opTypeBool         uint32 = 20
	opTypeInt          uint32 = 21
	opTypeFloat        uint32 = 22
	opTypeVector       uint32 = 23
	opTypeMatrix       uint32 = 24
	opTypeImage        uint32 = 25
	opTypeSampler      uint32 = 26
	opTypeSampledImage uint32 = 27
	opTypeArray        uint32 = 28
	opTypeRuntimeArray uint32 = 29
	opTypeStruct       uint32 = 30
	opTypePointer      uint32 = 32
	opConstant         uint32 = 43
	opVariable         uint32 = 59
	opDecorate         uint32 = 71
	opMemberDecorate   uint32 = 72
)

const (
	decorationBlock         uint32 = 2
	decorationBufferBlock   uint32 = 3
	decorationMatrixStride  uint32 = 7
	decorationArrayStride   uint32 = 6
	decorationBuiltIn       uint32 = 11
	decorationLocation      uint32 = 30
	decorationBinding       uint32 = 33
	decorationDescriptorSet uint32 = 34
	decorationOffset        uint32 = 35
)

const (
	storageClassUniformConstant uint32 = 0
	storageClassInput           uint32 = 1
	storageClassUniform         uint32 = 2
	storageClassPushConstant    uint32 = 9
	storageClassStorageBuffer   uint32 = 12
)

const (
	executionModelVertex    uint32 = 0
	executionModelGLCompute uint32 = 5
	executionModeLocalSize  uint32 = 17
	imageDimBuffer          uint32 = 5
)

type spvType struct {
	opcode uint32
	// component/element/pointee type
	elem uint32
	// vector/matrix count, int/float width, array length constant id
	count uint32
	signed bool
	// image: sampled (1 sampled, 2 storage) and dim
	sampled uint32
	dim     uint32
	members []uint32
	storage uint32
}

type decorations struct {
	location     *uint32
	binding      *uint32
	set          *uint32
	builtIn      bool
	block        bool
	bufferBlock  bool
	arrayStride  uint32
	memberOffset map[uint32]uint32
	matrixStride map[uint32]uint32
}

type variable struct {
	id      uint32
	typeId  uint32
	storage uint32
}

type module struct {
	names       map[uint32]string
	types       map[uint32]*spvType
	constants   map[uint32]uint32
	decorations map[uint32]*decorations
	variables   []variable
	executionModel uint32
	entryPoint     uint32
	localSize      [3]uint32
}

// Words converts little endian SPIR-V bytes into words.
func Words(code []byte) ([]uint32, error) {
	if len(code)%4 != 0 || len(code) < 20 {
		return nil, errors.Wrapf(ErrInvalidModule, "size %d is not a whole number of words", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != MAGIC_NUMBER {
		return nil, errors.Wrapf(ErrInvalidModule, "bad magic number 0x%08x", words[0])
	}
	return words, nil
}

// Reflect extracts the vertex input layout, descriptor bindings, push constant size
// and compute workgroup size of a single entry point module.
func Reflect(words []uint32) (metadata.ShaderReflect, error) {
	reflect := metadata.ShaderReflect{}
	m, err := parse(words)
	if err != nil {
		return reflect, err
	}

	if m.executionModel == executionModelVertex {
		reflect.Input = m.vertexInput()
	}
	if m.executionModel == executionModelGLCompute {
		reflect.LocalSize = m.localSize
	}
	reflect.Sets = m.descriptorSets()
	reflect.PushConstantSize = m.pushConstantSize()
	return reflect, nil
}

func parse(words []uint32) (*module, error) {
	if len(words) < 5 || words[0] != MAGIC_NUMBER {
		return nil, errors.Wrap(ErrInvalidModule, "missing header")
	}
	m := &module{
		names:       make(map[uint32]string),
		types:       make(map[uint32]*spvType),
		constants:   make(map[uint32]uint32),
		decorations: make(map[uint32]*decorations),
	}
	seenEntry := false

	for i := 5; i < len(words); {
		wordCount := int(words[i] >> 16)
		opcode := words[i] & 0xffff
		if wordCount == 0 || i+wordCount > len(words) {
			return nil, errors.Wrapf(ErrInvalidModule, "truncated instruction at word %d", i)
		}
		ops := words[i+1 : i+wordCount]

		switch opcode {
		case opName:
			m.names[ops[0]] = literalString(ops[1:])
		case opEntryPoint:
			if !seenEntry {
				m.executionModel = ops[0]
				m.entryPoint = ops[1]
				seenEntry = true
			}
		case opExecutionMode:
			if ops[1] == executionModeLocalSize && len(ops) >= 5 {
				m.localSize = [3]uint32{ops[2], ops[3], ops[4]}
			}
		case opTypeBool:
			m.types[ops[0]] = &spvType{opcode: opcode}
		case opTypeInt:
			m.types[ops[0]] = &spvType{opcode: opcode, count: ops[1], signed: ops[2] == 1}
		case opTypeFloat:
			m.types[ops[0]] = &spvType{opcode: opcode, count: ops[1]}
		case opTypeVector, opTypeMatrix:
			m.types[ops[0]] = &spvType{opcode: opcode, elem: ops[1], count: ops[2]}
		case opTypeImage:
			m.types[ops[0]] = &spvType{opcode: opcode, elem: ops[1], dim: ops[2], sampled: ops[6]}
		case opTypeSampler:
			m.types[ops[0]] = &spvType{opcode: opcode}
		case opTypeSampledImage:
			m.types[ops[0]] = &spvType{opcode: opcode, elem: ops[1]}
		case opTypeArray:
			m.types[ops[0]] = &spvType{opcode: opcode, elem: ops[1], count: ops[2]}
		case opTypeRuntimeArray:
			m.types[ops[0]] = &spvType{opcode: opcode, elem: ops[1]}
		case opTypeStruct:
			m.types[ops[0]] = &spvType{opcode: opcode, members: append([]uint32(nil), ops[1:]...)}
		case opTypePointer:
			m.types[ops[0]] = &spvType{opcode: opcode, storage: ops[1], elem: ops[2]}
		case opConstant:
			if len(ops) >= 3 {
				m.constants[ops[1]] = ops[2]
			}
		case opVariable:
			m.variables = append(m.variables, variable{typeId: ops[0], id: ops[1], storage: ops[2]})
		case opDecorate:
			m.decorate(ops[0], ops[1], ops[2:])
		case opMemberDecorate:
			m.decorateMember(ops[0], ops[1], ops[2], ops[3:])
		}
		i += wordCount
	}
	if !seenEntry {
		return nil, errors.Wrap(ErrInvalidModule, "no entry point")
	}
	return m, nil
}

func (m *module) decorationsOf(id uint32) *decorations {
	d, ok := m.decorations[id]
	if !ok {
		d = &decorations{memberOffset: map[uint32]uint32{}, matrixStride: map[uint32]uint32{}}
		m.decorations[id] = d
	}
	return d
}

func (m *module) decorate(target, decoration uint32, args []uint32) {
	d := m.decorationsOf(target)
	value := func() *uint32 {
		if len(args) == 0 {
			return nil
		}
		v := args[0]
		return &v
	}
	switch decoration {
	case decorationLocation:
		d.location = value()
	case decorationBinding:
		d.binding = value()
	case decorationDescriptorSet:
		d.set = value()
	case decorationBuiltIn:
		d.builtIn = true
	case decorationBlock:
		d.block = true
	case decorationBufferBlock:
		d.bufferBlock = true
	case decorationArrayStride:
		if len(args) > 0 {
			d.arrayStride = args[0]
		}
	}
}

func (m *module) decorateMember(structId, member, decoration uint32, args []uint32) {
	if len(args) == 0 {
		return
	}
	d := m.decorationsOf(structId)
	switch decoration {
	case decorationOffset:
		d.memberOffset[member] = args[0]
	case decorationMatrixStride:
		d.matrixStride[member] = args[0]
	}
}

// pointee follows a pointer type to the type it points at.
func (m *module) pointee(typeId uint32) *spvType {
	t, ok := m.types[typeId]
	if !ok {
		return nil
	}
	if t.opcode == opTypePointer {
		return m.types[t.elem]
	}
	return t
}

func (m *module) pointeeId(typeId uint32) uint32 {
	if t, ok := m.types[typeId]; ok && t.opcode == opTypePointer {
		return t.elem
	}
	return typeId
}

func (m *module) vertexInput() metadata.VertexInputCreation {
	type attribute struct {
		location uint32
		format   vk.Format
		size     uint32
	}
	var attributes []attribute
	for _, v := range m.variables {
		if v.storage != storageClassInput {
			continue
		}
		d, ok := m.decorations[v.id]
		if !ok || d.builtIn || d.location == nil {
			continue
		}
		format, size := m.vertexFormat(m.pointee(v.typeId))
		if format == vk.FormatUndefined {
			continue
		}
		attributes = append(attributes, attribute{location: *d.location, format: format, size: size})
	}
	sort.Slice(attributes, func(i, j int) bool { return attributes[i].location < attributes[j].location })

	input := metadata.VertexInputCreation{}
	if len(attributes) == 0 {
		return input
	}
	offset := uint32(0)
	for _, a := range attributes {
		input.Attributes = append(input.Attributes, metadata.VertexAttribute{
			Location: uint16(a.location),
			Binding:  0,
			Offset:   offset,
			Format:   a.format,
		})
		offset += a.size
	}
	input.Streams = append(input.Streams, metadata.VertexStream{
		Binding:   0,
		Stride:    uint16(offset),
		InputRate: vk.VertexInputRateVertex,
	})
	return input
}

func (m *module) vertexFormat(t *spvType) (vk.Format, uint32) {
	if t == nil {
		return vk.FormatUndefined, 0
	}
	count := uint32(1)
	scalar := t
	if t.opcode == opTypeVector {
		count = t.count
		scalar = m.types[t.elem]
	}
	if scalar == nil || scalar.count != 32 {
		return vk.FormatUndefined, 0
	}
	formats := map[uint32][4]vk.Format{
		opTypeFloat: {vk.FormatR32Sfloat, vk.FormatR32g32Sfloat, vk.FormatR32g32b32Sfloat, vk.FormatR32g32b32a32Sfloat},
		opTypeInt:   {vk.FormatR32Uint, vk.FormatR32g32Uint, vk.FormatR32g32b32Uint, vk.FormatR32g32b32a32Uint},
	}
	if scalar.opcode == opTypeInt && scalar.signed {
		formats[opTypeInt] = [4]vk.Format{vk.FormatR32Sint, vk.FormatR32g32Sint, vk.FormatR32g32b32Sint, vk.FormatR32g32b32a32Sint}
	}
	row, ok := formats[scalar.opcode]
	if !ok || count < 1 || count > 4 {
		return vk.FormatUndefined, 0
	}
	return row[count-1], count * 4
}

func (m *module) descriptorSets() []metadata.DescriptorSetLayoutCreation {
	bySet := map[uint32][]metadata.DescriptorSetLayoutBinding{}
	maxSet := -1
	for _, v := range m.variables {
		if v.storage != storageClassUniform && v.storage != storageClassUniformConstant && v.storage != storageClassStorageBuffer {
			continue
		}
		d, ok := m.decorations[v.id]
		if !ok || d.binding == nil || d.set == nil {
			continue
		}
		typeId := m.pointeeId(v.typeId)
		count := uint16(1)
		if t := m.types[typeId]; t != nil && (t.opcode == opTypeArray || t.opcode == opTypeRuntimeArray) {
			if t.opcode == opTypeArray {
				if length, ok := m.constants[t.count]; ok {
					count = uint16(length)
				}
			}
			typeId = t.elem
		}
		descriptorType, ok := m.descriptorType(v.storage, typeId)
		if !ok {
			continue
		}
		name := m.names[v.id]
		if name == "" {
			name = m.names[typeId]
		}
		bySet[*d.set] = append(bySet[*d.set], metadata.DescriptorSetLayoutBinding{
			Type:  descriptorType,
			Start: uint16(*d.binding),
			Count: count,
			Name:  name,
		})
		if int(*d.set) > maxSet {
			maxSet = int(*d.set)
		}
	}

	sets := make([]metadata.DescriptorSetLayoutCreation, maxSet+1)
	for i := range sets {
		sets[i].SetIndex = uint32(i)
		bindings := bySet[uint32(i)]
		sort.Slice(bindings, func(a, b int) bool { return bindings[a].Start < bindings[b].Start })
		sets[i].Bindings = bindings
	}
	return sets
}

func (m *module) descriptorType(storage, typeId uint32) (vk.DescriptorType, bool) {
	t := m.types[typeId]
	if t == nil {
		return 0, false
	}
	switch storage {
	case storageClassStorageBuffer:
		return vk.DescriptorTypeStorageBuffer, true
	case storageClassUniform:
		if d, ok := m.decorations[typeId]; ok && d.bufferBlock {
			return vk.DescriptorTypeStorageBuffer, true
		}
		return vk.DescriptorTypeUniformBuffer, true
	}
	switch t.opcode {
	case opTypeSampledImage:
		return vk.DescriptorTypeCombinedImageSampler, true
	case opTypeSampler:
		return vk.DescriptorTypeSampler, true
	case opTypeImage:
		if t.dim == imageDimBuffer {
			if t.sampled == 2 {
				return vk.DescriptorTypeStorageTexelBuffer, true
			}
			return vk.DescriptorTypeUniformTexelBuffer, true
		}
		if t.sampled == 2 {
			return vk.DescriptorTypeStorageImage, true
		}
		return vk.DescriptorTypeSampledImage, true
	}
	return 0, false
}

func (m *module) pushConstantSize() uint32 {
	size := uint32(0)
	for _, v := range m.variables {
		if v.storage != storageClassPushConstant {
			continue
		}
		if s := m.typeSize(m.pointeeId(v.typeId), 0); s > size {
			size = s
		}
	}
	return size
}

// typeSize computes the byte size of a type laid out with explicit offsets.
// matrixStride is the stride inherited from the enclosing struct member.
func (m *module) typeSize(typeId uint32, matrixStride uint32) uint32 {
	t := m.types[typeId]
	if t == nil {
		return 0
	}
	switch t.opcode {
	case opTypeBool:
		return 4
	case opTypeInt, opTypeFloat:
		return t.count / 8
	case opTypeVector:
		return t.count * m.typeSize(t.elem, 0)
	case opTypeMatrix:
		if matrixStride != 0 {
			return t.count * matrixStride
		}
		return t.count * m.typeSize(t.elem, 0)
	case opTypeArray:
		length := m.constants[t.count]
		stride := uint32(0)
		if d, ok := m.decorations[typeId]; ok {
			stride = d.arrayStride
		}
		if stride == 0 {
			stride = m.typeSize(t.elem, matrixStride)
		}
		return length * stride
	case opTypeStruct:
		d := m.decorations[typeId]
		size := uint32(0)
		offset := uint32(0)
		for i, member := range t.members {
			stride := uint32(0)
			if d != nil {
				if o, ok := d.memberOffset[uint32(i)]; ok {
					offset = o
				}
				stride = d.matrixStride[uint32(i)]
			}
			end := offset + m.typeSize(member, stride)
			if end > size {
				size = end
			}
			offset = end
		}
		return size
	}
	return 0
}

func literalString(words []uint32) string {
	buf := make([]byte, 0, len(words)*4)
	for _, w := range words {
		for shift := uint(0); shift < 32; shift += 8 {
			c := byte(w >> shift)
			if c == 0 {
				return string(buf)
			}
			buf = append(buf, c)
		}
	}
	return string(buf)
}
