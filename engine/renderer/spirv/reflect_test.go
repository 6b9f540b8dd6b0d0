package spirv

import (
	"encoding/binary"
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

func inst(op uint32, operands ...uint32) []uint32 {
	return append([]uint32{uint32(len(operands)+1)<<16 | op}, operands...)
}

func str(s string) []uint32 {
	b := append([]byte(s), 0)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}

func assemble(instructions ...[]uint32) []uint32 {
	words := []uint32{MAGIC_NUMBER, 0x00010000, 0, 100, 0}
	for _, i := range instructions {
		words = append(words, i...)
	}
	return words
}

func vertexModule() []uint32 {
	return assemble(
		inst(opEntryPoint, append(append([]uint32{executionModelVertex, 1}, str("main")...), 7, 8)...),
		inst(opName, append([]uint32{12}, str("LocalConstants")...)...),
		inst(opName, append([]uint32{16}, str("albedo")...)...),
		inst(opDecorate, 7, decorationLocation, 0),
		inst(opDecorate, 8, decorationLocation, 1),
		inst(opDecorate, 9, decorationBlock),
		inst(opDecorate, 12, decorationDescriptorSet, 1),
		inst(opDecorate, 12, decorationBinding, 0),
		inst(opDecorate, 16, decorationDescriptorSet, 1),
		inst(opDecorate, 16, decorationBinding, 1),
		inst(opDecorate, 18, decorationBlock),
		inst(opMemberDecorate, 18, 0, decorationOffset, 0),
		inst(opMemberDecorate, 18, 0, decorationMatrixStride, 16),
		inst(opMemberDecorate, 18, 1, decorationOffset, 64),
		inst(opTypeFloat, 2, 32),
		inst(opTypeVector, 3, 2, 3),
		inst(opTypeVector, 4, 2, 2),
		inst(opTypePointer, 5, storageClassInput, 3),
		inst(opTypePointer, 6, storageClassInput, 4),
		inst(opVariable, 5, 7, storageClassInput),
		inst(opVariable, 6, 8, storageClassInput),
		inst(opTypeVector, 10, 2, 4),
		inst(opTypeStruct, 9, 10),
		inst(opTypePointer, 11, storageClassUniform, 9),
		inst(opVariable, 11, 12, storageClassUniform),
		inst(opTypeImage, 13, 2, 1, 0, 0, 0, 1, 0),
		inst(opTypeSampledImage, 14, 13),
		inst(opTypePointer, 15, storageClassUniformConstant, 14),
		inst(opVariable, 15, 16, storageClassUniformConstant),
		inst(opTypeMatrix, 17, 10, 4),
		inst(opTypeStruct, 18, 17, 10),
		inst(opTypePointer, 19, storageClassPushConstant, 18),
		inst(opVariable, 19, 20, storageClassPushConstant),
	)
}

func TestReflectVertexModule(t *testing.T) {
	reflect, err := Reflect(vertexModule())
	if err != nil {
		t.Fatalf("Reflect() error = %v", err)
	}

	if len(reflect.Input.Attributes) != 2 {
		t.Fatalf("got %d attributes, want 2", len(reflect.Input.Attributes))
	}
	first, second := reflect.Input.Attributes[0], reflect.Input.Attributes[1]
	if first.Location != 0 || first.Offset != 0 || first.Format != vk.FormatR32g32b32Sfloat {
		t.Errorf("unexpected attribute 0: %+v", first)
	}
	if second.Location != 1 || second.Offset != 12 || second.Format != vk.FormatR32g32Sfloat {
		t.Errorf("unexpected attribute 1: %+v", second)
	}
	if len(reflect.Input.Streams) != 1 || reflect.Input.Streams[0].Stride != 20 {
		t.Errorf("unexpected streams: %+v", reflect.Input.Streams)
	}

	if len(reflect.Sets) != 2 {
		t.Fatalf("got %d sets, want 2", len(reflect.Sets))
	}
	if len(reflect.Sets[0].Bindings) != 0 {
		t.Errorf("set 0 should be empty, got %+v", reflect.Sets[0].Bindings)
	}
	set := reflect.Sets[1]
	if set.SetIndex != 1 || len(set.Bindings) != 2 {
		t.Fatalf("unexpected set 1: %+v", set)
	}
	if b := set.Bindings[0]; b.Start != 0 || b.Type != vk.DescriptorTypeUniformBuffer || b.Name != "LocalConstants" {
		t.Errorf("unexpected binding 0: %+v", b)
	}
	if b := set.Bindings[1]; b.Start != 1 || b.Type != vk.DescriptorTypeCombinedImageSampler || b.Count != 1 {
		t.Errorf("unexpected binding 1: %+v", b)
	}

	if reflect.PushConstantSize != 80 {
		t.Errorf("PushConstantSize = %d, want 80", reflect.PushConstantSize)
	}
}

func TestReflectComputeModule(t *testing.T) {
	words := assemble(
		inst(opEntryPoint, append([]uint32{executionModelGLCompute, 1}, str("main")...)...),
		inst(opExecutionMode, 1, executionModeLocalSize, 8, 8, 1),
		inst(opDecorate, 5, decorationDescriptorSet, 1),
		inst(opDecorate, 5, decorationBinding, 0),
		inst(opTypeFloat, 2, 32),
		inst(opTypeImage, 3, 2, 1, 0, 0, 0, 2, 0),
		inst(opTypePointer, 4, storageClassUniformConstant, 3),
		inst(opVariable, 4, 5, storageClassUniformConstant),
	)

	reflect, err := Reflect(words)
	if err != nil {
		t.Fatalf("Reflect() error = %v", err)
	}
	if reflect.LocalSize != [3]uint32{8, 8, 1} {
		t.Errorf("LocalSize = %v", reflect.LocalSize)
	}
	if len(reflect.Input.Attributes) != 0 {
		t.Errorf("compute modules have no vertex input")
	}
	if len(reflect.Sets) != 2 || len(reflect.Sets[1].Bindings) != 1 {
		t.Fatalf("unexpected sets: %+v", reflect.Sets)
	}
	if reflect.Sets[1].Bindings[0].Type != vk.DescriptorTypeStorageImage {
		t.Errorf("got type %v, want storage image", reflect.Sets[1].Bindings[0].Type)
	}
}

func TestReflectArrayCount(t *testing.T) {
	words := assemble(
		inst(opEntryPoint, append([]uint32{executionModelGLCompute, 1}, str("main")...)...),
		inst(opDecorate, 7, decorationDescriptorSet, 2),
		inst(opDecorate, 7, decorationBinding, 3),
		inst(opTypeInt, 2, 32, 0),
		inst(opConstant, 2, 3, 4),
		inst(opTypeSampler, 4),
		inst(opTypeArray, 5, 4, 3),
		inst(opTypePointer, 6, storageClassUniformConstant, 5),
		inst(opVariable, 6, 7, storageClassUniformConstant),
	)
	reflect, err := Reflect(words)
	if err != nil {
		t.Fatalf("Reflect() error = %v", err)
	}
	b := reflect.Sets[2].Bindings[0]
	if b.Count != 4 || b.Type != vk.DescriptorTypeSampler || b.Start != 3 {
		t.Errorf("unexpected binding: %+v", b)
	}
}

func TestReflectRejectsBrokenModules(t *testing.T) {
	tests := []struct {
		name  string
		words []uint32
	}{
		{"empty", nil},
		{"bad magic", []uint32{0xdeadbeef, 0, 0, 0, 0}},
		{"no entry point", assemble(inst(opTypeFloat, 2, 32))},
		{"truncated", append(assemble(), 5<<16|opTypeFloat, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Reflect(tt.words); !errors.Is(err, ErrInvalidModule) {
				t.Errorf("Reflect() error = %v, want ErrInvalidModule", err)
			}
		})
	}
}

func TestWords(t *testing.T) {
	bytes := make([]byte, 20)
	binary.LittleEndian.PutUint32(bytes, MAGIC_NUMBER)
	words, err := Words(bytes)
	if err != nil {
		t.Fatalf("Words() error = %v", err)
	}
	if len(words) != 5 || words[0] != MAGIC_NUMBER {
		t.Errorf("unexpected words %v", words)
	}

	if _, err := Words(bytes[:7]); !errors.Is(err, ErrInvalidModule) {
		t.Errorf("odd length should fail, got %v", err)
	}
	binary.LittleEndian.PutUint32(bytes, 0x1234)
	if _, err := Words(bytes); !errors.Is(err, ErrInvalidModule) {
		t.Errorf("bad magic should fail, got %v", err)
	}
}
