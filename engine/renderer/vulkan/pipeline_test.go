package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func TestColorBlendAttachments(t *testing.T) {
	states := []metadata.BlendState{
		{
			SourceColor:      vk.BlendFactorSrcAlpha,
			DestinationColor: vk.BlendFactorOneMinusSrcAlpha,
			ColorOperation:   vk.BlendOpAdd,
			SourceAlpha:      vk.BlendFactorOne,
			DestinationAlpha: vk.BlendFactorZero,
			AlphaOperation:   vk.BlendOpMax,
			BlendEnabled:     true,
		},
	}

	got := colorBlendAttachments(states, 2)
	if len(got) != 2 {
		t.Fatalf("len = %d, want one state per attachment", len(got))
	}
	if got[0].BlendEnable != vk.True || got[0].SrcAlphaBlendFactor != vk.BlendFactorSrcAlpha || got[0].AlphaBlendOp != vk.BlendOpAdd {
		t.Errorf("without separate blend the alpha factors must follow the color ones: %+v", got[0])
	}
	if got[0].ColorWriteMask != allColorComponents {
		t.Errorf("ColorWriteMask = %b, want every component", got[0].ColorWriteMask)
	}
	if got[1].BlendEnable != vk.False || got[1].ColorWriteMask != allColorComponents {
		t.Errorf("padding state = %+v, want blending off and every component", got[1])
	}

	states[0].SeparateBlend = true
	got = colorBlendAttachments(states, 1)
	if got[0].SrcAlphaBlendFactor != vk.BlendFactorOne || got[0].DstAlphaBlendFactor != vk.BlendFactorZero || got[0].AlphaBlendOp != vk.BlendOpMax {
		t.Errorf("separate blend state = %+v, want the alpha factors", got[0])
	}
}

func TestAttachmentFormats(t *testing.T) {
	tests := []struct {
		format         vk.Format
		depth, stencil vk.Format
	}{
		{vk.FormatUndefined, vk.FormatUndefined, vk.FormatUndefined},
		{vk.FormatD32Sfloat, vk.FormatD32Sfloat, vk.FormatUndefined},
		{vk.FormatD24UnormS8Uint, vk.FormatD24UnormS8Uint, vk.FormatD24UnormS8Uint},
		{vk.FormatS8Uint, vk.FormatUndefined, vk.FormatS8Uint},
	}
	for _, tt := range tests {
		depth, stencil := attachmentFormats(tt.format)
		if depth != tt.depth || stencil != tt.stencil {
			t.Errorf("attachmentFormats(%v) = (%v, %v), want (%v, %v)", tt.format, depth, stencil, tt.depth, tt.stencil)
		}
	}
}
