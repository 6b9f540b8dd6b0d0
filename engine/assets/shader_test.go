package assets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

func TestShaderStageFromPath(t *testing.T) {
	tests := []struct {
		path  string
		stage vk.ShaderStageFlagBits
		ok    bool
	}{
		{"shaders/fullscreen.vert", vk.ShaderStageVertexBit, true},
		{"shaders/fullscreen.frag.glsl", vk.ShaderStageFragmentBit, true},
		{"culling.comp.wgsl", vk.ShaderStageComputeBit, true},
		{"meshlet.mesh", vk.ShaderStageMeshBitNv, true},
		{"common.glsl", 0, false},
		{"README.md", 0, false},
	}
	for _, tt := range tests {
		stage, ok := ShaderStageFromPath(tt.path)
		if ok != tt.ok || stage != tt.stage {
			t.Errorf("ShaderStageFromPath(%q) = (%v, %t), want (%v, %t)", tt.path, stage, ok, tt.stage, tt.ok)
		}
	}
}

func TestLoadShaderState(t *testing.T) {
	dir := t.TempDir()
	vert := filepath.Join(dir, "triangle.vert")
	frag := filepath.Join(dir, "triangle.frag")
	for _, p := range []string{vert, frag} {
		if err := os.WriteFile(p, []byte("#version 450\nvoid main() {}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	creation, err := LoadShaderState("triangle", vert, frag)
	if err != nil {
		t.Fatalf("LoadShaderState() error = %v", err)
	}
	if creation.Name != "triangle" || len(creation.Stages) != 2 {
		t.Fatalf("creation = %q with %d stages, want triangle with 2", creation.Name, len(creation.Stages))
	}
	if creation.Stages[0].Type != vk.ShaderStageVertexBit || creation.Stages[1].Type != vk.ShaderStageFragmentBit {
		t.Errorf("stage order = %v, %v", creation.Stages[0].Type, creation.Stages[1].Type)
	}

	if _, err := LoadShaderState("bad", filepath.Join(dir, "notes.txt")); !errors.Is(err, core.ErrUnsupported) {
		t.Errorf("LoadShaderState(no stage) error = %v, want ErrUnsupported", err)
	}
}
