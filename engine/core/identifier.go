package core

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateName returns a debug name for resources created without one.
func GenerateName(kind string) string {
	return fmt.Sprintf("%s-%s", kind, uuid.NewString()[:8])
}

// GenerateFileStem returns a collision free stem for temporary files.
func GenerateFileStem(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
