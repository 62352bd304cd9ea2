package adapters

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"noir-registry/internal/ports"
	"noir-registry/internal/shared"
)

const defaultNargoBinary = "nargo"

// NargoToolchainAdapter runs `nargo check` to fetch and type-check a
// project's dependencies.
type NargoToolchainAdapter struct {
	Binary string
}

func NewNargoToolchainAdapter(binary string) NargoToolchainAdapter {
	if binary == "" {
		binary = defaultNargoBinary
	}
	return NargoToolchainAdapter{Binary: binary}
}

func (a NargoToolchainAdapter) Check(ctx context.Context, projectDir string) (bool, error) {
	binary, err := exec.LookPath(a.Binary)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return false, nil
		}
		return false, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to locate %s", a.Binary)).
			WithCause(err)
	}
	cmd := exec.CommandContext(ctx, binary, "check")
	cmd.Dir = projectDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return true, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("%s check failed in %s", a.Binary, projectDir)).
			WithCause(shared.CommandError(output, err))
	}
	return true, nil
}

var _ ports.ToolchainPort = NargoToolchainAdapter{}
