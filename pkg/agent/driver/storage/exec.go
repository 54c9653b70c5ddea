package storage

import (
	"context"
	"os/exec"

	"github.com/cuemby/vcp/pkg/apperr"
)

// run executes name with args, wrapping a non-zero exit in a
// KindDriver StorageError that carries the combined output for
// diagnosis.
func run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return apperr.Wrap(apperr.StorageError, apperr.KindDriver, err, "%s %v: %s", name, args, string(out))
	}
	return nil
}
