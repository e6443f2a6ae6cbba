package main

import (
	"path/filepath"

	"github.com/websoft9/trop/internal/reservation"
)

// resolvePath implements the explicit/implicit distinction of spec
// §3: an explicit path argument is normalized but not canonicalized
// (symlinks are preserved as given); an implicit path (no argument,
// inferred from the working directory) is fully canonicalized. Path
// resolution itself is an external-to-the-engine concern (spec §1);
// this is the CLI frame doing it before handing the engine an opaque
// resolved key.
func resolvePath(arg string) (string, reservation.PathResolution, error) {
	if arg == "" {
		cwd, err := workingDir()
		if err != nil {
			return "", 0, err
		}
		resolved, err := filepath.EvalSymlinks(cwd)
		if err != nil {
			resolved = cwd
		}
		return resolved, reservation.ImplicitPath, nil
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", 0, err
	}
	return filepath.Clean(abs), reservation.ExplicitPath, nil
}
