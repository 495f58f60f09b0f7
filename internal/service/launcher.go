package service

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// SpawnError is an OS-level launch failure: missing executable or a failed
// exec. It is fatal for the attempt that produced it; nothing retries inline.
type SpawnError struct {
	Name string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Name, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Launcher spawns managed service processes. It resolves the service and
// auxiliary binaries, merges environment, wires rotated stdio capture and
// retains exclusive ownership of the resulting handle via the returned value.
type Launcher struct{}

// Spawn starts the process described by spec. On success the returned Handle
// is the only reference to the child. On failure it returns a *SpawnError and
// no process is left behind.
func (l Launcher) Spawn(spec Spec) (*Handle, error) {
	path := ResolveBinary(spec.Command, spec.SearchDirs)

	env := mergeEnv(os.Environ(), spec.Env)
	for _, aux := range spec.Aux {
		if aux.EnvVar == "" || aux.Base == "" {
			continue
		}
		env = mergeEnv(env, []string{aux.EnvVar + "=" + ResolveBinary(aux.Base, spec.SearchDirs)})
	}

	// #nosec G204 -- command comes from the supervisor's own config
	cmd := exec.Command(path, spec.Args...)
	cmd.Env = env
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	setSysProcAttr(cmd)

	outW, errW, _ := spec.Log.Writers(spec.Name)
	if spec.Log.Dir != "" {
		_ = os.MkdirAll(spec.Log.Dir, 0o750)
	}
	if outW != nil {
		cmd.Stdout = outW
	} else {
		cmd.Stdout, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}
	if errW != nil {
		cmd.Stderr = errW
	} else {
		cmd.Stderr, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}

	if err := cmd.Start(); err != nil {
		if outW != nil {
			_ = outW.Close()
		}
		if errW != nil {
			_ = errW.Close()
		}
		return nil, &SpawnError{Name: spec.Name, Err: err}
	}
	return newHandle(cmd, outW, errW), nil
}

// mergeEnv overlays KEY=VALUE pairs onto base, replacing duplicates and
// preserving first-seen order for the rest.
func mergeEnv(base, overlay []string) []string {
	if len(overlay) == 0 {
		return base
	}
	idx := make(map[string]int, len(base))
	out := make([]string, len(base))
	copy(out, base)
	for i, kv := range out {
		if j := strings.IndexByte(kv, '='); j >= 0 {
			idx[kv[:j]] = i
		}
	}
	for _, kv := range overlay {
		j := strings.IndexByte(kv, '=')
		if j < 0 {
			continue
		}
		if i, ok := idx[kv[:j]]; ok {
			out[i] = kv
		} else {
			idx[kv[:j]] = len(out)
			out = append(out, kv)
		}
	}
	return out
}
