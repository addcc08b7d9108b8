package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/triage-ai/inspection/configs"
)

// EnvConfigPath names the environment variable consulted when no explicit
// path is given.
const EnvConfigPath = "INSPECTION_CONFIG_PATH"

// DefaultBundleDir is where the bundled policy lives relative to the working
// directory.
const DefaultBundleDir = "configs"

const embeddedSource = "embedded:" + configs.PolicyFile

// Loader resolves, parses and memoizes policy documents. The first
// successful load for a resolved path is cached; Reload replaces it.
type Loader struct {
	bundleDir string
	bundled   []byte
	getenv    func(string) string

	mu    sync.Mutex
	cache map[string]*Policy
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithBundleDir sets the directory holding the bundled default policy.
func WithBundleDir(dir string) LoaderOption {
	return func(l *Loader) { l.bundleDir = dir }
}

// WithBundledPolicy replaces the in-binary fallback document. nil disables it.
func WithBundledPolicy(data []byte) LoaderOption {
	return func(l *Loader) { l.bundled = data }
}

// WithGetenv replaces os.Getenv for resolution.
func WithGetenv(fn func(string) string) LoaderOption {
	return func(l *Loader) { l.getenv = fn }
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		bundleDir: DefaultBundleDir,
		bundled:   configs.DefaultPolicy,
		getenv:    os.Getenv,
		cache:     make(map[string]*Policy),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

var defaultLoader = NewLoader()

// Load resolves and loads a policy with the process-wide loader.
func Load(path string) (*Policy, error) { return defaultLoader.Load(path) }

// Load returns the policy for path, parsing it on first use.
// An empty path falls back to INSPECTION_CONFIG_PATH, then the bundled default.
func (l *Loader) Load(path string) (*Policy, error) {
	return l.load(path, false)
}

// Reload re-parses the policy for path and replaces the cached instance.
// Callers already holding the previous instance keep it.
func (l *Loader) Reload(path string) (*Policy, error) {
	return l.load(path, true)
}

func (l *Loader) load(path string, fresh bool) (*Policy, error) {
	resolved, err := l.Resolve(path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !fresh {
		if p, ok := l.cache[resolved]; ok {
			return p, nil
		}
	}

	var data []byte
	if resolved == embeddedSource {
		data = l.bundled
	} else {
		data, err = os.ReadFile(resolved)
		if err != nil {
			return nil, fmt.Errorf("read policy %s: %w", resolved, err)
		}
	}

	p, err := Parse(data, resolved)
	if err != nil {
		return nil, err
	}
	l.cache[resolved] = p
	return p, nil
}

// Resolve returns the absolute path (or the embedded marker) that Load
// would read for path.
func (l *Loader) Resolve(path string) (string, error) {
	explicit := path
	if explicit == "" {
		explicit = l.getenv(EnvConfigPath)
	}

	if explicit == "" {
		candidate := filepath.Join(l.bundleDir, configs.PolicyFile)
		if abs, ok := existingFile(candidate); ok {
			return abs, nil
		}
		if len(l.bundled) > 0 {
			return embeddedSource, nil
		}
		return "", fmt.Errorf("%w: tried %s", ErrNotFound, candidate)
	}

	explicit = expandHome(explicit)
	candidates := []string{explicit}
	if !filepath.IsAbs(explicit) {
		candidates = append(candidates, filepath.Join(l.bundleDir, explicit))
	}
	for _, c := range candidates {
		if abs, ok := existingFile(c); ok {
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: tried %s", ErrNotFound, strings.Join(candidates, ", "))
}

func existingFile(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", false
	}
	if target, err := filepath.EvalSymlinks(abs); err == nil {
		abs = target
	}
	return abs, true
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
