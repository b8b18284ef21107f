// SPDX-License-Identifier: MPL-2.0

package pkgindex

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"coqpkg/pkg/coqpkg"
	"coqpkg/pkg/engine"
)

// DefaultCacheSize bounds the module lookup cache.
const DefaultCacheSize = 1024

// State is the load state of one package.
type State int

const (
	// Unknown packages have no manifest and no load in flight.
	Unknown State = iota
	// Indexed packages have a manifest but are not loaded.
	Indexed
	// Loading packages have a load in flight.
	Loading
	// Loaded packages are installed in the engine.
	Loaded
)

type (
	// Loader issues one batch load request for archive URIs. Completion is
	// reported later through HandleMessage.
	Loader interface {
		LoadPackages(ctx context.Context, uris []string) error
	}

	// LoaderFunc adapts a function to Loader.
	LoaderFunc func(ctx context.Context, uris []string) error

	// Options configures an Index.
	Options struct {
		// Loader sends load requests. Required for LoadPackages.
		Loader Loader
		// Fetcher retrieves manifests. Required for LoadInfo and Populate.
		Fetcher engine.Fetcher
		// CacheSize bounds the FindModule cache. Defaults to DefaultCacheSize.
		CacheSize int
		// Logger defaults to slog.Default().
		Logger *slog.Logger
	}

	// UnresolvedModuleError reports a module no indexed package provides.
	UnresolvedModuleError struct {
		Module string
	}

	// Index is the runtime package index. All methods are safe for
	// concurrent use.
	Index struct {
		mu          sync.Mutex
		pkgs        map[string]*coqpkg.Manifest
		order       []string
		owner       map[string]string
		moduleOrder []string
		loaded      map[string]bool
		futures     map[string]*Future
		uriNames    map[string]string
		failed      map[string]bool

		cache   *lru.Cache[string, string]
		loader  Loader
		fetcher engine.Fetcher
		logger  *slog.Logger
	}
)

// LoadPackages calls f.
func (f LoaderFunc) LoadPackages(ctx context.Context, uris []string) error {
	return f(ctx, uris)
}

// Error implements the error interface.
func (e *UnresolvedModuleError) Error() string {
	return fmt.Sprintf("module %s is not provided by any indexed package", e.Module)
}

// String returns the state name.
func (s State) String() string {
	switch s {
	case Indexed:
		return "indexed"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// New returns an empty index.
func New(opts Options) *Index {
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		panic(fmt.Sprintf("pkgindex: lru cache: %v", err))
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		pkgs:     make(map[string]*coqpkg.Manifest),
		owner:    make(map[string]string),
		loaded:   make(map[string]bool),
		futures:  make(map[string]*Future),
		uriNames: make(map[string]string),
		failed:   make(map[string]bool),
		cache:    cache,
		loader:   opts.Loader,
		fetcher:  opts.Fetcher,
		logger:   logger,
	}
}

// Add indexes a manifest fetched from manifestURI (which may be empty).
// A manifest without an archive location gets one derived from its URI.
// Modules already provided by another package are reassigned to this one.
func (x *Index) Add(m *coqpkg.Manifest, manifestURI string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if m.Archive == "" && manifestURI != "" {
		m.Archive = coqpkg.ArchiveURIFor(manifestURI)
	}
	if _, ok := x.pkgs[m.Name]; !ok {
		x.order = append(x.order, m.Name)
	}
	x.pkgs[m.Name] = m
	for _, mod := range m.ModuleNames() {
		if _, ok := x.owner[mod]; !ok {
			x.moduleOrder = append(x.moduleOrder, mod)
		}
		x.owner[mod] = m.Name
	}
	if m.Archive != "" {
		x.uriNames[m.Archive] = m.Name
	}
	x.cache.Purge()
}

// Populate loads the manifests BASEURI/NAME.json for each name.
func (x *Index) Populate(ctx context.Context, names []string, baseURI string) error {
	uris := make([]string, 0, len(names))
	for _, n := range names {
		uris = append(uris, strings.TrimSuffix(baseURI, "/")+"/"+n+coqpkg.ManifestExt)
	}
	return x.LoadInfo(ctx, uris)
}

// LoadInfo fetches and indexes manifests. Fetches run concurrently; the
// manifests are added in uris order once all have arrived. Any failure
// leaves the index unchanged.
func (x *Index) LoadInfo(ctx context.Context, uris []string) error {
	if x.fetcher == nil {
		return fmt.Errorf("pkgindex: no fetcher configured")
	}
	manifests := make([]*coqpkg.Manifest, len(uris))
	g, gctx := errgroup.WithContext(ctx)
	for i, uri := range uris {
		g.Go(func() error {
			data, err := x.fetcher.Fetch(gctx, uri)
			if err != nil {
				return fmt.Errorf("fetch manifest %s: %w", uri, err)
			}
			m, err := coqpkg.Decode(data)
			if err != nil {
				return fmt.Errorf("manifest %s: %w", uri, err)
			}
			manifests[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, m := range manifests {
		x.Add(m, uris[i])
	}
	return nil
}

// ComputeModuleDeps returns mods plus every module they transitively
// require according to the manifests, each once, in breadth-first
// discovery order.
func (x *Index) ComputeModuleDeps(mods []string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	seen := make(map[string]bool, len(mods))
	var out []string
	for _, m := range mods {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	for i := 0; i < len(out); i++ {
		for _, dep := range x.moduleDepsLocked(out[i]) {
			if !seen[dep] {
				seen[dep] = true
				out = append(out, dep)
			}
		}
	}
	return out
}

func (x *Index) moduleDepsLocked(mod string) []string {
	pkg, ok := x.owner[mod]
	if !ok {
		return nil
	}
	return x.pkgs[pkg].Modules[mod].Deps
}

// PackagesFor maps the dependency closure of mods to owning packages, in
// order of first appearance. Modules no package provides are logged and
// left out.
func (x *Index) PackagesFor(mods []string) []string {
	closure := x.ComputeModuleDeps(mods)
	x.mu.Lock()
	defer x.mu.Unlock()
	var pkgs []string
	for _, m := range closure {
		pkg, ok := x.owner[m]
		if !ok {
			x.logger.Warn("unresolved module", "error", &UnresolvedModuleError{Module: m})
			continue
		}
		if !slices.Contains(pkgs, pkg) {
			pkgs = append(pkgs, pkg)
		}
	}
	return pkgs
}

// LoadModuleDeps loads every package needed by mods and their
// dependencies.
func (x *Index) LoadModuleDeps(ctx context.Context, mods []string) (Group, error) {
	return x.LoadPackages(ctx, x.PackagesFor(mods))
}

// LoadPackages requests the named packages. Loaded packages are skipped;
// a package already loading contributes its existing future; the rest are
// requested in a single batch, in the given order. The returned group
// covers every requested package that was not already loaded. If the
// request cannot be sent the newly issued futures are rejected.
func (x *Index) LoadPackages(ctx context.Context, names []string) (Group, error) {
	x.mu.Lock()
	var (
		group Group
		issue []string
		uris  []string
	)
	for _, name := range names {
		if x.loaded[name] || slices.Contains(issue, name) {
			continue
		}
		f, ok := x.futures[name]
		if !ok {
			f = NewFuture()
			x.futures[name] = f
			issue = append(issue, name)
			uri := x.archiveURILocked(name)
			x.uriNames[uri] = name
			uris = append(uris, uri)
		}
		if !slices.Contains(group, f) {
			group = append(group, f)
		}
	}
	x.mu.Unlock()

	if len(issue) == 0 {
		return group, nil
	}
	if x.loader == nil {
		err := fmt.Errorf("pkgindex: no loader configured")
		x.rejectIssued(issue, err)
		return group, err
	}
	x.logger.Debug("loading packages", "packages", issue)
	if err := x.loader.LoadPackages(ctx, uris); err != nil {
		err = fmt.Errorf("load packages %s: %w", strings.Join(issue, ", "), err)
		x.rejectIssued(issue, err)
		return group, err
	}
	return group, nil
}

func (x *Index) archiveURILocked(name string) string {
	if m, ok := x.pkgs[name]; ok && m.Archive != "" {
		return m.Archive
	}
	return "+" + name
}

func (x *Index) rejectIssued(names []string, err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, n := range names {
		if f, ok := x.futures[n]; ok {
			f.Reject(err)
			delete(x.futures, n)
		}
	}
}

// HandleMessage applies a load notification and reports whether msg was
// one. A completed LibProgress or a LoadedPkg marks its packages Loaded
// and resolves their futures, including loads nobody requested. LibError
// rejects the package's future so a later request retries it.
func (x *Index) HandleMessage(msg engine.Message) bool {
	switch m := msg.(type) {
	case engine.LibProgress:
		if m.Done {
			x.markURI(m.URI)
		}
	case engine.LibError:
		x.mu.Lock()
		name := x.nameForLocked(m.URI)
		x.failed[m.URI] = true
		if f, ok := x.futures[name]; ok {
			f.Reject(fmt.Errorf("load package %s: %s", name, m.Msg))
			delete(x.futures, name)
		}
		x.mu.Unlock()
		x.logger.Warn("package load failed", "package", name, "uri", m.URI, "error", m.Msg)
	case engine.LoadedPkg:
		for _, uri := range m.URIs {
			x.mu.Lock()
			failed := x.failed[uri]
			delete(x.failed, uri)
			x.mu.Unlock()
			if !failed {
				x.markURI(uri)
			}
		}
	default:
		return false
	}
	return true
}

func (x *Index) markURI(uri string) {
	x.mu.Lock()
	name := x.nameForLocked(uri)
	x.mu.Unlock()
	x.MarkLoaded(name)
}

// nameForLocked maps a load URI back to a package name, falling back to
// the URI's base name.
func (x *Index) nameForLocked(uri string) string {
	if name, ok := x.uriNames[uri]; ok {
		return name
	}
	return coqpkg.NameFromURI(uri)
}

// MarkLoaded records packages as loaded and resolves their futures.
func (x *Index) MarkLoaded(names ...string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, name := range names {
		x.loaded[name] = true
		if f, ok := x.futures[name]; ok {
			f.Resolve()
			delete(x.futures, name)
		}
	}
}

// State returns the load state of a package.
func (x *Index) State(name string) State {
	x.mu.Lock()
	defer x.mu.Unlock()
	switch {
	case x.loaded[name]:
		return Loaded
	case x.futures[name] != nil:
		return Loading
	case x.pkgs[name] != nil:
		return Indexed
	default:
		return Unknown
	}
}

// Manifest returns an indexed manifest.
func (x *Index) Manifest(name string) (*coqpkg.Manifest, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	m, ok := x.pkgs[name]
	return m, ok
}

// Packages returns the indexed package names in the order first added.
func (x *Index) Packages() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return slices.Clone(x.order)
}

// Owner returns the package providing a module.
func (x *Index) Owner(module string) (string, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	p, ok := x.owner[module]
	return p, ok
}

// FindModule returns the first indexed module, in indexing order, whose
// dotted name starts with prefix and either equals suffix or ends with
// "."+suffix. An empty prefix matches every module.
func (x *Index) FindModule(prefix, suffix string) (string, bool) {
	key := prefix + "\x00" + suffix
	if mod, ok := x.cache.Get(key); ok {
		return mod, true
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	dotPrefix := ""
	if prefix != "" {
		dotPrefix = prefix + "."
	}
	dotSuffix := "." + suffix
	for _, mod := range x.moduleOrder {
		if strings.HasPrefix(mod, dotPrefix) && (mod == suffix || strings.HasSuffix(mod, dotSuffix)) {
			x.cache.Add(key, mod)
			return mod, true
		}
	}
	return "", false
}

// FindModules resolves each reference under prefix. References matching
// nothing are logged and dropped.
func (x *Index) FindModules(prefix string, refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		mod, ok := x.FindModule(prefix, ref)
		if !ok {
			x.logger.Warn("unresolved module reference", "prefix", prefix, "reference", ref)
			continue
		}
		out = append(out, mod)
	}
	return out
}
