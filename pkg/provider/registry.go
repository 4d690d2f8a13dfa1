package provider

import (
	"fmt"
	"sort"
	"sync"

	pferrors "github.com/tombee/pixelflow/pkg/errors"
)

// Category names a provider category.
type Category string

const (
	CategoryGenerator Category = "generator"
	CategoryTransform Category = "transform"
	CategoryVision    Category = "vision"
	CategoryText      Category = "text"
	CategorySaver     Category = "saver"
)

// Registry maps provider names to implementations, per category.
// It is safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	generators   map[string]Generator
	transformers map[string]Transformer
	vision       map[string]Vision
	text         map[string]Text
	savers       map[string]Saver
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		generators:   make(map[string]Generator),
		transformers: make(map[string]Transformer),
		vision:       make(map[string]Vision),
		text:         make(map[string]Text),
		savers:       make(map[string]Saver),
	}
}

// RegisterGenerator adds a generator. Registering the same name twice replaces it.
func (r *Registry) RegisterGenerator(name string, g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[name] = g
}

// RegisterTransformer adds a transformer.
func (r *Registry) RegisterTransformer(name string, t Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transformers[name] = t
}

// RegisterVision adds a vision provider.
func (r *Registry) RegisterVision(name string, v Vision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vision[name] = v
}

// RegisterText adds a text provider.
func (r *Registry) RegisterText(name string, t Text) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text[name] = t
}

// RegisterSaver adds a saver.
func (r *Registry) RegisterSaver(name string, s Saver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.savers[name] = s
}

// Generator returns the named generator or a configuration error.
func (r *Registry) Generator(name string) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generators[name]
	if !ok {
		return nil, notRegistered(CategoryGenerator, name)
	}
	return g, nil
}

// Transformer returns the named transformer or a configuration error.
func (r *Registry) Transformer(name string) (Transformer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transformers[name]
	if !ok {
		return nil, notRegistered(CategoryTransform, name)
	}
	return t, nil
}

// Vision returns the named vision provider or a configuration error.
func (r *Registry) Vision(name string) (Vision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vision[name]
	if !ok {
		return nil, notRegistered(CategoryVision, name)
	}
	return v, nil
}

// Text returns the named text provider or a configuration error.
func (r *Registry) Text(name string) (Text, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.text[name]
	if !ok {
		return nil, notRegistered(CategoryText, name)
	}
	return t, nil
}

// Saver returns the named saver or a configuration error.
func (r *Registry) Saver(name string) (Saver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.savers[name]
	if !ok {
		return nil, notRegistered(CategorySaver, name)
	}
	return s, nil
}

// Has reports whether a provider is registered under name in category.
func (r *Registry) Has(category Category, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch category {
	case CategoryGenerator:
		_, ok := r.generators[name]
		return ok
	case CategoryTransform:
		_, ok := r.transformers[name]
		return ok
	case CategoryVision:
		_, ok := r.vision[name]
		return ok
	case CategoryText:
		_, ok := r.text[name]
		return ok
	case CategorySaver:
		_, ok := r.savers[name]
		return ok
	}
	return false
}

// List returns the registered names of a category, sorted alphabetically.
func (r *Registry) List(category Category) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	switch category {
	case CategoryGenerator:
		names = keys(r.generators)
	case CategoryTransform:
		names = keys(r.transformers)
	case CategoryVision:
		names = keys(r.vision)
	case CategoryText:
		names = keys(r.text)
	case CategorySaver:
		names = keys(r.savers)
	}
	sort.Strings(names)
	return names
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// notRegistered is a configuration error: a pipeline referenced a provider
// this engine does not know.
func notRegistered(category Category, name string) error {
	return &pferrors.ConfigError{
		Key:    fmt.Sprintf("%s.%s", category, name),
		Reason: fmt.Sprintf("%s provider %q is not registered", category, name),
		Cause:  &pferrors.NotFoundError{Resource: string(category), ID: name},
	}
}
