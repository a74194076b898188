package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vocegate/vocegate/internal/modelservice"
	"github.com/vocegate/vocegate/pkg/provider/embeddings"
	"github.com/vocegate/vocegate/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind vocegate depends on. It is safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	modelService map[string]func(ProviderEntry) (modelservice.Provider, error)
	llm          map[string]func(ProviderEntry) (llm.Provider, error)
	embeddings   map[string]func(ProviderEntry) (embeddings.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		modelService: make(map[string]func(ProviderEntry) (modelservice.Provider, error)),
		llm:          make(map[string]func(ProviderEntry) (llm.Provider, error)),
		embeddings:   make(map[string]func(ProviderEntry) (embeddings.Provider, error)),
	}
}

// RegisterModelService registers a speech-to-speech model service provider
// factory under name.
func (r *Registry) RegisterModelService(name string, factory func(ProviderEntry) (modelservice.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modelService[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// CreateModelService instantiates a model service provider using the factory
// registered under entry.Name.
func (r *Registry) CreateModelService(entry ProviderEntry) (modelservice.Provider, error) {
	r.mu.RLock()
	factory, ok := r.modelService[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: model_service/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateEmbeddings instantiates an embeddings provider using the factory registered under entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embeddings[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
