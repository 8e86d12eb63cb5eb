package outcomes

import (
	"context"
	"fmt"
	"sync"

	"verdict/internal/rules"
)

// VocabularyProvider serves the current allowed-outcome vocabulary to the
// compiler. The vocabulary changes rarely; it is cached and refreshed on the
// same invalidation events that rebuild rulesets.
type VocabularyProvider struct {
	repo  Repository
	mu    sync.RWMutex
	vocab rules.Vocabulary
}

func NewVocabularyProvider(repo Repository) *VocabularyProvider {
	return &VocabularyProvider{repo: repo}
}

// Current returns the cached vocabulary, loading it on first use.
func (p *VocabularyProvider) Current(ctx context.Context) (rules.Vocabulary, error) {
	p.mu.RLock()
	vocab := p.vocab
	p.mu.RUnlock()

	if vocab != nil {
		return vocab, nil
	}
	return p.Reload(ctx)
}

func (p *VocabularyProvider) Reload(ctx context.Context) (rules.Vocabulary, error) {
	list, err := p.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load outcome vocabulary: %w", err)
	}

	names := make([]string, 0, len(list))
	for _, o := range list {
		names = append(names, o.Name)
	}
	vocab := rules.NewVocabulary(names)

	p.mu.Lock()
	p.vocab = vocab
	p.mu.Unlock()

	return vocab, nil
}

// Invalidate drops the cached vocabulary so the next Current reloads it.
func (p *VocabularyProvider) Invalidate() {
	p.mu.Lock()
	p.vocab = nil
	p.mu.Unlock()
}
