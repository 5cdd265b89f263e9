package provider

import (
	"fmt"
	"slices"
	"sync"

	"golang.org/x/text/cases"
)

// List is the process-wide, priority-ordered provider list. Positions are
// 1-based; position 1 has the highest priority.
type List interface {
	// Providers returns a snapshot of the installed providers in priority order.
	Providers() []Provider

	// Lookup finds a provider by case-insensitive name and returns its position.
	Lookup(name string) (Provider, int, bool)

	// Insert installs p at pos and returns the position it landed on. A
	// position of zero or past the end appends.
	Insert(p Provider, pos int) (int, error)

	// Remove uninstalls the provider with the given name.
	Remove(name string) error
}

// foldName returns the identity key of a provider name.
func foldName(name string) string {
	return cases.Fold().String(name)
}

// memoryList is the default List, guarded by a mutex.
type memoryList struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewList returns an empty in-memory provider list.
func NewList(providers ...Provider) List {
	l := &memoryList{}
	for _, p := range providers {
		_, _ = l.Insert(p, 0)
	}
	return l
}

func (l *memoryList) Providers() []Provider {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.providers)
}

func (l *memoryList) Lookup(name string) (Provider, int, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	key := foldName(name)
	for i, p := range l.providers {
		if foldName(p.Name()) == key {
			return p, i + 1, true
		}
	}
	return nil, 0, false
}

func (l *memoryList) Insert(p Provider, pos int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := foldName(p.Name())
	for _, existing := range l.providers {
		if foldName(existing.Name()) == key {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateProvider, p.Name())
		}
	}

	if pos <= 0 || pos > len(l.providers) {
		l.providers = append(l.providers, p)
		return len(l.providers), nil
	}
	l.providers = slices.Insert(l.providers, pos-1, p)
	return pos, nil
}

func (l *memoryList) Remove(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := foldName(name)
	for i, p := range l.providers {
		if foldName(p.Name()) == key {
			l.providers = slices.Delete(l.providers, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
}

func providerNames(providers []Provider) []string {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}
	return names
}
