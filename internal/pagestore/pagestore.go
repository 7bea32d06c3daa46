// Package pagestore persists raw API responses for offline replay.
//
// A store holds the search pages and author documents of one harvest run
// under a single directory. The store is written during live runs and read
// only by replay; the fetch path never consults it.
package pagestore

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/helixir/affiliation-harvester/internal/domain"
	"github.com/helixir/affiliation-harvester/internal/fetch"
)

const (
	pagePrefix   = "page-"
	authorPrefix = "author-"
	fileSuffix   = ".xml"
)

// Store reads and writes raw harvest documents under one directory.
type Store struct {
	dir string
}

// New creates a store rooted at dir. The directory is created on first write.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// SavePage writes one raw search page keyed by its offset.
func (s *Store) SavePage(offset int, body []byte) error {
	if offset < 0 {
		return domain.NewValidationError("offset", "must be non-negative")
	}
	return s.write(fmt.Sprintf("%s%08d%s", pagePrefix, offset, fileSuffix), body)
}

// SaveAuthor writes one raw author document keyed by the author id.
func (s *Store) SaveAuthor(authorID string, body []byte) error {
	if authorID == "" {
		return domain.NewValidationError("author_id", "must not be empty")
	}
	return s.write(authorPrefix+url.PathEscape(authorID)+fileSuffix, body)
}

func (s *Store) write(name string, body []byte) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), body, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// LoadPages returns every stored search page ordered by offset.
// Files that do not follow the page naming scheme are ignored.
func (s *Store) LoadPages() ([]fetch.RawPage, error) {
	entries, err := s.list()
	if err != nil {
		return nil, err
	}

	var pages []fetch.RawPage
	for _, name := range entries {
		rest, ok := strings.CutPrefix(name, pagePrefix)
		if !ok {
			continue
		}
		offset, err := strconv.Atoi(strings.TrimSuffix(rest, fileSuffix))
		if err != nil {
			continue
		}
		body, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		pages = append(pages, fetch.RawPage{Offset: offset, Body: body})
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].Offset < pages[j].Offset })
	return pages, nil
}

// LoadAuthors returns every stored author document keyed by author id.
func (s *Store) LoadAuthors() ([]fetch.RawDocument, error) {
	entries, err := s.list()
	if err != nil {
		return nil, err
	}

	var docs []fetch.RawDocument
	for _, name := range entries {
		rest, ok := strings.CutPrefix(name, authorPrefix)
		if !ok {
			continue
		}
		authorID, err := url.PathUnescape(strings.TrimSuffix(rest, fileSuffix))
		if err != nil || authorID == "" {
			continue
		}
		body, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		docs = append(docs, fetch.RawDocument{Key: authorID, Body: body})
	}
	return docs, nil
}

func (s *Store) list() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NewNotFoundError("store directory", s.dir)
		}
		return nil, fmt.Errorf("reading store directory: %w", err)
	}

	var names []string
	for _, entry := range dirEntries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}
