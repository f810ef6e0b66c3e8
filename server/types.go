package server

import (
	"sync"

	"go.lsp.dev/protocol"
)

// Document is an open text document.
type Document struct {
	URI        protocol.DocumentURI
	LanguageID string
	Version    int32
	Text       string
}

// State holds the server's open documents and workspace root.
type State struct {
	mu       sync.RWMutex
	RootPath string
	docs     map[protocol.DocumentURI]Document
}

func newState() *State {
	return &State{docs: make(map[protocol.DocumentURI]Document)}
}

func (s *State) Document(uri protocol.DocumentURI) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uri]
	return doc, ok
}

func (s *State) Open(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.URI] = doc
}

// Update replaces the text of an open document. It returns false when the
// document is not open.
func (s *State) Update(uri protocol.DocumentURI, version int32, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	if !ok {
		return false
	}
	doc.Version = version
	doc.Text = text
	s.docs[uri] = doc
	return true
}

func (s *State) Close(uri protocol.DocumentURI) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, uri)
}
