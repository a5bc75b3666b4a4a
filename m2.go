// Package m2 ties the engine together for embedding: one session per canvas,
// persisted through a document store.
package m2

import (
	"context"

	"oss.mindsketch.dev/m2/m2editor"
	"oss.mindsketch.dev/m2/m2store"
	"oss.mindsketch.dev/m2/m2workspace"
)

// Session is an editor bound to the workspace it edits. The host feeds
// pointer and keyboard events to Editor and renders from Workspace.Graph;
// all state mutation happens synchronously inside those event calls.
type Session struct {
	Workspace *m2workspace.Workspace
	Editor    *m2editor.Editor
}

func New() *Session {
	ws := m2workspace.New()
	return &Session{
		Workspace: ws,
		Editor:    m2editor.New(ws),
	}
}

// Open hydrates a session from the persisted workspace in store. A backend
// with no data yet yields the default workspace.
func Open(ctx context.Context, store m2store.Store) (*Session, error) {
	doc, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	s := New()
	s.Workspace.Deserialize(doc)
	return s, nil
}

// Save writes the session's workspace through store as one document and
// clears the dirty flag on success. On failure the in-memory state stays
// authoritative and remains dirty.
func Save(ctx context.Context, store m2store.Store, s *Session) error {
	err := store.Save(ctx, s.Workspace.Serialize())
	if err != nil {
		return err
	}
	s.Workspace.ClearDirty()
	return nil
}
