package docstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/freightflow/extractd/internal/common"
)

// Memory keeps documents in process, for tests.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]memoryDoc
}

type memoryDoc struct {
	data []byte
	mime string
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]memoryDoc)}
}

func (m *Memory) Put(_ context.Context, _ string, data []byte, mimeHint string) (string, error) {
	ref := uuid.New().String()
	cp := make([]byte, len(data))
	copy(cp, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[ref] = memoryDoc{data: cp, mime: mimeHint}
	return ref, nil
}

func (m *Memory) Get(_ context.Context, ref string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[ref]
	if !ok {
		return nil, "", common.ErrNotFound
	}
	cp := make([]byte, len(doc.data))
	copy(cp, doc.data)
	return cp, doc.mime, nil
}
