package bitmap

import (
	"sync"
	"sync/atomic"
)

// Handle identifies a buffer registered with a Backend.
type Handle uint64

// Backend is the renderer side of bitmap storage. It is consulted by
// handle only; buffers never hold renderer objects.
type Backend interface {
	Register(b *Buffer) Handle
	Update(h Handle, b *Buffer, dirty Region) error
	UploadCubeFace(h Handle, side int, b *Buffer) error
	Release(h Handle)
}

// MemoryBackend keeps the last uploaded RGBA bytes per handle. It stands in
// for a renderer in headless runs and tests.
type MemoryBackend struct {
	next     atomic.Uint64
	mu       sync.Mutex
	textures map[Handle][]byte
	faces    map[Handle]map[int][]byte
	updates  int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{textures: make(map[Handle][]byte), faces: make(map[Handle]map[int][]byte)}
}

func (m *MemoryBackend) Register(b *Buffer) Handle {
	h := Handle(m.next.Add(1))
	m.mu.Lock()
	m.textures[h] = b.RGBA()
	m.mu.Unlock()
	return h
}

func (m *MemoryBackend) Update(h Handle, b *Buffer, _ Region) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.textures[h] = b.RGBA()
	m.updates++
	return nil
}

func (m *MemoryBackend) UploadCubeFace(h Handle, side int, b *Buffer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.faces[h] == nil {
		m.faces[h] = make(map[int][]byte)
	}
	m.faces[h][side] = b.RGBA()
	return nil
}

func (m *MemoryBackend) Release(h Handle) {
	m.mu.Lock()
	delete(m.textures, h)
	delete(m.faces, h)
	m.mu.Unlock()
}

// Texture returns the bytes last uploaded for h.
func (m *MemoryBackend) Texture(h Handle) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.textures[h]
	return t, ok
}

// Face returns the bytes uploaded for one cube face.
func (m *MemoryBackend) Face(h Handle, side int) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.faces[h][side]
	return f, ok
}

// Updates counts Update calls.
func (m *MemoryBackend) Updates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}
