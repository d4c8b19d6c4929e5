package testutils

import "sync"

// MemoryPreferences is an in-memory preference store for tests.
type MemoryPreferences struct {
	mu         sync.Mutex
	address    string
	name       string
	useDevice  bool
	layout     string
	newline    bool
	SetErr     error
	layoutSets int
}

// NewMemoryPreferences creates a store with the external device enabled and selected.
func NewMemoryPreferences(address string) *MemoryPreferences {
	return &MemoryPreferences{address: address, useDevice: address != ""}
}

func (p *MemoryPreferences) OutputDevice() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.address
}

func (p *MemoryPreferences) OutputDeviceName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

func (p *MemoryPreferences) SetOutputDevice(address, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SetErr != nil {
		return p.SetErr
	}
	p.address, p.name = address, name
	return nil
}

func (p *MemoryPreferences) UseExternalDevice() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.useDevice
}

func (p *MemoryPreferences) SetUseExternalDevice(enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SetErr != nil {
		return p.SetErr
	}
	p.useDevice = enabled
	return nil
}

func (p *MemoryPreferences) KeyboardLayout() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.layout
}

func (p *MemoryPreferences) SetKeyboardLayout(layout string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SetErr != nil {
		return p.SetErr
	}
	p.layout = layout
	p.layoutSets++
	return nil
}

// LayoutWrites returns how many times the layout was persisted.
func (p *MemoryPreferences) LayoutWrites() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.layoutSets
}

func (p *MemoryPreferences) AppendNewline() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.newline
}

func (p *MemoryPreferences) SetAppendNewline(enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SetErr != nil {
		return p.SetErr
	}
	p.newline = enabled
	return nil
}
