package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/srg/keylink/internal/hub"
	"github.com/srg/keylink/internal/layout"
	"gopkg.in/yaml.v3"
)

type preferenceValues struct {
	OutputDeviceAddress string `yaml:"output_device_address"`
	OutputDeviceName    string `yaml:"output_device_name"`
	UseExternalDevice   bool   `yaml:"use_external_device"`
	KeyboardLayout      string `yaml:"keyboard_layout"`
	AppendNewline       bool   `yaml:"append_newline"`
}

// FilePreferences persists user settings in a YAML file. Every setter rewrites the file.
type FilePreferences struct {
	mu     sync.RWMutex
	path   string
	values preferenceValues
}

var _ hub.Preferences = (*FilePreferences)(nil)

// OpenPreferences loads the preferences at path. A missing file starts empty.
func OpenPreferences(path string) (*FilePreferences, error) {
	p := &FilePreferences{path: path}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return p, nil
	case err != nil:
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	if err := yaml.Unmarshal(data, &p.values); err != nil {
		return nil, fmt.Errorf("parse preferences %s: %w", path, err)
	}
	return p, nil
}

// Path returns the backing file.
func (p *FilePreferences) Path() string { return p.path }

func (p *FilePreferences) OutputDevice() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.values.OutputDeviceAddress
}

func (p *FilePreferences) OutputDeviceName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.values.OutputDeviceName
}

func (p *FilePreferences) SetOutputDevice(address, name string) error {
	return p.update(func(v *preferenceValues) {
		v.OutputDeviceAddress = address
		v.OutputDeviceName = name
	})
}

func (p *FilePreferences) UseExternalDevice() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.values.UseExternalDevice
}

func (p *FilePreferences) SetUseExternalDevice(enabled bool) error {
	return p.update(func(v *preferenceValues) { v.UseExternalDevice = enabled })
}

// KeyboardLayout returns the stored layout, or the default one when none was stored.
func (p *FilePreferences) KeyboardLayout() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.values.KeyboardLayout == "" {
		return layout.Default
	}
	return p.values.KeyboardLayout
}

func (p *FilePreferences) SetKeyboardLayout(value string) error {
	return p.update(func(v *preferenceValues) { v.KeyboardLayout = value })
}

func (p *FilePreferences) AppendNewline() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.values.AppendNewline
}

func (p *FilePreferences) SetAppendNewline(enabled bool) error {
	return p.update(func(v *preferenceValues) { v.AppendNewline = enabled })
}

// update applies fn and writes the file. The in-memory values are kept unchanged
// when the write fails.
func (p *FilePreferences) update(fn func(*preferenceValues)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.values
	fn(&next)

	data, err := yaml.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	p.values = next
	return nil
}
