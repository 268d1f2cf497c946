// Package prisonconfig answers per-prison configuration questions from a
// YAML file: whether certification approval is required and the default
// signed operation capacity.
package prisonconfig

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MaxFileSize bounds the configuration file read from disk.
const MaxFileSize = 1024 * 1024

// PrisonYAML configures one prison.
type PrisonYAML struct {
	CertificationApprovalRequired *bool `yaml:"certification_approval_required"`
	SignedOperationCapacity       *int  `yaml:"signed_operation_capacity" validate:"omitempty,gte=0"`
}

// FileYAML is the root of the configuration file.
//
//	defaults:
//	  certification_approval_required: true
//	prisons:
//	  MDI:
//	    signed_operation_capacity: 420
//	  LEI:
//	    certification_approval_required: false
type FileYAML struct {
	Defaults PrisonYAML            `yaml:"defaults"`
	Prisons  map[string]PrisonYAML `yaml:"prisons" validate:"dive,keys,required,alphanum,max=5,endkeys"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Registry is a concurrency-safe view of the parsed configuration.
type Registry struct {
	mu   sync.RWMutex
	file FileYAML
}

// New returns a registry where every prison requires certification.
func New() *Registry {
	required := true
	return &Registry{file: FileYAML{Defaults: PrisonYAML{CertificationApprovalRequired: &required}}}
}

// Parse builds a registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var file FileYAML
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse prison configuration: %w", err)
	}
	if err := validate.Struct(file); err != nil {
		return nil, fmt.Errorf("invalid prison configuration: %w", err)
	}
	r := New()
	if file.Defaults.CertificationApprovalRequired == nil {
		file.Defaults.CertificationApprovalRequired = r.file.Defaults.CertificationApprovalRequired
	}
	r.file = file
	return r, nil
}

// Load reads and parses path. An empty path yields New().
func Load(path string) (*Registry, error) {
	if path == "" {
		return New(), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat prison configuration: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("prison configuration %s is %d bytes, limit is %d", path, info.Size(), MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prison configuration: %w", err)
	}
	return Parse(data)
}

// Set overrides one prison, mainly for tests and admin tooling.
func (r *Registry) Set(prisonID string, cfg PrisonYAML) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file.Prisons == nil {
		r.file.Prisons = make(map[string]PrisonYAML)
	}
	r.file.Prisons[prisonID] = cfg
}

// Prisons lists the explicitly configured prison ids.
func (r *Registry) Prisons() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.file.Prisons))
	for id := range r.file.Prisons {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsCertificationApprovalRequired reports whether location changes in the
// prison must go through the approval workflow.
func (r *Registry) IsCertificationApprovalRequired(_ context.Context, prisonID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.file.Prisons[prisonID]; ok && p.CertificationApprovalRequired != nil {
		return *p.CertificationApprovalRequired, nil
	}
	if r.file.Defaults.CertificationApprovalRequired != nil {
		return *r.file.Defaults.CertificationApprovalRequired, nil
	}
	return true, nil
}

// GetSignedOperationCapacity returns the configured signed operation
// capacity, or 0 when none is configured.
func (r *Registry) GetSignedOperationCapacity(_ context.Context, prisonID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.file.Prisons[prisonID]; ok && p.SignedOperationCapacity != nil {
		return *p.SignedOperationCapacity, nil
	}
	if r.file.Defaults.SignedOperationCapacity != nil {
		return *r.file.Defaults.SignedOperationCapacity, nil
	}
	return 0, nil
}
