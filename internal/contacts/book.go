// Package contacts reads the local address book, a YAML file.
package contacts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/model"
)

type document struct {
	Contacts []model.Contact `yaml:"contacts"`
}

// Book is an address book backed by a file. The file is read on every call so
// edits are picked up without a restart.
type Book struct {
	path string
}

func NewBook(path string) *Book {
	return &Book{path: path}
}

// Contacts returns every entry. A missing or unreadable file yields
// ErrContactsUnavailable.
func (b *Book) Contacts() ([]model.Contact, error) {
	raw, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", errs.ErrContactsUnavailable, b.path)
		}
		return nil, err
	}
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse address book: %w", err)
	}
	return doc.Contacts, nil
}

// LookupByPhone returns the first contact with a number matching phone, or nil.
func (b *Book) LookupByPhone(phone string) (*model.Contact, error) {
	all, err := b.Contacts()
	if err != nil {
		return nil, err
	}
	for i := range all {
		for _, n := range all[i].PhoneNumbers {
			if model.PhoneMatches(n, phone) {
				return &all[i], nil
			}
		}
	}
	return nil, nil
}

// LookupByDigits returns the first contact whose number normalizes to digits.
func (b *Book) LookupByDigits(digits string) (*model.Contact, error) {
	if digits == "" {
		return nil, nil
	}
	all, err := b.Contacts()
	if err != nil {
		return nil, err
	}
	for i := range all {
		for _, n := range all[i].PhoneNumbers {
			if model.PhoneDigits(n) == digits {
				return &all[i], nil
			}
		}
	}
	return nil, nil
}

// PhoneNumbers lists every number in the book, deduplicated, in file order.
func (b *Book) PhoneNumbers() ([]string, error) {
	all, err := b.Contacts()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, c := range all {
		for _, n := range c.PhoneNumbers {
			if _, ok := seen[n]; ok || n == "" {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out, nil
}
