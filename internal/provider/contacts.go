package provider

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/furni/internal/wire"
)

// maxMatchPages stops a misbehaving cursor from looping forever.
const maxMatchPages = 1000

// PhoneBook lists the address-book numbers to upload.
type PhoneBook interface {
	PhoneNumbers() ([]string, error)
}

// ContactsBackend stores uploaded numbers and reports registered matches.
type ContactsBackend interface {
	UploadContacts(ctx context.Context, phones []string) (int, error)
	ContactMatches(ctx context.Context, cursor string) ([]wire.Match, string, error)
}

// UploadResult summarizes a contacts upload.
type UploadResult struct {
	Uploaded int
	// DigitsUserIDs of the matched users, in server order, deduplicated.
	DigitsUserIDs []string
}

// ContactsUploader uploads the address book and collects every match page.
type ContactsUploader struct {
	book PhoneBook
	log  *zap.Logger
}

func NewContactsUploader(book PhoneBook, log *zap.Logger) *ContactsUploader {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContactsUploader{book: book, log: log.Named("contacts")}
}

// Upload sends the address book through be and walks the match cursor.
func (u *ContactsUploader) Upload(ctx context.Context, be ContactsBackend) (UploadResult, error) {
	phones, err := u.book.PhoneNumbers()
	if err != nil {
		return UploadResult{}, err
	}
	n, err := be.UploadContacts(ctx, phones)
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload contacts: %w", err)
	}
	u.log.Info("contacts uploaded", zap.Int("count", n))

	res := UploadResult{Uploaded: n}
	seen := make(map[string]struct{})
	cursor := ""
	for page := 0; ; page++ {
		if page == maxMatchPages {
			return UploadResult{}, errors.New("contact matches: too many pages")
		}
		matches, next, err := be.ContactMatches(ctx, cursor)
		if err != nil {
			return UploadResult{}, fmt.Errorf("lookup contact matches: %w", err)
		}
		for _, m := range matches {
			if _, ok := seen[m.DigitsID]; ok || m.DigitsID == "" {
				continue
			}
			seen[m.DigitsID] = struct{}{}
			res.DigitsUserIDs = append(res.DigitsUserIDs, m.DigitsID)
		}
		if next == "" || next == cursor {
			break
		}
		cursor = next
	}
	u.log.Debug("contact matches collected", zap.Int("matches", len(res.DigitsUserIDs)))
	return res, nil
}
