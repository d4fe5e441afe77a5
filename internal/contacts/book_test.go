package contacts

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/furni/internal/errs"
)

const sample = `
contacts:
  - name: Jane Doe
    phones: ["(415) 555-0100", "+1 650 555 0111"]
    image: jane.png
    address:
      street: 1355 Market St
      city: San Francisco
      postal_code: "94103"
  - name: John Roe
    phones: ["555-0199", "(415) 555-0100"]
`

func writeBook(t *testing.T, body string) *Book {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return NewBook(path)
}

func TestBook_LookupByPhone(t *testing.T) {
	b := writeBook(t, sample)

	c, err := b.LookupByPhone("+14155550100")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Jane Doe", c.FullName)
	assert.Equal(t, "jane.png", c.ImagePath)
	require.NotNil(t, c.Address)
	assert.Equal(t, "94103", c.Address.PostalCode)

	c, err = b.LookupByPhone("+33612345678")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestBook_LookupByDigits(t *testing.T) {
	b := writeBook(t, sample)
	c, err := b.LookupByDigits("16505550111")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Jane Doe", c.FullName)

	c, err = b.LookupByDigits("")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestBook_PhoneNumbersDeduplicated(t *testing.T) {
	b := writeBook(t, sample)
	got, err := b.PhoneNumbers()
	require.NoError(t, err)
	assert.Equal(t, []string{"(415) 555-0100", "+1 650 555 0111", "555-0199"}, got)
}

func TestBook_MissingFileUnavailable(t *testing.T) {
	b := NewBook(filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := b.LookupByPhone("+14155550100")
	assert.True(t, errors.Is(err, errs.ErrContactsUnavailable))
	_, err = b.PhoneNumbers()
	assert.True(t, errors.Is(err, errs.ErrContactsUnavailable))
}

func TestBook_MalformedFile(t *testing.T) {
	b := writeBook(t, "contacts: [")
	_, err := b.Contacts()
	require.Error(t, err)
	assert.False(t, errors.Is(err, errs.ErrContactsUnavailable))
}
