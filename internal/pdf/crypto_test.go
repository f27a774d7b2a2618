package pdf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordCredentials_Empty(t *testing.T) {
	var nilCreds *PasswordCredentials
	assert.True(t, nilCreds.Empty())
	assert.True(t, (&PasswordCredentials{}).Empty())
	assert.False(t, (&PasswordCredentials{UserPassword: "u"}).Empty())
	assert.False(t, (&PasswordCredentials{OwnerPassword: "o"}).Empty())
}

func TestDecryptionConfig(t *testing.T) {
	h := NewPasswordHandler()

	conf := h.decryptionConfig(nil)
	assert.Empty(t, conf.UserPW)
	assert.Empty(t, conf.OwnerPW)

	h.SetDefaultCredentials(&PasswordCredentials{UserPassword: "default"})
	assert.Equal(t, "default", h.decryptionConfig(nil).UserPW)

	conf = h.decryptionConfig(&PasswordCredentials{UserPassword: "given", OwnerPassword: "owner"})
	assert.Equal(t, "given", conf.UserPW)
	assert.Equal(t, "owner", conf.OwnerPW)
}

func TestIsEncrypted_MissingFile(t *testing.T) {
	_, err := NewPasswordHandler().IsEncrypted("/non/existent/file.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to check PDF encryption status")
}

func TestCleanupTempFile(t *testing.T) {
	h := NewPasswordHandler()
	dir := t.TempDir()

	ours := filepath.Join(dir, "docscan-decrypted-123.pdf")
	theirs := filepath.Join(dir, "invoice.pdf")
	require.NoError(t, os.WriteFile(ours, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(theirs, []byte("x"), 0o600))

	require.NoError(t, h.CleanupTempFile(ours))
	require.NoError(t, h.CleanupTempFile(theirs))
	require.NoError(t, h.CleanupTempFile(""))

	_, err := os.Stat(ours)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(theirs)
	assert.NoError(t, err)
}

func TestIsPasswordError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("file not found"), false},
		{errors.New("pdfcpu: please provide the correct password"), true},
		{errors.New("this file is Encrypted"), true},
		{fmt.Errorf("open: %w", ErrPasswordRequired), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsPasswordError(tt.err), "%v", tt.err)
	}
}
