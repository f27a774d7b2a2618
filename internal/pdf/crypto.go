package pdf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrPasswordRequired is returned when an encrypted document is opened
// without credentials.
var ErrPasswordRequired = errors.New("pdf is password protected")

const decryptedPattern = "docscan-decrypted-*.pdf"

// PasswordCredentials contains the passwords for a PDF file.
type PasswordCredentials struct {
	UserPassword  string `json:"user_password,omitempty"`
	OwnerPassword string `json:"owner_password,omitempty"`
}

// Empty reports whether no password is set.
func (c *PasswordCredentials) Empty() bool {
	return c == nil || (c.UserPassword == "" && c.OwnerPassword == "")
}

// PasswordHandler decrypts password-protected PDFs into temporary files.
type PasswordHandler struct {
	defaultCredentials *PasswordCredentials
}

// NewPasswordHandler creates a new password handler.
func NewPasswordHandler() *PasswordHandler {
	return &PasswordHandler{}
}

// SetDefaultCredentials sets credentials used when a call passes none.
func (h *PasswordHandler) SetDefaultCredentials(creds *PasswordCredentials) {
	h.defaultCredentials = creds
}

// IsEncrypted checks if a PDF file is encrypted/password-protected.
func (h *PasswordHandler) IsEncrypted(filename string) (bool, error) {
	if _, err := api.PageCountFile(filename); err != nil {
		if IsPasswordError(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to check PDF encryption status: %w", err)
	}
	return false, nil
}

// DecryptPDF returns a path that can be read without a password. For
// unencrypted input that is filename itself; otherwise a temporary file the
// caller removes with CleanupTempFile.
func (h *PasswordHandler) DecryptPDF(filename string, creds *PasswordCredentials) (string, error) {
	encrypted, err := h.IsEncrypted(filename)
	if err != nil {
		return "", err
	}
	if !encrypted {
		return filename, nil
	}

	config := h.decryptionConfig(creds)
	if config.UserPW == "" && config.OwnerPW == "" {
		return "", fmt.Errorf("%s: %w", filepath.Base(filename), ErrPasswordRequired)
	}

	tempFile, err := os.CreateTemp("", decryptedPattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	_ = tempFile.Close()

	if err := api.DecryptFile(filename, tempFile.Name(), config); err != nil {
		_ = os.Remove(tempFile.Name())
		return "", fmt.Errorf("failed to decrypt PDF: %w", err)
	}
	return tempFile.Name(), nil
}

func (h *PasswordHandler) decryptionConfig(creds *PasswordCredentials) *model.Configuration {
	config := model.NewDefaultConfiguration()
	if creds.Empty() {
		creds = h.defaultCredentials
	}
	if !creds.Empty() {
		config.UserPW = creds.UserPassword
		config.OwnerPW = creds.OwnerPassword
	}
	return config
}

// CleanupTempFile removes a file created by DecryptPDF. Other paths are left alone.
func (h *PasswordHandler) CleanupTempFile(filename string) error {
	if filename == "" {
		return nil
	}
	base := filepath.Base(filename)
	if strings.HasPrefix(base, "docscan-decrypted-") && strings.HasSuffix(base, ".pdf") {
		return os.Remove(filename)
	}
	return nil
}

// IsPasswordError checks if an error is related to password/encryption issues.
func IsPasswordError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPasswordRequired) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, keyword := range []string{"password", "encrypted", "decrypt", "authentication", "invalid credentials"} {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}
	return false
}
