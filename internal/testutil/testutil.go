// Package testutil holds helpers shared by docscan tests.
package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Sample document texts as an OCR engine would return them.
const (
	InvoiceText      = "TAX INVOICE\nInvoice No: INV-2024-001\nDate: 12/03/2024\nTotal Rs. 45,000\nGSTIN: 27AAAPL1234C1Z5"
	LorryReceiptText = "LORRY RECEIPT\nLR No: LR-7781\nVehicle: MH 12 AB 1234\nWeight 1200 kg\nContact +91 9876543210"
	PlainText        = "hello world\nnothing structured here"
)

// GetProjectRoot returns the project root directory by finding go.mod.
func GetProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("failed to get caller information")
	}
	dir := filepath.Dir(filename)

	for {
		if FileExists(filepath.Join(dir, "go.mod")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("could not find go.mod file starting from %s", filepath.Dir(filename))
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o750)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
