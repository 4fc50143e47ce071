/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-09

This file provides password protected archives for verification reports. It includes:

- Creation of an encrypted ZIP archive from one or more report files
- Generation of a random archive password when none is given

Reports contain cluster endpoints and component details, so they are shared
as encrypted archives.
*/

package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alexmullins/zip"
)

// CompressWithPassword writes sources into an encrypted archive at zipPath
func CompressWithPassword(zipPath, password string, sources ...string) error {
	if password == "" {
		return fmt.Errorf("archive password cannot be empty")
	}
	if len(sources) == 0 {
		return fmt.Errorf("nothing to archive")
	}

	zipFile, err := os.OpenFile(zipPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create zip file: %w", err)
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)
	for _, source := range sources {
		if err := addEncrypted(zipWriter, source, password); err != nil {
			zipWriter.Close()
			return err
		}
	}
	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish zip file: %w", err)
	}
	return nil
}

func addEncrypted(w *zip.Writer, sourcePath, password string) error {
	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", sourcePath, err)
	}
	defer sourceFile.Close()

	entry, err := w.Encrypt(filepath.Base(sourcePath), password)
	if err != nil {
		return fmt.Errorf("failed to create encrypted entry for %s: %w", sourcePath, err)
	}
	if _, err := io.Copy(entry, sourceFile); err != nil {
		return fmt.Errorf("failed to write %s to zip: %w", sourcePath, err)
	}
	return nil
}

// RandomPassword returns a random hex password of 2*n characters
func RandomPassword(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate archive password: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
