package domain

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ObjectPath builds a unique storage path "<owner>/<uuid><ext>" for img.
func ObjectPath(ownerID string, img Image) string {
	return fmt.Sprintf("%s/%s%s", ownerID, uuid.New().String(), imageExt(img))
}

// ContentTypeOf falls back to a type guessed from the file extension.
func ContentTypeOf(img Image) string {
	if img.ContentType != "" {
		return img.ContentType
	}
	if imageExt(img) == ".png" {
		return "image/png"
	}
	return "image/jpeg"
}

func imageExt(img Image) string {
	ext := strings.ToLower(filepath.Ext(img.Name))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".webp", ".heic":
		return ext
	}
	switch img.ContentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	return ".jpg"
}
