package pathutil

import (
	"path/filepath"
	"strings"
)

// Category names. Auto asks the manager to detect one from the file name.
const (
	CategoryAuto      = "Auto"
	CategoryVideo     = "Video"
	CategoryAudio     = "Audio"
	CategoryImages    = "Images"
	CategoryArchives  = "Archives"
	CategoryDocuments = "Documents"
	CategoryPrograms  = "Programs"
	CategoryOther     = "Other"
)

var categoryByExt = map[string]string{}

func init() {
	for cat, exts := range map[string][]string{
		CategoryVideo:     {"mp4", "mkv", "mov", "avi", "webm"},
		CategoryAudio:     {"mp3", "wav", "aac", "flac", "m4a", "ogg"},
		CategoryImages:    {"jpg", "jpeg", "png", "gif", "bmp", "webp"},
		CategoryArchives:  {"zip", "rar", "7z", "tar", "gz", "bz2"},
		CategoryDocuments: {"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "txt", "md"},
		CategoryPrograms:  {"dmg", "exe", "msi", "pkg", "app"},
	} {
		for _, e := range exts {
			categoryByExt[e] = cat
		}
	}
}

// Categories lists the category names in display order.
func Categories() []string {
	return []string{
		CategoryAuto, CategoryVideo, CategoryAudio, CategoryImages,
		CategoryArchives, CategoryDocuments, CategoryPrograms, CategoryOther,
	}
}

// DetectCategory maps a file name to a category by its last extension.
func DetectCategory(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if cat, ok := categoryByExt[ext]; ok {
		return cat
	}
	return CategoryOther
}
