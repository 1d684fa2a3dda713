package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	// FolderRecordings is the object prefix for ingested recording media.
	FolderRecordings = "zoom_recordings"
	// FolderThumbnails is the object prefix for extracted video thumbnails.
	FolderThumbnails = "media/video_thumbnails"
	// FolderUploads is the object prefix for the admin direct-upload flow.
	FolderUploads = "uploads"

	keyTimeLayout = "20060102_150405"

	// MaxUploadBytes caps admin direct uploads (videos included).
	MaxUploadBytes = int64(4) << 30
)

// Allowed upload MIME types and extensions for the admin direct-upload flow.
var (
	AllowedUploadTypes = map[string]string{
		"video/mp4":       ".mp4",
		"video/quicktime": ".mp4",
		"image/jpeg":      ".jpg",
		"image/png":       ".png",
		"image/webp":      ".webp",
	}
	AllowedUploadExtensions = map[string]string{
		".mp4":  "video/mp4",
		".mov":  "video/quicktime",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".webp": "image/webp",
	}
)

// RecordingKey returns the media object key:
// zoom_recordings/{timestamp}_{providerRecordingId}.{fileType}.
// The timestamp prefix keeps keys sortable by recording start time.
func RecordingKey(startTime time.Time, providerRecordingID, fileType string) string {
	ext := strings.ToLower(strings.TrimPrefix(fileType, "."))
	if ext == "" {
		ext = "mp4"
	}
	return fmt.Sprintf("%s/%s_%s.%s", FolderRecordings, startTime.UTC().Format(keyTimeLayout), providerRecordingID, ext)
}

// ThumbnailKey returns the thumbnail object key:
// media/video_thumbnails/{timestamp}_{providerRecordingId}_thumb.jpg.
func ThumbnailKey(startTime time.Time, providerRecordingID string) string {
	return fmt.Sprintf("%s/%s_%s_thumb.jpg", FolderThumbnails, startTime.UTC().Format(keyTimeLayout), providerRecordingID)
}

// UploadKey returns the object key for an admin direct upload.
func UploadKey(now time.Time, filename string) string {
	return path.Join(FolderUploads, now.UTC().Format(keyTimeLayout)+"_"+path.Base(filename))
}

// ValidateUploadType returns true if the content type and/or extension are
// allowed for admin direct uploads.
func ValidateUploadType(contentType, filename string) bool {
	ext := strings.ToLower(path.Ext(filename))
	if contentType != "" {
		if _, ok := AllowedUploadTypes[strings.ToLower(contentType)]; ok {
			return true
		}
	}
	if ext != "" {
		if _, ok := AllowedUploadExtensions[ext]; ok {
			return true
		}
	}
	return false
}

// ContentTypeForFilename returns the MIME type for an upload filename extension.
func ContentTypeForFilename(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ct, ok := AllowedUploadExtensions[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
