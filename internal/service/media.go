package service

import (
	"io"
	"mime"
	"path/filepath"
	"strings"

	"fileops/internal/repository"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

const defaultContentType = "application/octet-stream"

var mediaExtensions = map[string]repository.MediaType{
	"jpg": repository.MediaImage, "jpeg": repository.MediaImage, "png": repository.MediaImage,
	"gif": repository.MediaImage, "webp": repository.MediaImage, "svg": repository.MediaImage,
	"bmp": repository.MediaImage, "ico": repository.MediaImage, "heic": repository.MediaImage,

	"mp4": repository.MediaVideo, "mov": repository.MediaVideo, "avi": repository.MediaVideo,
	"mkv": repository.MediaVideo, "webm": repository.MediaVideo, "m4v": repository.MediaVideo,
	"wmv": repository.MediaVideo,

	"pdf": repository.MediaDocument, "doc": repository.MediaDocument, "docx": repository.MediaDocument,
	"xls": repository.MediaDocument, "xlsx": repository.MediaDocument, "ppt": repository.MediaDocument,
	"pptx": repository.MediaDocument, "txt": repository.MediaDocument, "csv": repository.MediaDocument,
	"rtf": repository.MediaDocument, "odt": repository.MediaDocument,
}

// fileExt 返回小写扩展名，不含点。
func fileExt(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// classifyMedia 按扩展名判断媒体类型，未识别时第二个返回值为 false。
func classifyMedia(name string) (repository.MediaType, bool) {
	t, ok := mediaExtensions[fileExt(name)]
	return t, ok
}

// detectContentType 先按扩展名查表，再嗅探文件头，最后回退到 application/octet-stream。
func detectContentType(fs afero.Fs, localPath, name string) string {
	for _, candidate := range []string{name, localPath} {
		if ext := filepath.Ext(candidate); ext != "" {
			if ct := mime.TypeByExtension(strings.ToLower(ext)); ct != "" {
				return ct
			}
		}
	}

	f, err := fs.Open(localPath)
	if err != nil {
		return defaultContentType
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(io.LimitReader(f, 3072))
	if err != nil || mt == nil {
		return defaultContentType
	}
	return mt.String()
}
