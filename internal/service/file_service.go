package service

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/d60-Lab/medorder/internal/model"
	"github.com/d60-Lab/medorder/internal/repository"
)

const (
	mimePDF         = "application/pdf"
	mimePNG         = "image/png"
	mimeJPEG        = "image/jpeg"
	mimeOctetStream = "application/octet-stream"
)

var allowedTypes = map[string]struct{}{
	mimePDF:  {},
	mimePNG:  {},
	mimeJPEG: {},
}

// UploadInput 上传的执照文件
type UploadInput struct {
	OrderID     *int64
	Filename    string
	ContentType string
	Content     []byte
}

// FileService 执照文件服务
type FileService interface {
	// Prepare 校验类型与大小并生成元数据，不落库
	Prepare(in UploadInput) (*model.File, error)
	UploadFile(ctx context.Context, in UploadInput) (*model.File, error)
	GetFile(ctx context.Context, fileID string) (*model.File, error)
	ListFiles(ctx context.Context, filter repository.FileFilter) ([]model.File, error)
	GetFileContent(ctx context.Context, fileID string) (*model.File, []byte, error)
}

type fileService struct {
	storage repository.Storage
	maxSize int64
	now     func() time.Time
	hooks   []ChangeHook
}

func NewFileService(storage repository.Storage, maxSize int64, hooks ...ChangeHook) FileService {
	return &fileService{storage: storage, maxSize: maxSize, now: time.Now, hooks: hooks}
}

func (s *fileService) Prepare(in UploadInput) (*model.File, error) {
	name := originalName(in.Filename)
	if name == "" {
		return nil, newValidationError("filename", "filename is required")
	}
	if len(in.Content) == 0 {
		return nil, newValidationError("file", "file content is empty")
	}

	contentType, err := resolveContentType(in.ContentType, in.Content)
	if err != nil {
		return nil, err
	}
	if s.maxSize > 0 && int64(len(in.Content)) > s.maxSize {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrPayloadTooLarge, len(in.Content), s.maxSize)
	}

	now := s.now().UTC()
	return &model.File{
		ID:           uuid.New().String(),
		OrderID:      in.OrderID,
		Filename:     storedName(name, now),
		OriginalName: name,
		ContentType:  contentType,
		Size:         int64(len(in.Content)),
		UploadedAt:   now,
	}, nil
}

func (s *fileService) UploadFile(ctx context.Context, in UploadInput) (*model.File, error) {
	file, err := s.Prepare(in)
	if err != nil {
		return nil, err
	}
	if err := s.storage.SaveFile(ctx, file, in.Content); err != nil {
		return nil, err
	}
	runHooks(ctx, s.hooks)
	return file, nil
}

func (s *fileService) GetFile(ctx context.Context, fileID string) (*model.File, error) {
	if fileID == "" {
		return nil, repository.ErrNotFound
	}
	files, err := s.storage.ListFiles(ctx, repository.FileFilter{FileID: fileID})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, repository.ErrNotFound
	}
	return &files[0], nil
}

func (s *fileService) ListFiles(ctx context.Context, filter repository.FileFilter) ([]model.File, error) {
	return s.storage.ListFiles(ctx, filter)
}

// GetFileContent 元数据或内容任一缺失都返回 ErrNotFound
func (s *fileService) GetFileContent(ctx context.Context, fileID string) (*model.File, []byte, error) {
	file, err := s.GetFile(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	content, err := s.storage.GetFileContent(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	return file, content, nil
}

// resolveContentType 声明类型为空或 octet-stream 时按内容识别
func resolveContentType(declared string, content []byte) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(declared))
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	if ct == "" || ct == mimeOctetStream {
		ct = mimetype.Detect(content).String()
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			ct = mt
		}
	}
	if ct == "image/jpg" || ct == "image/pjpeg" {
		ct = mimeJPEG
	}
	if _, ok := allowedTypes[ct]; !ok {
		return "", fmt.Errorf("%w: got %q", ErrInvalidFileType, ct)
	}
	return ct, nil
}

// originalName 去掉客户端可能带上的目录部分
func originalName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := path.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// storedName <base>_<timestamp><ext>，空白替换为下划线
func storedName(original string, t time.Time) string {
	ext := strings.ToLower(path.Ext(original))
	base := strings.Join(strings.Fields(strings.TrimSuffix(original, path.Ext(original))), "_")
	if base == "" {
		base = "file"
	}
	ts := fmt.Sprintf("%s-%03dZ", t.Format("2006-01-02T15-04-05"), t.Nanosecond()/int(time.Millisecond))
	return base + "_" + ts + ext
}
