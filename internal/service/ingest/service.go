// Package ingest 接收会话上传的参考资料（PDF/TXT）。
// 只做类型识别和登记，不解析文件内容。
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/eduadocs/backend/internal/domain"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// 错误定义
var (
	ErrNoFiles         = errors.New("没有上传任何文件")
	ErrTooManyFiles    = errors.New("上传文件数量超过限制")
	ErrFileTooLarge    = errors.New("文件超过大小限制")
	ErrUnsupportedType = errors.New("只支持 PDF 和 TXT 文件")
)

// File 一个待登记的上传文件
type File struct {
	Name string
	Data []byte
}

// Options 上传限制
type Options struct {
	MaxFiles     int
	MaxFileBytes int64
}

// Service 资料登记服务
type Service struct {
	opts    Options
	mutex   sync.RWMutex
	uploads map[string][]domain.UploadedDocument
}

// New 创建资料登记服务
func New(opts Options) *Service {
	return &Service{
		opts:    opts,
		uploads: make(map[string][]domain.UploadedDocument),
	}
}

// Ingest 校验并登记一批文件。任一文件不合法则整批失败。
func (s *Service) Ingest(ctx context.Context, sessionID string, files []File) ([]domain.UploadedDocument, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if s.opts.MaxFiles > 0 && len(files) > s.opts.MaxFiles {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyFiles, len(files), s.opts.MaxFiles)
	}

	docs := make([]domain.UploadedDocument, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := s.inspect(f)
		if err != nil {
			klog.V(6).Infof("[ingest] 拒绝上传文件: sessionID=%s, name=%s, error=%v", sessionID, f.Name, err)
			return nil, err
		}
		docs = append(docs, doc)
	}

	s.mutex.Lock()
	s.uploads[sessionID] = append(s.uploads[sessionID], docs...)
	total := len(s.uploads[sessionID])
	s.mutex.Unlock()

	klog.V(6).Infof("[ingest] 登记上传文件: sessionID=%s, 本次=%d, 累计=%d", sessionID, len(docs), total)
	return docs, nil
}

func (s *Service) inspect(f File) (domain.UploadedDocument, error) {
	name := filepath.Base(strings.TrimSpace(f.Name))
	if s.opts.MaxFileBytes > 0 && int64(len(f.Data)) > s.opts.MaxFileBytes {
		return domain.UploadedDocument{}, fmt.Errorf("%w: %s", ErrFileTooLarge, name)
	}

	mtype := mimetype.Detect(f.Data)
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case mtype.Is("application/pdf") && ext == ".pdf":
	case ext == ".txt" && isText(mtype):
	default:
		return domain.UploadedDocument{}, fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, name, mtype.String())
	}

	return domain.UploadedDocument{
		ID:       uuid.NewString(),
		Name:     name,
		MimeType: mtype.String(),
		Size:     len(f.Data),
	}, nil
}

// isText csv、json、html 等都是 text/plain 的子类型，按纯文本接收
func isText(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// DocumentsAvailable 会话是否已有可用资料
func (s *Service) DocumentsAvailable(sessionID string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.uploads[sessionID]) > 0
}

// List 会话已登记的资料
func (s *Service) List(sessionID string) []domain.UploadedDocument {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]domain.UploadedDocument(nil), s.uploads[sessionID]...)
}

// Forget 会话结束时清除登记信息
func (s *Service) Forget(sessionID string) {
	s.mutex.Lock()
	delete(s.uploads, sessionID)
	s.mutex.Unlock()
}
