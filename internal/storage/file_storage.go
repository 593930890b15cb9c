// internal/storage/file_storage.go
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStorage 提供帧图像的文件存储服务
type FileStorage struct {
	BaseDir string

	// 文件级别锁 path -> *sync.RWMutex
	fileLocks sync.Map
}

// NewFileStorage 创建文件存储服务
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}

	return &FileStorage{
		BaseDir: baseDir,
	}, nil
}

// 获取文件锁
func (fs *FileStorage) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := fs.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

// FrameFilename 生成导出文件名
// 时间戳取毫秒级Unix时间，与历史记录的时间戳一一对应；扩展名由MIME类型决定
func FrameFilename(sceneNumber int, timestamp time.Time, mimeType string) string {
	return fmt.Sprintf("frame_%d_%d%s", sceneNumber, timestamp.UnixMilli(), extensionFor(mimeType))
}

// extensionFor 将MIME类型映射为文件扩展名，未知类型按PNG处理
func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// SaveFrame 保存一帧图像到会话目录
// 写入先落到临时文件再重命名，避免出现半写状态的文件
func (fs *FileStorage) SaveFrame(sessionID, filename string, data []byte) (string, error) {
	fullDirPath := filepath.Join(fs.BaseDir, sessionID)
	fullPath := filepath.Join(fullDirPath, filename)

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(fullDirPath, 0755); err != nil {
		return "", fmt.Errorf("创建目录失败: %w", err)
	}

	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return "", fmt.Errorf("保存临时文件失败: %w", err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("重命名文件失败: %w", err)
	}

	return fullPath, nil
}

// ReadFrame 读取已保存的帧图像
func (fs *FileStorage) ReadFrame(sessionID, filename string) ([]byte, error) {
	fullPath := filepath.Join(fs.BaseDir, sessionID, filename)

	lock := fs.getFileLock(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	return data, nil
}

// DeleteSessionFrames 删除会话的全部帧文件
func (fs *FileStorage) DeleteSessionFrames(sessionID string) error {
	fullDirPath := filepath.Join(fs.BaseDir, sessionID)
	if err := os.RemoveAll(fullDirPath); err != nil {
		return fmt.Errorf("删除会话目录失败: %w", err)
	}
	return nil
}
