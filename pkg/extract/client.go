// Package extract 提供了一个与 Apache Tika 服务器交互的文本提取客户端。
package extract

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"doc-smart-go/internal/config"
	"doc-smart-go/internal/errs"
)

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL string
}

// NewClient 创建一个新的提取客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{serverURL: cfg.ServerURL}
}

// ExtractText 调用 Tika 提取文本。mimeType 为空时根据文件名推断。
// 提取结果为空白时返回 errs.ErrEmptyExtraction。
func (c *Client) ExtractText(fileReader io.Reader, fileName, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = DetectMimeType(fileName)
	}

	req, err := http.NewRequest("PUT", c.serverURL+"/tika", fileReader)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", mimeType)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	// Tika 对不认识的类型返回 422
	if resp.StatusCode == http.StatusUnsupportedMediaType || resp.StatusCode == http.StatusUnprocessableEntity {
		return "", fmt.Errorf("%w: %s", errs.ErrUnsupportedType, mimeType)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return "", fmt.Errorf("读取 Tika 响应失败: %w", err)
	}

	text := buf.String()
	if strings.TrimSpace(text) == "" {
		return "", errs.ErrEmptyExtraction
	}
	return text, nil
}

// DetectMimeType 根据文件扩展名判断 Content-Type
func DetectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}

// IsImageMime 判断 MIME 类型是否为图片。
func IsImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}
