// Package storage 提供了 MinIO 对象存储的客户端封装。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"doc-smart-go/internal/config"
	"doc-smart-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client 封装了文档原始文件的读取操作。
type Client struct {
	mc     *minio.Client
	bucket string
}

// NewClient 初始化 MinIO 客户端并确保存储桶存在。
func NewClient(cfg config.MinIOConfig) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}

	ctx := context.Background()
	exists, err := mc.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		if err := mc.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建存储桶失败: %w", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	}

	return &Client{mc: mc, bucket: cfg.BucketName}, nil
}

// FetchObject 下载对象的全部内容到内存缓冲区并返回字节数。
// 摄取管线需要知道文件大小以拒绝空文件。
func (c *Client) FetchObject(ctx context.Context, objectName string) ([]byte, int64, error) {
	object, err := c.mc.GetObject(ctx, c.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	if err != nil {
		return nil, 0, fmt.Errorf("读取 MinIO 对象流失败: %w", err)
	}
	return buf.Bytes(), size, nil
}

// PutObject 上传一个对象，文档接入时由上传接口调用。
func (c *Client) PutObject(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := c.mc.PutObject(ctx, c.bucket, objectName, reader, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("上传对象到 MinIO 失败: %w", err)
	}
	return nil
}
