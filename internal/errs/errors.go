// Package errs 定义了核心引擎的错误分类，供各层用 errors.Is 判断。
package errs

import "errors"

var (
	// ErrNotFound 表示目标文档或会话记录不存在。
	ErrNotFound = errors.New("record not found")
	// ErrEmptyExtraction 表示文本提取结果为空，无法继续入库。
	ErrEmptyExtraction = errors.New("extracted text is empty")
	// ErrUnsupportedType 表示提取器不支持该文件类型。
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrCacheUnavailable 表示缓存存储不可用。调用方必须降级为未命中，不得向用户暴露。
	ErrCacheUnavailable = errors.New("cache storage unavailable")
	// ErrProviderUnavailable 表示主备生成服务均不可用。
	ErrProviderUnavailable = errors.New("generation providers unavailable")
	// ErrInvalidInput 表示分块参数等输入不合法。
	ErrInvalidInput = errors.New("invalid input")
	// ErrReindexInProgress 表示该文档正在被另一个重建任务处理。
	ErrReindexInProgress = errors.New("document reindex already in progress")
)
