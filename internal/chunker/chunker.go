// Package chunker 实现了文档文本的分块引擎。
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"doc-smart-go/internal/errs"
)

// Strategy 是分块策略。
type Strategy string

const (
	// StrategyProductAware 尝试保持产品/设备记录完整，不在记录中间切断。
	// 这是默认策略。
	StrategyProductAware Strategy = "product-aware"
	// StrategySemantic 是纯滑动窗口切分，用于结构化导出文本
	// （如转换后的表格），记录边界启发式反而会破坏这类内容。
	StrategySemantic Strategy = "semantic"
)

// Options 是一次分块调用的参数。
type Options struct {
	ChunkSize int
	Overlap   int
	Strategy  Strategy
}

// 记录边界启发式：空行、Markdown 标题、编号条目、型号/产品行均视为新记录的开始。
var recordBoundaryRe = regexp.MustCompile(`^(#+\s|\d+[.、)]\s*|型号|产品|设备|Model\b|Product\b)`)

// Split 将文本切分为有序的分块序列。
// 约定：每个分块长度不超过 ChunkSize（软上限），相邻分块重叠 Overlap 个字符，
// 去除重叠后拼接可无损（空白归一意义下）还原原文。
// 短于 ChunkSize 的输入恰好产生一个分块。空白输入由上游拒绝，不在此处理。
func Split(text string, opts Options) ([]string, error) {
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunkSize 必须大于 0", errs.ErrInvalidInput)
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.ChunkSize {
		return nil, fmt.Errorf("%w: overlap 必须在 [0, chunkSize) 范围内", errs.ErrInvalidInput)
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyProductAware
	}

	switch strategy {
	case StrategySemantic:
		return slidingSplit(text, opts.ChunkSize, opts.Overlap), nil
	case StrategyProductAware:
		return productAwareSplit(text, opts.ChunkSize, opts.Overlap), nil
	default:
		return nil, fmt.Errorf("%w: 未知分块策略 %q", errs.ErrInvalidInput, strategy)
	}
}

// slidingSplit 将长文本按指定大小和重叠进行滑动窗口切分。
func slidingSplit(text string, chunkSize, overlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	step := chunkSize - overlap
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// productAwareSplit 先按记录边界切出完整记录，再把记录装入分块，
// 单条记录超过 ChunkSize 时对该记录退化为滑动窗口。
// 相邻分块间通过携带上一分块的尾部 Overlap 个字符保证跨界上下文。
func productAwareSplit(text string, chunkSize, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= chunkSize {
		if len(runes) == 0 {
			return nil
		}
		return []string{text}
	}

	records := splitRecords(text)

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen == 0 {
			return
		}
		chunk := current.String()
		if len(chunks) > 0 {
			// 携带上一分块尾部作为重叠前缀
			chunk = overlapTail(chunks[len(chunks)-1], overlap) + chunk
		}
		chunks = append(chunks, chunk)
		current.Reset()
		currentLen = 0
	}

	for _, record := range records {
		recLen := len([]rune(record))
		// 单条记录超限：先冲刷当前分块，再对记录做滑动窗口
		if recLen > chunkSize-overlap {
			flush()
			for _, piece := range slidingSplit(record, chunkSize-overlap, 0) {
				current.WriteString(piece)
				currentLen = len([]rune(piece))
				flush()
			}
			continue
		}
		// 放不下则先冲刷
		sep := 0
		if currentLen > 0 {
			sep = 1 // 记录间以换行相接
		}
		if currentLen+sep+recLen+overlap > chunkSize {
			flush()
			sep = 0
		}
		if sep == 1 {
			current.WriteString("\n")
			currentLen++
		}
		current.WriteString(record)
		currentLen += recLen
	}
	flush()
	return chunks
}

// splitRecords 按启发式记录边界把文本切成完整记录。
func splitRecords(text string) []string {
	lines := strings.Split(text, "\n")

	var records []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		rec := strings.TrimRight(current.String(), "\n")
		if strings.TrimSpace(rec) != "" {
			records = append(records, rec)
		}
		current.Reset()
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			// 空行结束当前记录
			flush()
			continue
		}
		if recordBoundaryRe.MatchString(trimmed) && current.Len() > 0 {
			flush()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	flush()
	return records
}

// overlapTail 返回文本尾部至多 n 个字符。
func overlapTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
