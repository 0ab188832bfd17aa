// Package textutil 提供向量与文本处理的工具函数。
package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var spaceRe = regexp.MustCompile(`\s+`)

// CosineSimilarity 计算两个向量的余弦相似度。
// 返回值范围为 [-1, 1]，1 表示方向完全相同。维度不一致或零向量返回 0。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Normalize 对文本做规范化：去首尾空白、小写化、折叠连续空白。
// 缓存键一律基于规范化后的文本计算，保证同义写法命中同一条目。
func Normalize(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	return spaceRe.ReplaceAllString(lower, " ")
}

// HashText 计算规范化文本的 SHA-256 哈希（十六进制）。
func HashText(s string) string {
	sum := sha256.Sum256([]byte(Normalize(s)))
	return hex.EncodeToString(sum[:])
}

// TruncateRunes 按 Unicode 字符数截断字符串。
func TruncateRunes(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

// EstimateTokens 估算文本的 token 数。
// 英文按约 4 字符一个 token，CJK 字符接近一字一 token，取加权近似。
func EstimateTokens(s string) int {
	var cjk, other int
	for _, r := range s {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			cjk++
		} else {
			other++
		}
	}
	n := other/4 + cjk
	if n == 0 && len(s) > 0 {
		n = 1
	}
	return n
}
