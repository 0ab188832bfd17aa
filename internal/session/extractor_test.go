package session

import (
	"testing"

	"doc-smart-go/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestRegexExtractor_ExtractMachines(t *testing.T) {
	e := NewRegexExtractor()

	tests := []struct {
		name    string
		message string
		want    []string
	}{
		{"带连字符的型号", "XK-500 的保修期多久", []string{"XK-500"}},
		{"无连字符的型号", "DMC1450 多少钱", []string{"DMC1450"}},
		{"多个型号", "对比 XK-500 和 HT-300", []string{"XK-500", "HT-300"}},
		{"型号标签写法", "型号：abc-123 的参数", []string{"abc-123"}},
		{"重复型号去重", "XK-500 和 XK-500 一样吗", []string{"XK-500"}},
		{"无型号", "保修政策是什么", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ents := e.ExtractEntities(tt.message)
			assert.Equal(t, tt.want, ents.Machines)
		})
	}
}

func TestRegexExtractor_ExtractTopicsAndCategories(t *testing.T) {
	e := NewRegexExtractor()

	ents := e.ExtractEntities("这台机床的保修和维护怎么做")
	assert.Contains(t, ents.Topics, "保修")
	assert.Contains(t, ents.Topics, "维护")
	assert.Contains(t, ents.Categories, "机床")
}

func TestRegexExtractor_DetectPreferences(t *testing.T) {
	e := NewRegexExtractor()

	prefs := e.DetectPreferences("用表格列出所有型号", model.DetectedPreferences{})
	assert.True(t, prefs.PrefersTables)

	prefs = e.DetectPreferences("分点说明安装步骤", prefs)
	assert.True(t, prefs.PrefersLists)
	// 偏好累积：之前的表格偏好保留
	assert.True(t, prefs.PrefersTables)

	prefs = e.DetectPreferences("给我讲讲技术细节", prefs)
	assert.Equal(t, "advanced", prefs.TechnicalLevel)

	prefs = e.DetectPreferences("说得通俗一点", prefs)
	assert.Equal(t, "basic", prefs.TechnicalLevel)
}

func TestRegexExtractor_NoPreferenceSignal(t *testing.T) {
	e := NewRegexExtractor()

	prefs := e.DetectPreferences("XK-500 的保修期多久", model.DetectedPreferences{})
	assert.False(t, prefs.PrefersTables)
	assert.False(t, prefs.PrefersLists)
	assert.Empty(t, prefs.TechnicalLevel)
}
