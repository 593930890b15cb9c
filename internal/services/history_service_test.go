// internal/services/history_service_test.go
package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/Corphon/StoryFrameAI/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeRecord 构造测试用的历史记录
func makeRecord(sceneNumber int, title, style string, ts time.Time) models.GeneratedImageRecord {
	return models.GeneratedImageRecord{
		Timestamp:   ts,
		ImageURL:    "data:image/png;base64,AAAA",
		Prompt:      fmt.Sprintf("prompt for scene %d", sceneNumber),
		SceneTitle:  title,
		SceneNumber: sceneNumber,
		Style:       style,
	}
}

func TestHistoryLedger_CapacityEviction(t *testing.T) {
	ledger := NewHistoryLedger()
	base := time.Now()

	// 写满101条，第1条（最旧）应被淘汰
	for i := 0; i < HistoryCapacity+1; i++ {
		ledger.Append(makeRecord(i, fmt.Sprintf("scene-%d", i), "Cinematic",
			base.Add(time.Duration(i)*time.Millisecond)))
	}

	require.Equal(t, HistoryCapacity, ledger.Len())

	view := ledger.Filter(models.HistoryFilter{Sort: models.HistorySortNewest})
	require.Len(t, view, HistoryCapacity)

	// 最新的在头部，最旧的scene-0已不在
	assert.Equal(t, HistoryCapacity, view[0].SceneNumber)
	for _, record := range view {
		assert.NotEqual(t, 0, record.SceneNumber)
	}
}

func TestHistoryLedger_HeadInsertOrder(t *testing.T) {
	ledger := NewHistoryLedger()
	base := time.Now()

	ledger.Append(makeRecord(1, "opening", "Cinematic", base))
	ledger.Append(makeRecord(2, "chase", "Cinematic", base.Add(time.Second)))

	view := ledger.Filter(models.HistoryFilter{})
	require.Len(t, view, 2)
	assert.Equal(t, "chase", view[0].SceneTitle)
	assert.Equal(t, "opening", view[1].SceneTitle)
}

func TestHistoryLedger_FilterBySearch(t *testing.T) {
	ledger := NewHistoryLedger()
	base := time.Now()

	ledger.Append(makeRecord(1, "The Harbor", "Film noir", base))
	ledger.Append(makeRecord(2, "Rooftop Chase", "Film noir", base.Add(time.Second)))
	ledger.Append(makeRecord(12, "Finale", "Watercolor", base.Add(2*time.Second)))

	// 标题大小写不敏感的子串匹配
	view := ledger.Filter(models.HistoryFilter{Search: "harbor"})
	require.Len(t, view, 1)
	assert.Equal(t, "The Harbor", view[0].SceneTitle)

	// 提示词匹配
	view = ledger.Filter(models.HistoryFilter{Search: "prompt for scene 2"})
	require.Len(t, view, 1)
	assert.Equal(t, 2, view[0].SceneNumber)

	// 分镜编号的十进制形式匹配："1"同时命中1和12
	view = ledger.Filter(models.HistoryFilter{Search: "1"})
	assert.Len(t, view, 2)

	// 无匹配返回空视图
	view = ledger.Filter(models.HistoryFilter{Search: "nonexistent"})
	assert.Empty(t, view)
}

func TestHistoryLedger_FilterByStyle(t *testing.T) {
	ledger := NewHistoryLedger()
	base := time.Now()

	ledger.Append(makeRecord(1, "a", "Film noir", base))
	ledger.Append(makeRecord(2, "b", "Watercolor", base.Add(time.Second)))

	view := ledger.Filter(models.HistoryFilter{Style: "Film noir"})
	require.Len(t, view, 1)
	assert.Equal(t, "Film noir", view[0].Style)

	// "all"不过滤
	view = ledger.Filter(models.HistoryFilter{Style: models.HistoryStyleAll})
	assert.Len(t, view, 2)
}

func TestHistoryLedger_SortModes(t *testing.T) {
	ledger := NewHistoryLedger()
	base := time.Now()

	ledger.Append(makeRecord(3, "c", "Cinematic", base))
	ledger.Append(makeRecord(1, "a", "Cinematic", base.Add(time.Second)))
	ledger.Append(makeRecord(2, "b", "Cinematic", base.Add(2*time.Second)))

	view := ledger.Filter(models.HistoryFilter{Sort: models.HistorySortOldest})
	assert.Equal(t, []int{3, 1, 2}, sceneNumbers(view))

	view = ledger.Filter(models.HistoryFilter{Sort: models.HistorySortNewest})
	assert.Equal(t, []int{2, 1, 3}, sceneNumbers(view))

	view = ledger.Filter(models.HistoryFilter{Sort: models.HistorySortSceneAsc})
	assert.Equal(t, []int{1, 2, 3}, sceneNumbers(view))

	view = ledger.Filter(models.HistoryFilter{Sort: models.HistorySortSceneDesc})
	assert.Equal(t, []int{3, 2, 1}, sceneNumbers(view))
}

func TestHistoryLedger_FilterAndSortCommute(t *testing.T) {
	ledger := NewHistoryLedger()
	base := time.Now()

	ledger.Append(makeRecord(2, "dock", "Film noir", base))
	ledger.Append(makeRecord(1, "dock", "Watercolor", base.Add(time.Second)))
	ledger.Append(makeRecord(3, "dock", "Film noir", base.Add(2*time.Second)))

	// 过滤+排序一次完成，与先过滤再排序的预期一致
	view := ledger.Filter(models.HistoryFilter{
		Style: "Film noir",
		Sort:  models.HistorySortSceneAsc,
	})
	require.Len(t, view, 2)
	assert.Equal(t, []int{2, 3}, sceneNumbers(view))
}

func TestHistoryLedger_ClearIsIdempotent(t *testing.T) {
	ledger := NewHistoryLedger()
	ledger.Append(makeRecord(1, "a", "Cinematic", time.Now()))

	ledger.Clear()
	assert.Equal(t, 0, ledger.Len())

	// 再次清空不报错不改变状态
	ledger.Clear()
	assert.Equal(t, 0, ledger.Len())

	// 清空后再写入，账本只有新条目
	ledger.Append(makeRecord(2, "b", "Cinematic", time.Now()))
	assert.Equal(t, 1, ledger.Len())
}

func TestHistoryLedger_FindByTimestamp(t *testing.T) {
	ledger := NewHistoryLedger()
	ts := time.Now()

	ledger.Append(makeRecord(7, "found", "Cinematic", ts))

	record, found := ledger.FindByTimestamp(ts.UnixMilli())
	require.True(t, found)
	assert.Equal(t, "found", record.SceneTitle)

	_, found = ledger.FindByTimestamp(ts.Add(time.Hour).UnixMilli())
	assert.False(t, found)
}

// sceneNumbers 提取排序断言用的编号序列
func sceneNumbers(records []models.GeneratedImageRecord) []int {
	numbers := make([]int, 0, len(records))
	for _, record := range records {
		numbers = append(numbers, record.SceneNumber)
	}
	return numbers
}
