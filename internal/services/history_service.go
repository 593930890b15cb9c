// internal/services/history_service.go
package services

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Corphon/StoryFrameAI/internal/models"
)

// HistoryCapacity 历史记录的固定容量，超出时丢弃最旧的条目
const HistoryCapacity = 100

// HistoryLedger 会话级的已生成图像记录账本
// 只允许头部插入和整体清空，单条记录一旦写入不可变
type HistoryLedger struct {
	mutex   sync.RWMutex
	records []models.GeneratedImageRecord
}

// NewHistoryLedger 创建空账本
func NewHistoryLedger() *HistoryLedger {
	return &HistoryLedger{
		records: make([]models.GeneratedImageRecord, 0, HistoryCapacity),
	}
}

// Append 在头部插入一条记录（最新在前）
// 超出容量时淘汰尾部最旧的条目
func (l *HistoryLedger) Append(record models.GeneratedImageRecord) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.records = append([]models.GeneratedImageRecord{record}, l.records...)
	if len(l.records) > HistoryCapacity {
		l.records = l.records[:HistoryCapacity]
	}
}

// Len 当前记录数
func (l *HistoryLedger) Len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return len(l.records)
}

// Clear 清空账本，幂等且不可逆
func (l *HistoryLedger) Clear() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.records = l.records[:0]
}

// FindByTimestamp 按毫秒级时间戳（会话内唯一键）查找记录
func (l *HistoryLedger) FindByTimestamp(tsMilli int64) (models.GeneratedImageRecord, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	for _, record := range l.records {
		if record.Timestamp.UnixMilli() == tsMilli {
			return record, true
		}
	}
	return models.GeneratedImageRecord{}, false
}

// Filter 返回过滤并排序后的派生视图
// 返回的切片是拷贝，调用方的修改不影响账本
func (l *HistoryLedger) Filter(filter models.HistoryFilter) []models.GeneratedImageRecord {
	l.mutex.RLock()
	matched := make([]models.GeneratedImageRecord, 0, len(l.records))
	for _, record := range l.records {
		if matchRecord(record, filter) {
			matched = append(matched, record)
		}
	}
	l.mutex.RUnlock()

	sortRecords(matched, filter.Sort)
	return matched
}

// matchRecord 检查记录是否命中搜索与风格过滤
func matchRecord(record models.GeneratedImageRecord, filter models.HistoryFilter) bool {
	if filter.Style != "" && filter.Style != models.HistoryStyleAll &&
		record.Style != filter.Style {
		return false
	}

	search := strings.TrimSpace(strings.ToLower(filter.Search))
	if search == "" {
		return true
	}

	// 标题、提示词或分镜编号的十进制形式，任一包含即命中
	if strings.Contains(strings.ToLower(record.SceneTitle), search) {
		return true
	}
	if strings.Contains(strings.ToLower(record.Prompt), search) {
		return true
	}
	return strings.Contains(strconv.Itoa(record.SceneNumber), search)
}

// sortRecords 按指定方式稳定排序，平局保持输入顺序
func sortRecords(records []models.GeneratedImageRecord, mode models.HistorySortMode) {
	switch mode {
	case models.HistorySortOldest:
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Timestamp.Before(records[j].Timestamp)
		})
	case models.HistorySortSceneAsc:
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].SceneNumber < records[j].SceneNumber
		})
	case models.HistorySortSceneDesc:
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].SceneNumber > records[j].SceneNumber
		})
	default: // newest，账本本身已是最新在前，但过滤后仍显式排序
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Timestamp.After(records[j].Timestamp)
		})
	}
}
