// Package timeutil 提供时间相关的工具函数。
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// historyDateLayout 价格历史日期格式（截掉第一个冒号之后的部分）
// 例如 "Feb 12 2024 01: +0" -> "Feb 12 2024 01"
const historyDateLayout = "Jan _2 2006 15"

// ParseHistoryDate 解析价格历史数据点的日期
// 只保留第一个冒号之前的部分，按 UTC 小时精度解析。
// 参数 s: 原始日期字符串
// 返回: UTC 时间
func ParseHistoryDate(s string) (time.Time, error) {
	head, _, _ := strings.Cut(s, ":")
	t, err := time.ParseInLocation(historyDateLayout, strings.TrimSpace(head), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("解析日期失败 '%s': %w", s, err)
	}
	return t, nil
}
