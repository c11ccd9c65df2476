package cache

import "time"

// Entry 缓存条目。一经写入不可变：更新语义是整条替换。
type Entry struct {
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Version   string    `json:"version,omitempty"`
}

// Expired 判断条目在给定时刻是否已过期。
// 读取时的过期判断是权威的，即使物理淘汰滞后。
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}
