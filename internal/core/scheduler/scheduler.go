// Package scheduler 实现挂单刷新的公平轮转调度。
// 每个 tick 取出一个挂单 ID，与到达顺序无关；任一 ID 在一整轮（当前大小）内必被访问一次。
package scheduler

// Scheduler 轮转调度器
// 非并发安全，由调用方加锁。
type Scheduler struct {
	// ids 轮转顺序（紧凑，无重复）
	ids []string
	// members 成员集合，用于 O(1) 判重
	members map[string]struct{}
	// cursor 下一次读取的位置，读取时才归一化
	cursor int
}

// New 创建空调度器
func New() *Scheduler {
	return &Scheduler{
		members: make(map[string]struct{}),
	}
}

// Upsert 追加 ID（已存在则忽略）
func (s *Scheduler) Upsert(id string) {
	if _, ok := s.members[id]; ok {
		return
	}
	s.members[id] = struct{}{}
	s.ids = append(s.ids, id)
}

// Remove 移除 ID（不存在则忽略）
// 保持序列紧凑，复杂度 O(n)；游标不做调整。
func (s *Scheduler) Remove(id string) {
	if _, ok := s.members[id]; !ok {
		return
	}
	delete(s.members, id)
	for i, v := range s.ids {
		if v == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			break
		}
	}
}

// Next 返回下一个待刷新的 ID
// 集合为空时返回 false。
func (s *Scheduler) Next() (string, bool) {
	if s.cursor >= len(s.ids) {
		s.cursor = 0
	}
	if len(s.ids) == 0 {
		return "", false
	}
	id := s.ids[s.cursor]
	s.cursor++
	return id, true
}

// Len 当前 ID 数量
func (s *Scheduler) Len() int {
	return len(s.ids)
}

// Contains 判断 ID 是否在调度集合中
func (s *Scheduler) Contains(id string) bool {
	_, ok := s.members[id]
	return ok
}
