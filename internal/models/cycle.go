package models

// CycleState 双层循环状态
// 仅由CycleController修改,其他组件通过Progress读取副本
type CycleState struct {
	MajorIndex  int
	MajorTotal  int
	MinorIndex  int
	MinorTotal  int
	VisitedURLs map[string]struct{}

	// PagesVisited 本次运行累计访问页数(跨大循环)
	PagesVisited int
	// SkippedMajors 因链接目录为空而跳过的大循环数
	SkippedMajors int
	// CurrentURL 正在浏览的页面
	CurrentURL string
}

// NewCycleState 创建初始状态
func NewCycleState(majorTotal, minorTotal int) *CycleState {
	return &CycleState{
		MajorTotal:  majorTotal,
		MinorTotal:  minorTotal,
		VisitedURLs: make(map[string]struct{}),
	}
}

// ResetVisited 大循环开始时清空访问记录
func (s *CycleState) ResetVisited() {
	s.VisitedURLs = make(map[string]struct{})
}

// MarkVisited 记录访问过的URL
func (s *CycleState) MarkVisited(url string) {
	s.VisitedURLs[url] = struct{}{}
	s.PagesVisited++
}

// Progress 返回只读快照
func (s *CycleState) Progress() CycleProgress {
	visited := make([]string, 0, len(s.VisitedURLs))
	for u := range s.VisitedURLs {
		visited = append(visited, u)
	}
	return CycleProgress{
		MajorIndex:    s.MajorIndex,
		MajorTotal:    s.MajorTotal,
		MinorIndex:    s.MinorIndex,
		MinorTotal:    s.MinorTotal,
		VisitedURLs:   visited,
		PagesVisited:  s.PagesVisited,
		PagesTotal:    s.MajorTotal * s.MinorTotal,
		SkippedMajors: s.SkippedMajors,
		CurrentURL:    s.CurrentURL,
	}
}

// CycleProgress 循环进度快照
type CycleProgress struct {
	MajorIndex    int      `json:"major_index"`
	MajorTotal    int      `json:"major_total"`
	MinorIndex    int      `json:"minor_index"`
	MinorTotal    int      `json:"minor_total"`
	VisitedURLs   []string `json:"visited_urls"`
	PagesVisited  int      `json:"pages_visited"`
	PagesTotal    int      `json:"pages_total"`
	SkippedMajors int      `json:"skipped_majors"`
	CurrentURL    string   `json:"current_url,omitempty"`
}
