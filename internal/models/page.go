package models

// PageRequest 描述一次带过滤的分页查询。
// Filters 是字段名到期望值的等值过滤；Start 是页内偏移 (从0开始)。
type PageRequest struct {
	Start    int               `json:"start"`
	PageSize int               `json:"pageSize"`
	Filters  map[string]string `json:"filters,omitempty"`
}

// PageResponse 携带与页切片无关的总数，便于调用方计算总页数。
type PageResponse struct {
	Start    int   `json:"start"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

// DelegatePage 是 Delegate 列表查询的一页结果。
type DelegatePage struct {
	PageResponse
	Delegates []*Delegate `json:"delegates"`
}

// TaskPage 是任务列表查询的一页结果。
type TaskPage struct {
	PageResponse
	Tasks []*DelegateTask `json:"tasks"`
}
