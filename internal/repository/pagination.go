package repository

// Pagination 分页参数
type Pagination struct {
	Page     int // 页码，从 1 开始
	PageSize int // 每页数量
}

// normalize 修正非法的分页参数
func (p *Pagination) normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
}

// offset 计算偏移量
func (p *Pagination) offset() int {
	return (p.Page - 1) * p.PageSize
}
