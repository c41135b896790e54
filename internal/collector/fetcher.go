package collector

// NewsItem 一条资讯，字段按接口原样保留，只在单次请求内使用
type NewsItem struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Source      string `json:"source"`
	Description string `json:"description"`
	// CTime 接口返回的发布时间文本，不做解析
	CTime  string `json:"ctime"`
	PicURL string `json:"picUrl,omitempty"`
}
