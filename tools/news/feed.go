package news

// defaultFeed is the embedded news dataset. Items without a city apply
// region-wide and pass every city filter.
var defaultFeed = []Item{
	{
		ID:          "news_001",
		Title:       "南宁市发布2025年房地产市场调控新政",
		Summary:     "南宁市住建局发布最新通知，进一步优化限购政策，支持刚性和改善性住房需求。首套房首付比例下调至20%，二套房首付比例下调至30%。",
		Source:      "南宁市住建局",
		URL:         "https://example.com/news/001",
		PublishDate: "2025-12-15",
		City:        "南宁",
		Keywords:    []string{"限购", "首付", "调控"},
	},
	{
		ID:          "news_002",
		Title:       "广西公积金贷款额度上调 最高可贷80万",
		Summary:     "广西住房公积金管理中心发布通知，自2026年1月1日起，双职工家庭公积金贷款最高额度由60万元上调至80万元，单职工最高50万元。",
		Source:      "广西住房公积金管理中心",
		URL:         "https://example.com/news/002",
		PublishDate: "2025-12-20",
		Keywords:    []string{"公积金", "贷款额度", "广西"},
	},
	{
		ID:          "news_003",
		Title:       "柳州楼市回暖 11月成交量环比上涨15%",
		Summary:     "据柳州市房产交易中心数据，2025年11月柳州市商品住宅成交3200套，环比上涨15%，同比上涨8%。市场信心逐步恢复。",
		Source:      "柳州日报",
		URL:         "https://example.com/news/003",
		PublishDate: "2025-12-10",
		City:        "柳州",
		Keywords:    []string{"成交量", "楼市", "回暖"},
	},
	{
		ID:          "news_004",
		Title:       "南宁青秀区新盘入市 均价约1.5万/㎡",
		Summary:     "位于青秀区凤岭北的某品牌楼盘正式开盘，首推500套房源，均价约15000元/㎡，户型涵盖89-143㎡三至四房。",
		Source:      "南宁晚报",
		URL:         "https://example.com/news/004",
		PublishDate: "2025-12-18",
		City:        "南宁",
		Keywords:    []string{"新盘", "青秀区", "开盘"},
	},
	{
		ID:          "news_005",
		Title:       "2026年房贷利率或将继续下行",
		Summary:     "多位业内专家预测，2026年LPR仍有下调空间，首套房贷利率有望降至3.5%以下，进一步降低购房成本。",
		Source:      "经济观察报",
		URL:         "https://example.com/news/005",
		PublishDate: "2025-12-22",
		Keywords:    []string{"利率", "LPR", "房贷"},
	},
	{
		ID:          "news_006",
		Title:       "柳州城中区旧改项目启动 涉及3000户",
		Summary:     "柳州市城中区老旧小区改造项目正式启动，涉及15个小区约3000户居民，计划投资2亿元，预计2027年完工。",
		Source:      "柳州市住建局",
		URL:         "https://example.com/news/006",
		PublishDate: "2025-12-08",
		City:        "柳州",
		Keywords:    []string{"旧改", "城中区", "老旧小区"},
	},
	{
		ID:          "news_007",
		Title:       "南宁地铁6号线规划公示 沿线房价受关注",
		Summary:     "南宁市轨道交通6号线一期工程规划公示，线路全长约25公里，设站18座，预计2028年通车。沿线楼盘关注度上升。",
		Source:      "南宁市发改委",
		URL:         "https://example.com/news/007",
		PublishDate: "2025-12-25",
		City:        "南宁",
		Keywords:    []string{"地铁", "规划", "交通"},
	},
	{
		ID:          "news_008",
		Title:       "广西契税优惠政策延续至2026年底",
		Summary:     "广西财政厅发布通知，个人购买家庭唯一住房契税优惠政策延续至2026年12月31日，90㎡以下按1%征收。",
		Source:      "广西财政厅",
		URL:         "https://example.com/news/008",
		PublishDate: "2025-12-28",
		Keywords:    []string{"契税", "优惠", "税费"},
	},
}
