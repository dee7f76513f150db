package market

// districtData is the market snapshot for one administrative district.
// Prices are yuan per square meter, sales and inventory are unit counts,
// inventory months is the sell-through period at the current sales pace.
type districtData struct {
	AvgPrice        int     `json:"avg_price"`
	PriceRange      string  `json:"price_range"`
	MonthlySales    int     `json:"monthly_sales"`
	Inventory       int     `json:"inventory"`
	InventoryMonths float64 `json:"inventory_months"`
	YoYChange       float64 `json:"yoy_change"`
	MoMChange       float64 `json:"mom_change"`
	HotLevel        string  `json:"hot_level"`
	Description     string  `json:"description"`
}

// trendPoint is one month of the price history.
type trendPoint struct {
	Month string `json:"month"`
	Price int    `json:"price"`
}

type cityData struct {
	districts map[string]districtData
	order     []string
	trends    map[string][]trendPoint
}

// cities holds the embedded market dataset for the two supported cities.
// Figures reflect the 2024-2025 Guangxi market downturn.
var cities = map[string]cityData{
	"南宁": {
		order: []string{"青秀区", "江南区", "兴宁区", "西乡塘区", "良庆区"},
		districts: map[string]districtData{
			"青秀区": {
				AvgPrice: 14500, PriceRange: "11000-22000",
				MonthlySales: 320, Inventory: 4800, InventoryMonths: 15.0,
				YoYChange: -4.2, MoMChange: -0.5, HotLevel: "高",
				Description: "市中心核心区，教育医疗资源集中，二手房流通性最好",
			},
			"江南区": {
				AvgPrice: 10800, PriceRange: "8500-14000",
				MonthlySales: 260, Inventory: 5600, InventoryMonths: 21.5,
				YoYChange: -6.8, MoMChange: -0.9, HotLevel: "中",
				Description: "地铁沿线发展较快，新盘供应量大，价格竞争激烈",
			},
			"兴宁区": {
				AvgPrice: 9800, PriceRange: "7800-13500",
				MonthlySales: 150, Inventory: 3900, InventoryMonths: 26.0,
				YoYChange: -7.5, MoMChange: -1.1, HotLevel: "低",
				Description: "老城区，房龄普遍偏大，以二手改善置换为主",
			},
			"西乡塘区": {
				AvgPrice: 9200, PriceRange: "7000-12500",
				MonthlySales: 210, Inventory: 5100, InventoryMonths: 24.3,
				YoYChange: -6.1, MoMChange: -0.8, HotLevel: "中",
				Description: "高校聚集区，租赁需求稳定，刚需盘为主",
			},
			"良庆区": {
				AvgPrice: 11600, PriceRange: "9000-16000",
				MonthlySales: 340, Inventory: 6800, InventoryMonths: 20.0,
				YoYChange: -5.3, MoMChange: -0.4, HotLevel: "高",
				Description: "五象新区所在地，规划起点高，新房供应集中",
			},
		},
		trends: map[string][]trendPoint{
			"青秀区": {
				{"2024-09", 15200}, {"2024-10", 15150}, {"2024-11", 15050},
				{"2024-12", 14980}, {"2025-01", 14900}, {"2025-02", 14850},
				{"2025-03", 14780}, {"2025-04", 14700}, {"2025-05", 14650},
				{"2025-06", 14600}, {"2025-07", 14550}, {"2025-08", 14500},
			},
			"江南区": {
				{"2024-09", 11600}, {"2024-10", 11520}, {"2024-11", 11430},
				{"2024-12", 11350}, {"2025-01", 11280}, {"2025-02", 11200},
				{"2025-03", 11120}, {"2025-04", 11050}, {"2025-05", 11000},
				{"2025-06", 10950}, {"2025-07", 10880}, {"2025-08", 10800},
			},
			"兴宁区": {
				{"2024-09", 10600}, {"2024-10", 10520}, {"2024-11", 10430},
				{"2024-12", 10340}, {"2025-01", 10260}, {"2025-02", 10180},
				{"2025-03", 10110}, {"2025-04", 10040}, {"2025-05", 9980},
				{"2025-06", 9920}, {"2025-07", 9860}, {"2025-08", 9800},
			},
			"西乡塘区": {
				{"2024-09", 9800}, {"2024-10", 9740}, {"2024-11", 9680},
				{"2024-12", 9620}, {"2025-01", 9560}, {"2025-02", 9500},
				{"2025-03", 9440}, {"2025-04", 9390}, {"2025-05", 9340},
				{"2025-06", 9290}, {"2025-07", 9240}, {"2025-08", 9200},
			},
			"良庆区": {
				{"2024-09", 12250}, {"2024-10", 12180}, {"2024-11", 12100},
				{"2024-12", 12020}, {"2025-01", 11950}, {"2025-02", 11890},
				{"2025-03", 11830}, {"2025-04", 11780}, {"2025-05", 11730},
				{"2025-06", 11680}, {"2025-07", 11640}, {"2025-08", 11600},
			},
		},
	},
	"柳州": {
		order: []string{"城中区", "鱼峰区", "柳南区", "柳北区"},
		districts: map[string]districtData{
			"城中区": {
				AvgPrice: 9600, PriceRange: "7500-13000",
				MonthlySales: 180, Inventory: 2600, InventoryMonths: 14.4,
				YoYChange: -3.8, MoMChange: -0.3, HotLevel: "高",
				Description: "柳州老城核心，学区房集中，供应稀缺价格坚挺",
			},
			"鱼峰区": {
				AvgPrice: 8400, PriceRange: "6800-11000",
				MonthlySales: 160, Inventory: 3400, InventoryMonths: 21.3,
				YoYChange: -5.6, MoMChange: -0.7, HotLevel: "中",
				Description: "生活配套成熟，新旧小区混杂，性价比选择多",
			},
			"柳南区": {
				AvgPrice: 7800, PriceRange: "6000-10000",
				MonthlySales: 190, Inventory: 4200, InventoryMonths: 22.1,
				YoYChange: -6.4, MoMChange: -0.8, HotLevel: "中",
				Description: "工业区周边刚需盘集中，总价门槛全市最低",
			},
			"柳北区": {
				AvgPrice: 7500, PriceRange: "5800-9800",
				MonthlySales: 110, Inventory: 3100, InventoryMonths: 28.2,
				YoYChange: -7.2, MoMChange: -1.0, HotLevel: "低",
				Description: "库存去化缓慢，开发商让利幅度大，议价空间明显",
			},
		},
		trends: map[string][]trendPoint{
			"城中区": {
				{"2024-09", 9980}, {"2024-10", 9940}, {"2024-11", 9900},
				{"2024-12", 9860}, {"2025-01", 9820}, {"2025-02", 9790},
				{"2025-03", 9750}, {"2025-04", 9720}, {"2025-05", 9690},
				{"2025-06", 9660}, {"2025-07", 9630}, {"2025-08", 9600},
			},
			"鱼峰区": {
				{"2024-09", 8900}, {"2024-10", 8850}, {"2024-11", 8800},
				{"2024-12", 8750}, {"2025-01", 8700}, {"2025-02", 8650},
				{"2025-03", 8610}, {"2025-04", 8570}, {"2025-05", 8530},
				{"2025-06", 8490}, {"2025-07", 8450}, {"2025-08", 8400},
			},
			"柳南区": {
				{"2024-09", 8330}, {"2024-10", 8280}, {"2024-11", 8220},
				{"2024-12", 8170}, {"2025-01", 8110}, {"2025-02", 8060},
				{"2025-03", 8010}, {"2025-04", 7960}, {"2025-05", 7920},
				{"2025-06", 7880}, {"2025-07", 7840}, {"2025-08", 7800},
			},
			"柳北区": {
				{"2024-09", 8080}, {"2024-10", 8020}, {"2024-11", 7960},
				{"2024-12", 7900}, {"2025-01", 7850}, {"2025-02", 7800},
				{"2025-03", 7750}, {"2025-04", 7700}, {"2025-05", 7650},
				{"2025-06", 7600}, {"2025-07", 7550}, {"2025-08", 7500},
			},
		},
	},
}

func supportedCities() []string {
	return []string{"南宁", "柳州"}
}
