// Package market provides market lookup tools over an embedded city
// dataset: query_market, query_price_trend and compare_districts.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/nevindra/counsel"
)

// Tool answers market snapshot, price-trend and district-comparison queries.
type Tool struct{}

// New creates the market tool.
func New() *Tool { return &Tool{} }

func (t *Tool) Definitions() []counsel.ToolDefinition {
	return []counsel.ToolDefinition{
		{
			Name:        "query_market",
			Description: "查询指定城市和区域的房产市场数据，包括均价、成交量、库存量等信息",
			Parameters: []counsel.ToolParameter{
				{Name: "city", Type: "string", Description: "城市名称，如：南宁、柳州", Required: true, Enum: supportedCities()},
				{Name: "district", Type: "string", Description: "区域名称，如：青秀区、城中区。不填则返回城市整体数据"},
			},
		},
		{
			Name:        "query_price_trend",
			Description: "查询指定城市和区域的历史房价走势数据",
			Parameters: []counsel.ToolParameter{
				{Name: "city", Type: "string", Description: "城市名称，如：南宁、柳州", Required: true, Enum: supportedCities()},
				{Name: "district", Type: "string", Description: "区域名称，如：青秀区、城中区", Required: true},
				{Name: "months", Type: "integer", Description: "查询最近几个月的数据，默认12个月"},
			},
		},
		{
			Name:        "compare_districts",
			Description: "对比多个区域的房产市场数据，帮助用户选择合适的区域",
			Parameters: []counsel.ToolParameter{
				{Name: "city", Type: "string", Description: "城市名称，如：南宁、柳州", Required: true, Enum: supportedCities()},
				{Name: "districts", Type: "string", Description: "要对比的区域名称，用逗号分隔，如：青秀区,良庆区,江南区", Required: true},
			},
		},
	}
}

func (t *Tool) Execute(_ context.Context, name string, args json.RawMessage) (counsel.ToolResult, error) {
	var def counsel.ToolDefinition
	found := false
	for _, d := range t.Definitions() {
		if d.Name == name {
			def, found = d, true
			break
		}
	}
	if !found {
		return counsel.ToolResult{Error: "工具 " + name + " 不存在"}, nil
	}
	if err := def.ValidateArgs(args); err != nil {
		return counsel.ToolResult{Error: err.Error()}, nil
	}

	var params struct {
		City      string `json:"city"`
		District  string `json:"district"`
		Districts string `json:"districts"`
		Months    int    `json:"months"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return counsel.ToolResult{Error: fmt.Sprintf("参数格式错误: %v", err)}, nil
	}

	var payload any
	switch name {
	case "query_market":
		payload = queryMarket(params.City, params.District)
	case "query_price_trend":
		payload = queryPriceTrend(params.City, params.District, params.Months)
	case "compare_districts":
		payload = compareDistricts(params.City, params.Districts)
	}

	content, err := json.Marshal(payload)
	if err != nil {
		return counsel.ToolResult{Error: fmt.Sprintf("编码结果失败: %v", err)}, nil
	}
	return counsel.ToolResult{Content: string(content)}, nil
}

type errorPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func failure(format string, a ...any) errorPayload {
	return errorPayload{Error: fmt.Sprintf(format, a...)}
}

type districtSnapshot struct {
	Success  bool   `json:"success"`
	City     string `json:"city"`
	District string `json:"district"`
	districtData
	Summary string `json:"summary"`
}

type districtBrief struct {
	District     string `json:"district"`
	AvgPrice     int    `json:"avg_price"`
	MonthlySales int    `json:"monthly_sales"`
	HotLevel     string `json:"hot_level"`
}

type cityOverview struct {
	City              string  `json:"city"`
	AvgPrice          int     `json:"avg_price"`
	TotalMonthlySales int     `json:"total_monthly_sales"`
	TotalInventory    int     `json:"total_inventory"`
	AvgYoYChange      float64 `json:"avg_yoy_change"`
	DistrictCount     int     `json:"district_count"`
}

func queryMarket(city, district string) any {
	data, ok := cities[city]
	if !ok {
		return failure("暂不支持查询 %s 的市场数据，目前支持：%s", city, strings.Join(supportedCities(), "、"))
	}

	if district != "" {
		d, ok := data.districts[district]
		if !ok {
			return failure("%s没有 %s 的数据，可选区域：%s", city, district, strings.Join(data.order, "、"))
		}
		return districtSnapshot{
			Success: true, City: city, District: district, districtData: d,
			Summary: fmt.Sprintf("%s%s当前均价 %d 元/㎡，月成交 %d 套，同比%s %.1f%%，市场热度%s。",
				city, district, d.AvgPrice, d.MonthlySales, direction(d.YoYChange), math.Abs(d.YoYChange), d.HotLevel),
		}
	}

	overview := overviewOf(city, data)
	briefs := make([]districtBrief, 0, len(data.order))
	for _, name := range data.order {
		d := data.districts[name]
		briefs = append(briefs, districtBrief{District: name, AvgPrice: d.AvgPrice, MonthlySales: d.MonthlySales, HotLevel: d.HotLevel})
	}
	// Most expensive first.
	for i := 1; i < len(briefs); i++ {
		for j := i; j > 0 && briefs[j].AvgPrice > briefs[j-1].AvgPrice; j-- {
			briefs[j], briefs[j-1] = briefs[j-1], briefs[j]
		}
	}
	return struct {
		Success   bool            `json:"success"`
		City      string          `json:"city"`
		Overview  cityOverview    `json:"overview"`
		Districts []districtBrief `json:"districts"`
		Summary   string          `json:"summary"`
	}{
		Success: true, City: city, Overview: overview, Districts: briefs,
		Summary: fmt.Sprintf("%s全市均价约 %d 元/㎡，月成交 %d 套，同比%s %.1f%%。共 %d 个区域可查询。",
			city, overview.AvgPrice, overview.TotalMonthlySales, direction(overview.AvgYoYChange),
			math.Abs(overview.AvgYoYChange), overview.DistrictCount),
	}
}

// overviewOf aggregates district snapshots into a city view. The average
// price is weighted by sales volume so quiet districts do not skew it.
func overviewOf(city string, data cityData) cityOverview {
	var totalSales, totalInventory int
	var weighted, yoySum float64
	for _, d := range data.districts {
		totalSales += d.MonthlySales
		totalInventory += d.Inventory
		weighted += float64(d.AvgPrice) * float64(d.MonthlySales)
		yoySum += d.YoYChange
	}
	avg := 0
	if totalSales > 0 {
		avg = int(math.Round(weighted / float64(totalSales)))
	}
	return cityOverview{
		City:              city,
		AvgPrice:          avg,
		TotalMonthlySales: totalSales,
		TotalInventory:    totalInventory,
		AvgYoYChange:      math.Round(yoySum/float64(len(data.districts))*10) / 10,
		DistrictCount:     len(data.districts),
	}
}

type trendStatistics struct {
	StartPrice int     `json:"start_price"`
	EndPrice   int     `json:"end_price"`
	Change     int     `json:"change"`
	ChangePct  float64 `json:"change_pct"`
	MaxPrice   int     `json:"max_price"`
	MaxMonth   string  `json:"max_month"`
	MinPrice   int     `json:"min_price"`
	MinMonth   string  `json:"min_month"`
	AvgPrice   int     `json:"avg_price"`
}

func queryPriceTrend(city, district string, months int) any {
	data, ok := cities[city]
	if !ok {
		return failure("暂无 %s 的房价走势数据", city)
	}
	trend, ok := data.trends[district]
	if !ok {
		return failure("暂无 %s%s 的走势数据，可查询：%s", city, district, strings.Join(data.order, "、"))
	}
	if months <= 0 {
		months = 12
	}
	if months < len(trend) {
		trend = trend[len(trend)-months:]
	}

	stats := trendStatistics{
		StartPrice: trend[0].Price,
		EndPrice:   trend[len(trend)-1].Price,
		MaxPrice:   trend[0].Price, MaxMonth: trend[0].Month,
		MinPrice: trend[0].Price, MinMonth: trend[0].Month,
	}
	sum := 0
	for _, p := range trend {
		sum += p.Price
		if p.Price > stats.MaxPrice {
			stats.MaxPrice, stats.MaxMonth = p.Price, p.Month
		}
		if p.Price < stats.MinPrice {
			stats.MinPrice, stats.MinMonth = p.Price, p.Month
		}
	}
	stats.AvgPrice = int(math.Round(float64(sum) / float64(len(trend))))
	stats.Change = stats.EndPrice - stats.StartPrice
	if stats.StartPrice > 0 {
		stats.ChangePct = math.Round(float64(stats.Change)/float64(stats.StartPrice)*100*100) / 100
	}

	return struct {
		Success    bool            `json:"success"`
		City       string          `json:"city"`
		District   string          `json:"district"`
		Period     string          `json:"period"`
		Trend      []trendPoint    `json:"trend"`
		Statistics trendStatistics `json:"statistics"`
		Summary    string          `json:"summary"`
	}{
		Success: true, City: city, District: district,
		Period: fmt.Sprintf("近%d个月", len(trend)),
		Trend:  trend, Statistics: stats,
		Summary: fmt.Sprintf("%s%s近%d个月房价%s %d 元/㎡，幅度 %.1f%%。当前均价 %d 元/㎡。",
			city, district, len(trend), direction(float64(stats.Change)),
			abs(stats.Change), math.Abs(stats.ChangePct), stats.EndPrice),
	}
}

type comparedDistrict struct {
	District string `json:"district"`
	districtData
}

type recommendation struct {
	District string `json:"district"`
	Reason   string `json:"reason"`
	Detail   string `json:"detail"`
}

func compareDistricts(city, districtsArg string) any {
	names := splitDistricts(districtsArg)
	if len(names) < 2 {
		return failure("请至少提供2个区域进行对比")
	}
	data, ok := cities[city]
	if !ok {
		return failure("暂不支持 %s 的数据查询", city)
	}

	var comparison []comparedDistrict
	var notFound []string
	for _, name := range names {
		if d, ok := data.districts[name]; ok {
			comparison = append(comparison, comparedDistrict{District: name, districtData: d})
		} else {
			notFound = append(notFound, name)
		}
	}
	if len(comparison) == 0 {
		return failure("未找到有效区域数据，可选区域：%s", strings.Join(data.order, "、"))
	}

	cheapest, mostExpensive, hottest := comparison[0], comparison[0], comparison[0]
	priceSum := 0
	for _, d := range comparison {
		priceSum += d.AvgPrice
		if d.AvgPrice < cheapest.AvgPrice {
			cheapest = d
		}
		if d.AvgPrice > mostExpensive.AvgPrice {
			mostExpensive = d
		}
		if d.MonthlySales > hottest.MonthlySales {
			hottest = d
		}
	}
	avgPrice := float64(priceSum) / float64(len(comparison))

	var recs []recommendation
	for _, d := range comparison {
		if float64(d.AvgPrice) <= avgPrice && (d.HotLevel == "中" || d.HotLevel == "高") {
			recs = append(recs, recommendation{
				District: d.District, Reason: "性价比高",
				Detail: fmt.Sprintf("均价 %d 元/㎡，低于对比区域平均价，市场热度%s", d.AvgPrice, d.HotLevel),
			})
		}
	}
	stable := comparison[0]
	for _, d := range comparison[1:] {
		if math.Abs(d.YoYChange) < math.Abs(stable.YoYChange) {
			stable = d
		}
	}
	if stable.YoYChange > -2 {
		recs = append(recs, recommendation{
			District: stable.District, Reason: "价格稳定",
			Detail: fmt.Sprintf("同比变化 %.1f%%，价格相对稳定", stable.YoYChange),
		})
	}

	return struct {
		Success    bool               `json:"success"`
		City       string             `json:"city"`
		Comparison []comparedDistrict `json:"comparison"`
		NotFound   []string           `json:"not_found,omitempty"`
		Analysis   map[string]any     `json:"analysis"`
		Recs       []recommendation   `json:"recommendations,omitempty"`
		Summary    string             `json:"summary"`
	}{
		Success: true, City: city, Comparison: comparison, NotFound: notFound,
		Analysis: map[string]any{
			"cheapest":       map[string]any{"district": cheapest.District, "price": cheapest.AvgPrice},
			"most_expensive": map[string]any{"district": mostExpensive.District, "price": mostExpensive.AvgPrice},
			"price_diff":     mostExpensive.AvgPrice - cheapest.AvgPrice,
			"hottest":        map[string]any{"district": hottest.District, "monthly_sales": hottest.MonthlySales},
		},
		Recs: recs,
		Summary: fmt.Sprintf("对比 %d 个区域：\n- 最贵：%s（%d 元/㎡）\n- 最便宜：%s（%d 元/㎡）\n- 价差：%d 元/㎡\n- 成交最活跃：%s（月成交 %d 套）",
			len(comparison), mostExpensive.District, mostExpensive.AvgPrice,
			cheapest.District, cheapest.AvgPrice, mostExpensive.AvgPrice-cheapest.AvgPrice,
			hottest.District, hottest.MonthlySales),
	}
}

func splitDistricts(s string) []string {
	s = strings.ReplaceAll(s, "，", ",")
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func direction(change float64) string {
	if change > 0 {
		return "上涨"
	}
	return "下跌"
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

var _ counsel.Tool = (*Tool)(nil)
