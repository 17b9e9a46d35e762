// Package almanac answers the time and place questions the assistant puts
// in front of every prompt: today's date in Chinese, the current solar
// term, and which city a message is about.
package almanac

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// China is the reference zone for term boundaries and calendar dates.
var China = time.FixedZone("CST", 8*60*60)

// Terms lists the 24 solar terms in calendar order starting from 小寒.
var Terms = [24]string{
	"小寒", "大寒", "立春", "雨水", "惊蛰", "春分",
	"清明", "谷雨", "立夏", "小满", "芒种", "夏至",
	"小暑", "大暑", "立秋", "处暑", "白露", "秋分",
	"寒露", "霜降", "立冬", "小雪", "大雪", "冬至",
}

// termMinutes are each term's offset in minutes from 小寒 of the same year.
var termMinutes = [24]int64{
	0, 21208, 42467, 63836, 85337, 107014, 128867, 150921, 173149, 195551, 218072, 240693,
	263343, 285989, 308563, 331033, 353350, 375494, 397447, 419210, 440795, 462224, 483532, 504758,
}

const tropicalYearMillis = 31556925974.7

// epoch is 小寒 1900.
var epoch = time.Date(1900, time.January, 6, 2, 5, 0, 0, China)

// TermStart returns the approximate start of term n (0 = 小寒) in year.
func TermStart(year, n int) time.Time {
	ms := math.Trunc(tropicalYearMillis*float64(year-1900) + float64(termMinutes[n%24]*60000))
	return time.UnixMilli(epoch.UnixMilli() + int64(ms)).In(China)
}

// SolarTerm returns the term in effect on t's calendar day in China: the
// later of the month's two terms that has begun, else the last term of the
// previous month.
func SolarTerm(t time.Time) string {
	t = t.In(China)
	month, day := t.Month(), t.Day()
	i := int(month-1) * 2
	if s := TermStart(t.Year(), i+1); s.Month() == month && day >= s.Day() {
		return Terms[i+1]
	}
	if s := TermStart(t.Year(), i); s.Month() == month && day >= s.Day() {
		return Terms[i]
	}
	return Terms[(i+23)%24]
}

var weekdays = [7]string{"星期日", "星期一", "星期二", "星期三", "星期四", "星期五", "星期六"}

// FormatChineseDate renders t in China as 2026年10月15日 星期四.
func FormatChineseDate(t time.Time) string {
	t = t.In(China)
	return fmt.Sprintf("%d年%d月%d日 %s", t.Year(), int(t.Month()), t.Day(), weekdays[t.Weekday()])
}

// TimeSensitiveKeywords mark questions whose answer depends on the date.
var TimeSensitiveKeywords = []string{
	"吃什么", "推荐", "菜谱", "食谱", "今天", "现在", "时令", "节气",
	"养生", "早餐", "午餐", "晚餐", "夜宵", "水果",
}

// IsTimeSensitive reports whether msg mentions food, recipes, or the
// current season.
func IsTimeSensitive(msg string) bool {
	for _, k := range TimeSensitiveKeywords {
		if strings.Contains(msg, k) {
			return true
		}
	}
	return false
}

// Cities are matched in order; the first one contained in a message wins.
var Cities = []string{
	"北京", "上海", "广州", "深圳", "杭州", "南京", "成都", "重庆", "武汉", "西安",
	"长沙", "苏州", "天津", "郑州", "济南", "青岛", "大连", "沈阳", "昆明", "南宁",
	"海口", "拉萨", "乌鲁木齐", "呼和浩特", "银川", "西宁", "兰州", "哈尔滨", "长春", "石家庄",
	"太原", "合肥", "福州", "南昌", "贵阳", "台北", "香港", "澳门",
}

// ExtractLocation returns the first known city mentioned in msg, or def.
func ExtractLocation(msg, def string) string {
	for _, c := range Cities {
		if strings.Contains(msg, c) {
			return c
		}
	}
	return def
}

// Moment is the time and place preamble for one question.
type Moment struct {
	Date      string
	Location  string
	SolarTerm string
}

// At builds the Moment for t at location.
func At(t time.Time, location string) Moment {
	return Moment{
		Date:      FormatChineseDate(t),
		Location:  location,
		SolarTerm: SolarTerm(t),
	}
}

// Query prefixes msg with the term and location so seasonal questions
// retrieve seasonal material.
func (m Moment) Query(msg string) string {
	return m.SolarTerm + " " + m.Location + " " + msg
}

// String renders the preamble block.
func (m Moment) String() string {
	return fmt.Sprintf("【当前时空背景】：\n- 时间：%s\n- 地点：%s\n- 节气：%s", m.Date, m.Location, m.SolarTerm)
}
