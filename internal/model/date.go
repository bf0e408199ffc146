package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout 日期的唯一对外格式
const DateLayout = "2006-01-02"

// Date 不带时间部分的日历日期（UTC）
//
// 数据库里存 date 类型，JSON 里是 "YYYY-MM-DD" 字符串
type Date struct {
	time.Time
}

// NewDate 截断到 UTC 当天零点
func NewDate(t time.Time) Date {
	t = t.UTC()
	return Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate 严格按 YYYY-MM-DD 解析，2025-02-30 这类不存在的日期会返回错误
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("日期必须是字符串: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value 写库时统一用字符串，postgres / mysql / sqlite 都能接受
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

func (d *Date) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = NewDate(v)
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	default:
		return fmt.Errorf("无法解析日期类型: %T", value)
	}
}

func (d *Date) scanString(s string) error {
	s = strings.TrimSpace(s)
	// 部分驱动会把 date 列带上时间部分返回
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("无法解析日期: %w", err)
	}
	*d = parsed
	return nil
}

// GormDataType 让 AutoMigrate 建成 date 列
func (Date) GormDataType() string {
	return "date"
}

// MonthRange 解析 YYYY-MM，返回 [当月1号, 下月1号)
func MonthRange(month string) (Date, Date, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(month))
	if err != nil {
		return Date{}, Date{}, err
	}
	from := Date{Time: t}
	to := Date{Time: t.AddDate(0, 1, 0)}
	return from, to, nil
}
