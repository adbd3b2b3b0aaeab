package session

import (
	"fmt"
	"strconv"
)

// SlotKind 槽位值的类型标签
type SlotKind string

const (
	SlotText   SlotKind = "text"   // 归一化文本（如地点）
	SlotAmount SlotKind = "amount" // 金额 + 币种
	SlotRange  SlotKind = "range"  // 数值区间
	SlotEnum   SlotKind = "enum"   // 枚举（如租售类型）
	SlotCount  SlotKind = "count"  // 计数（如卧室数）
)

// SlotValue 带类型标签的槽位值；按 Kind 取对应字段，不使用无类型 map
type SlotValue struct {
	Kind     SlotKind `json:"kind"`
	Text     string   `json:"text,omitempty"`
	Amount   float64  `json:"amount,omitempty"`
	Currency string   `json:"currency,omitempty"`
	Low      float64  `json:"low,omitempty"`
	High     float64  `json:"high,omitempty"`
	Enum     string   `json:"enum,omitempty"`
	Count    int      `json:"count,omitempty"`
}

// TextValue 构造文本槽位值
func TextValue(s string) SlotValue {
	return SlotValue{Kind: SlotText, Text: s}
}

// AmountValue 构造金额槽位值
func AmountValue(amount float64, currency string) SlotValue {
	return SlotValue{Kind: SlotAmount, Amount: amount, Currency: currency}
}

// RangeValue 构造区间槽位值
func RangeValue(low, high float64) SlotValue {
	return SlotValue{Kind: SlotRange, Low: low, High: high}
}

// EnumValue 构造枚举槽位值
func EnumValue(s string) SlotValue {
	return SlotValue{Kind: SlotEnum, Enum: s}
}

// CountValue 构造计数槽位值
func CountValue(n int) SlotValue {
	return SlotValue{Kind: SlotCount, Count: n}
}

// Equal 判断两个槽位值是否相同（合并幂等性依赖此判断）
func (v SlotValue) Equal(o SlotValue) bool {
	return v == o
}

// String 槽位值的展示文本（用于 ACK 与 slot state 渲染）
func (v SlotValue) String() string {
	switch v.Kind {
	case SlotText:
		return v.Text
	case SlotAmount:
		if v.Currency != "" {
			return fmt.Sprintf("%s %s", strconv.FormatFloat(v.Amount, 'f', -1, 64), v.Currency)
		}
		return strconv.FormatFloat(v.Amount, 'f', -1, 64)
	case SlotRange:
		return strconv.FormatFloat(v.Low, 'f', -1, 64) + "-" + strconv.FormatFloat(v.High, 'f', -1, 64)
	case SlotEnum:
		return v.Enum
	case SlotCount:
		return strconv.Itoa(v.Count)
	}
	return ""
}
