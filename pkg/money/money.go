package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale 最小单位的小数位数（USDT 精度 6 位）
const Scale = 6

var ErrInvalid = errors.New("金额格式非法")

var maxUnits = decimal.NewFromInt(math.MaxInt64)

// Amount 金额，以最小单位（10^-6）存储的整数
//
// 所有余额运算都在整数上进行，避免浮点误差
type Amount int64

// FromUnits 按整数个币创建金额，如 FromUnits(100) 表示 100 USDT
func FromUnits(units int64) Amount {
	return Amount(units * int64(math.Pow10(Scale)))
}

// Parse 解析十进制字符串，如 "100"、"12.5"
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalid
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return FromDecimal(d)
}

// FromDecimal 转换为最小单位，小数位超过 Scale 或溢出时返回错误
func FromDecimal(d decimal.Decimal) (Amount, error) {
	shifted := d.Shift(Scale)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: 小数位超过 %d 位", ErrInvalid, Scale)
	}
	if shifted.Abs().GreaterThan(maxUnits) {
		return 0, fmt.Errorf("%w: 金额溢出", ErrInvalid)
	}
	return Amount(shifted.IntPart()), nil
}

func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Scale)
}

func (a Amount) String() string {
	return a.Decimal().String()
}

func (a Amount) IsPositive() bool {
	return a > 0
}

// MarshalJSON 输出十进制字符串，避免前端按 float 解析丢精度
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON 同时接受 "100.5" 与 100.5 两种写法
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		raw = s
	}
	v, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
