// Package money は通貨金額の固定小数点表現を提供する。
//
// 金額の加減算と比較を浮動小数点誤差なしで行うための値型であり、
// 内部表現にはshopspring/decimalを使用する。すべてのMoney値は
// セント精度（小数第2位）に丸められた状態で保持される。
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount は入力が有限の正の数値でない場合に返されるエラー。
// errors.Isで判定できる。
var ErrInvalidAmount = errors.New("amount must be a positive number")

// Money は通貨金額を表すイミュータブルな値型。
// ゼロ値は金額0を表す。
type Money struct {
	value decimal.Decimal
}

// Zero は金額0のMoneyを返す。
func Zero() Money {
	return Money{}
}

// Parse は文字列を正の金額としてパースする。
// セント精度（小数第2位）に丸めた結果が正でない場合、
// または数値として解釈できない場合はErrInvalidAmountを返す。
func Parse(input string) (Money, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return Money{}, fmt.Errorf("%w: empty input", ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, input)
	}

	// 丸め後に正であることを要求する。"0.004" のようなセント未満の
	// 端数だけの入力は金額0になるため拒否する。
	d = d.Round(2)
	if d.Sign() <= 0 {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, input)
	}

	return Money{value: d}, nil
}

// Add は a + b を返す。
func (m Money) Add(n Money) Money { return Money{value: m.value.Add(n.value)} }

// Sub は a - b を返す。結果は負になりうる。
func (m Money) Sub(n Money) Money { return Money{value: m.value.Sub(n.value)} }

// Cmp は m と n を比較し、m < n なら -1、m == n なら 0、m > n なら 1 を返す。
func (m Money) Cmp(n Money) int { return m.value.Cmp(n.value) }

// Equal は m と n が同一金額かを返す。
func (m Money) Equal(n Money) bool { return m.value.Equal(n.value) }

func (m Money) IsZero() bool     { return m.value.IsZero() }
func (m Money) IsNegative() bool { return m.value.IsNegative() }
func (m Money) IsPositive() bool { return m.value.IsPositive() }

// Format は小数第2位固定の表示形式を返す（例: "42.50"）。
func (m Money) Format() string {
	return m.value.StringFixed(2)
}

// String はFormatと同じ表示形式を返す。
func (m Money) String() string {
	return m.Format()
}

// SignedFormat は符号付きの表示形式を返す（例: "+42.50", "-3.00"）。
// 正の値には明示的に "+" を付ける。
func (m Money) SignedFormat() string {
	if m.value.Sign() >= 0 {
		return "+" + m.Format()
	}
	return m.Format()
}

// MarshalJSON は小数第2位固定の文字列としてシリアライズする。
// float64経由の精度劣化を避けるため数値リテラルは使用しない。
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.Format() + `"`), nil
}

// UnmarshalJSON は文字列形式の金額をデシリアライズする。
// 残高など負の値も扱うため、Parseと異なり符号の制約は課さない。
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid money value %q: %w", s, err)
	}
	m.value = d.Round(2)
	return nil
}

// Value はdatabase/sql用にNUMERIC互換の文字列表現を返す。
func (m Money) Value() (driver.Value, error) {
	return m.Format(), nil
}

// Scan はdatabase/sqlのNUMERIC列からMoneyを復元する。
func (m *Money) Scan(src any) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return fmt.Errorf("failed to scan money value: %w", err)
	}
	m.value = d.Round(2)
	return nil
}
