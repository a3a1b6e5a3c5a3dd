package core

import "github.com/shopspring/decimal"

// All amounts handled by the engine are integer msats. Division truncates toward zero.

func SatsToMsats(sats int64) decimal.Decimal {
	return decimal.NewFromInt(sats).Mul(MSATS)
}

// MsatsToSats floors to whole sats.
func MsatsToSats(msats decimal.Decimal) int64 {
	q, _ := msats.QuoRem(MSATS, 0)
	return q.IntPart()
}

// MulDiv computes a*num/den truncated to an integer. den must be non-zero.
func MulDiv(a, num, den decimal.Decimal) decimal.Decimal {
	q, _ := a.Mul(num).QuoRem(den, 0)
	return q
}

// Percent computes a*pct/100 truncated to an integer.
func Percent(a decimal.Decimal, pct int64) decimal.Decimal {
	return MulDiv(a, decimal.NewFromInt(pct), PCT)
}

// FloorToSats drops the sub-sat remainder of msats.
func FloorToSats(msats decimal.Decimal) decimal.Decimal {
	return SatsToMsats(MsatsToSats(msats))
}
