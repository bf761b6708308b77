package common

import (
	"math/big"
	"strconv"
)

// BigToFloat converts a big int to float according to its number of decimal digits
// Example:
// - BigToFloat(1100, 3) = 1.1
// - BigToFloat(1100, 2) = 11
// - BigToFloat(1100, 5) = 0.11
func BigToFloat(b *big.Int, decimal int64) float64 {
	f := new(big.Float).SetInt(b)
	power := new(big.Float).SetInt(new(big.Int).Exp(
		big.NewInt(10), big.NewInt(decimal), nil,
	))
	res := new(big.Float).Quo(f, power)
	result, _ := res.Float64()
	return result
}

func StringToBig(input string) *big.Int {
	resultBig, ok := big.NewInt(0).SetString(input, 10)
	if !ok {
		return big.NewInt(0)
	}
	return resultBig
}

// StringToFloat converts a decimal string of a raw token amount to a float
// scaled down by the token's decimal digits.
func StringToFloat(input string, decimal int64) float64 {
	resultBig, ok := big.NewInt(0).SetString(input, 10)
	if !ok {
		return 0.0
	}
	return BigToFloat(resultBig, decimal)
}

// ParseFloat is a forgiving strconv.ParseFloat: bad input yields 0.
func ParseFloat(input string) float64 {
	result, err := strconv.ParseFloat(input, 64)
	if err != nil {
		return 0.0
	}
	return result
}

// FloatToString prints a float without exponent notation, trimming
// trailing zeroes.
func FloatToString(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
