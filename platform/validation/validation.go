package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// NormalizeDigits strips formatting characters from documents and phone
// numbers so only the digits are stored and compared.
func NormalizeDigits(value string) string {
	var builder strings.Builder
	builder.Grow(len(value))
	for _, c := range value {
		if c >= '0' && c <= '9' {
			builder.WriteRune(c)
		}
	}
	return builder.String()
}

func allSameDigit(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}

// CheckValidCpf verifies the two check digits of a brazilian CPF. The input
// may be formatted (000.000.000-00) or bare digits.
func CheckValidCpf(cpf string) error {
	digits := NormalizeDigits(cpf)

	if len(digits) != 11 {
		return fmt.Errorf("cpf must have 11 digits")
	}
	if allSameDigit(digits) {
		return fmt.Errorf("invalid cpf")
	}

	sum := 0
	for i := 0; i < 9; i++ {
		sum += int(digits[i]-'0') * (10 - i)
	}
	digit := 11 - sum%11
	if digit >= 10 {
		digit = 0
	}
	if digit != int(digits[9]-'0') {
		return fmt.Errorf("invalid cpf")
	}

	sum = 0
	for i := 0; i < 10; i++ {
		sum += int(digits[i]-'0') * (11 - i)
	}
	digit = 11 - sum%11
	if digit >= 10 {
		digit = 0
	}
	if digit != int(digits[10]-'0') {
		return fmt.Errorf("invalid cpf")
	}

	return nil
}

func cnpjCheckDigit(digits string) int {
	// Weights cycle 2..9 from the rightmost digit.
	pos := len(digits) - 7
	sum := 0
	for i := 0; i < len(digits); i++ {
		sum += int(digits[i]-'0') * pos
		pos--
		if pos < 2 {
			pos = 9
		}
	}
	if sum%11 < 2 {
		return 0
	}
	return 11 - sum%11
}

// CheckValidCnpj verifies the two check digits of a brazilian CNPJ. The input
// may be formatted (00.000.000/0000-00) or bare digits.
func CheckValidCnpj(cnpj string) error {
	digits := NormalizeDigits(cnpj)

	if len(digits) != 14 {
		return fmt.Errorf("cnpj must have 14 digits")
	}
	if allSameDigit(digits) {
		return fmt.Errorf("invalid cnpj")
	}

	if cnpjCheckDigit(digits[:12]) != int(digits[12]-'0') {
		return fmt.Errorf("invalid cnpj")
	}
	if cnpjCheckDigit(digits[:13]) != int(digits[13]-'0') {
		return fmt.Errorf("invalid cnpj")
	}

	return nil
}

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func CheckValidEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

// CheckValidPhone accepts brazilian landline (10 digits with area code) and
// mobile (11 digits) numbers.
func CheckValidPhone(phone string) error {
	digits := NormalizeDigits(phone)
	if len(digits) < 10 || len(digits) > 11 {
		return fmt.Errorf("phone number must have 10 or 11 digits")
	}
	return nil
}

func CheckValidPassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must have at least 8 characters")
	}

	var hasUpper, hasLower, hasDigit bool
	for _, c := range password {
		switch {
		case unicode.IsUpper(c):
			hasUpper = true
		case unicode.IsLower(c):
			hasLower = true
		case unicode.IsDigit(c):
			hasDigit = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain an uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain a lowercase letter")
	}
	if !hasDigit {
		return fmt.Errorf("password must contain a number")
	}

	return nil
}

// FormatCpf renders bare digits as 000.000.000-00 for display. Inputs that
// are not 11 digits are returned unchanged.
func FormatCpf(cpf string) string {
	digits := NormalizeDigits(cpf)
	if len(digits) != 11 {
		return cpf
	}
	return fmt.Sprintf("%v.%v.%v-%v", digits[:3], digits[3:6], digits[6:9], digits[9:])
}

// FormatCnpj renders bare digits as 00.000.000/0000-00 for display. Inputs
// that are not 14 digits are returned unchanged.
func FormatCnpj(cnpj string) string {
	digits := NormalizeDigits(cnpj)
	if len(digits) != 14 {
		return cnpj
	}
	return fmt.Sprintf("%v.%v.%v/%v-%v", digits[:2], digits[2:5], digits[5:8], digits[8:12], digits[12:])
}
