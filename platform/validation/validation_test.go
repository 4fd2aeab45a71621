package validation_test

import (
	"testing"

	"admotion_platform/platform/validation"
)

func TestCpfValidation(t *testing.T) {
	valid := []string{"529.982.247-25", "52998224725", "111.444.777-35"}
	for _, cpf := range valid {
		if err := validation.CheckValidCpf(cpf); err != nil {
			t.Fatalf("expected cpf %v to be valid: %v", cpf, err)
		}
	}

	invalid := []string{
		"529.982.247-26", // wrong check digit
		"111.111.111-11", // repeated digits
		"12345678",       // too short
		"",
		"529.982.247-2500",
	}
	for _, cpf := range invalid {
		if err := validation.CheckValidCpf(cpf); err == nil {
			t.Fatalf("expected cpf %v to be rejected", cpf)
		}
	}
}

func TestCnpjValidation(t *testing.T) {
	valid := []string{"11.222.333/0001-81", "11222333000181"}
	for _, cnpj := range valid {
		if err := validation.CheckValidCnpj(cnpj); err != nil {
			t.Fatalf("expected cnpj %v to be valid: %v", cnpj, err)
		}
	}

	invalid := []string{
		"11.222.333/0001-82", // wrong check digit
		"11.111.111/1111-11", // repeated digits
		"11222333",           // too short
		"",
	}
	for _, cnpj := range invalid {
		if err := validation.CheckValidCnpj(cnpj); err == nil {
			t.Fatalf("expected cnpj %v to be rejected", cnpj)
		}
	}
}

func TestEmailValidation(t *testing.T) {
	if err := validation.CheckValidEmail("user@example.com"); err != nil {
		t.Fatal(err)
	}
	for _, email := range []string{"not-an-email", "a@b", "a b@c.com", "@c.com"} {
		if err := validation.CheckValidEmail(email); err == nil {
			t.Fatalf("expected email %v to be rejected", email)
		}
	}
}

func TestPhoneValidation(t *testing.T) {
	if err := validation.CheckValidPhone("(11) 98765-4321"); err != nil {
		t.Fatal(err)
	}
	if err := validation.CheckValidPhone("(11) 3456-7890"); err != nil {
		t.Fatal(err)
	}
	for _, phone := range []string{"1234", "123456789012", ""} {
		if err := validation.CheckValidPhone(phone); err == nil {
			t.Fatalf("expected phone %v to be rejected", phone)
		}
	}
}

func TestPasswordValidation(t *testing.T) {
	if err := validation.CheckValidPassword("Password1"); err != nil {
		t.Fatal(err)
	}

	cases := map[string]string{
		"Pass1":     "too short",
		"password1": "missing uppercase",
		"PASSWORD1": "missing lowercase",
		"Passwordd": "missing number",
	}
	for password, reason := range cases {
		if err := validation.CheckValidPassword(password); err == nil {
			t.Fatalf("expected password to be rejected (%v)", reason)
		}
	}
}

func TestDocumentFormatting(t *testing.T) {
	if got := validation.FormatCpf("52998224725"); got != "529.982.247-25" {
		t.Fatalf("unexpected cpf formatting: %v", got)
	}
	if got := validation.FormatCnpj("11222333000181"); got != "11.222.333/0001-81" {
		t.Fatalf("unexpected cnpj formatting: %v", got)
	}
	if got := validation.FormatCpf("123"); got != "123" {
		t.Fatalf("short input should pass through unchanged: %v", got)
	}
}
