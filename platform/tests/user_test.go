package tests

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"admotion_platform/platform/schema"
)

const (
	validCnpj1 = "11.222.333/0001-81"
	validCnpj2 = "11.444.777/0001-61"
	validCpf1  = "529.982.247-25"
	validCpf2  = "111.444.777-35"
	validCpf3  = "123.456.789-09"
)

func TestCompanySignupAndLogin(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()
	login, err := c.signupCompany("acme", "acme@mail.com", "Acme_pass1", validCnpj1)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.signupCompany("acme", "acme@mail.com", "Acme_pass1", validCnpj2)
	if err == nil {
		t.Fatal("duplicate signup should fail")
	}

	err = c.login(loginInfo{Email: "acme@mail.com", Password: "wrong_password"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatal("login should fail with wrong password")
	}

	err = c.login(login)
	if err != nil {
		t.Fatal(err)
	}

	info, err := c.userInfo()
	if err != nil {
		t.Fatal(err)
	}

	if info.Role != schema.RoleCompany || info.Email != "acme@mail.com" {
		t.Fatalf("invalid info %v", info)
	}
	if info.Company == nil || info.Company.Status != schema.AwaitingApproval {
		t.Fatalf("new company should be awaiting approval, got %v", info.Company)
	}
}

func TestDriverSignupValidation(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()

	_, err := c.signupDriver("joao", "joao@mail.com", "Joao_pass1", "111.111.111-11")
	if err == nil || !strings.Contains(err.Error(), "cpf") {
		t.Fatalf("signup with invalid cpf should fail: %v", err)
	}

	_, err = c.signupDriver("joao", "joao@mail.com", "short", validCpf1)
	if err == nil || !strings.Contains(err.Error(), "password") {
		t.Fatalf("signup with weak password should fail: %v", err)
	}

	_, err = c.signupDriver("joao", "joao@mail.com", "Joao_pass1", validCpf1)
	if err != nil {
		t.Fatal(err)
	}
}

func TestDuplicateCnpjRollsBackIdentity(t *testing.T) {
	env := setupTestEnv(t)

	if _, err := env.newCompany("first", validCnpj1); err != nil {
		t.Fatal(err)
	}

	c := env.newClient()
	_, err := c.signupCompany("second", "second@mail.com", "Second_pass1", validCnpj1)
	if err == nil {
		t.Fatal("signup with duplicate cnpj should fail")
	}

	// The login identity created before the profile conflict must be removed,
	// otherwise the email is permanently burned.
	err = c.login(loginInfo{Email: "second@mail.com", Password: "Second_pass1"})
	if err == nil {
		t.Fatal("identity should have been rolled back after failed registration")
	}

	if _, err := c.signupCompany("second", "second@mail.com", "Second_pass1", validCnpj2); err != nil {
		t.Fatalf("email should be reusable after rollback: %v", err)
	}
}

func TestDuplicateCpfRollsBackIdentity(t *testing.T) {
	env := setupTestEnv(t)

	if _, err := env.newDriver("maria", validCpf1); err != nil {
		t.Fatal(err)
	}

	c := env.newClient()
	_, err := c.signupDriver("jose", "jose@mail.com", "Jose_pass12", validCpf1)
	if err == nil {
		t.Fatal("signup with duplicate cpf should fail")
	}

	if _, err := c.signupDriver("jose", "jose@mail.com", "Jose_pass12", validCpf2); err != nil {
		t.Fatalf("email should be reusable after rollback: %v", err)
	}
}

func TestAdminEndpointsRequireAdmin(t *testing.T) {
	env := setupTestEnv(t)

	company, err := env.newCompany("acme", validCnpj1)
	if err != nil {
		t.Fatal(err)
	}

	var users []interface{}
	err = company.Get("/user/list").Do(&users)
	if err == nil {
		t.Fatal("companies should not be able to list users")
	}

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	err = admin.Get("/user/list").Do(&users)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
}

func TestBlockUser(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	driver, err := env.newApprovedDriver(admin, "maria", validCpf1)
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.Post(fmt.Sprintf("/user/%v/block", driver.userId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	_, err = driver.userInfo()
	if err == nil {
		t.Fatal("blocked user should not be able to access the api")
	}

	if err := admin.Post(fmt.Sprintf("/user/%v/unblock", driver.userId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	if _, err := driver.userInfo(); err != nil {
		t.Fatalf("unblocked user should regain access: %v", err)
	}
}

func TestCreateAdmin(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	body := map[string]string{
		"name": "support", "email": "support@mail.com", "password": "Support_pass1",
		"phone": "11977776666", "access_level": schema.AccessSupport,
	}
	if err := admin.Post("/user/create-admin").Json(body).Do(nil); err != nil {
		t.Fatal(err)
	}

	c := env.newClient()
	if err := c.login(loginInfo{Email: "support@mail.com", Password: "Support_pass1"}); err != nil {
		t.Fatal(err)
	}

	info, err := c.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.Role != schema.RoleAdmin || info.Admin == nil || info.Admin.AccessLevel != schema.AccessSupport {
		t.Fatalf("invalid admin info %v", info)
	}
}
