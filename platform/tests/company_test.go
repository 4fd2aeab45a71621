package tests

import (
	"fmt"
	"testing"
	"time"

	"admotion_platform/platform/schema"
	"admotion_platform/platform/services"
)

func campaignParams(name string) map[string]interface{} {
	start := time.Now().UTC()
	return map[string]interface{}{
		"name":            name,
		"description":     "promo run",
		"region":          "Zona Sul",
		"city":            "São Paulo",
		"start_date":      start.Format(time.DateOnly),
		"end_date":        start.AddDate(0, 1, 0).Format(time.DateOnly),
		"start_time":      "08:00",
		"end_time":        "22:00",
		"daily_frequency": 10,
		"value_per_view":  0.05,
	}
}

func TestCompanyApprovalGatesCampaigns(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	company, err := env.newCompany("acme", validCnpj1)
	if err != nil {
		t.Fatal(err)
	}

	_, err = company.createCampaign(campaignParams("launch"))
	if err == nil {
		t.Fatal("unapproved company should not be able to create campaigns")
	}

	if err := admin.Post(fmt.Sprintf("/company/%v/approve", company.userId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	if _, err := company.createCampaign(campaignParams("launch")); err != nil {
		t.Fatal(err)
	}

	info, err := company.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.Company.Status != schema.CompanyActive {
		t.Fatalf("expected active company, got %v", info.Company.Status)
	}
}

func TestCompanyRejectRequiresReason(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	company, err := env.newCompany("acme", validCnpj1)
	if err != nil {
		t.Fatal(err)
	}

	err = admin.Post(fmt.Sprintf("/company/%v/reject", company.userId)).Json(map[string]string{}).Do(nil)
	if err == nil {
		t.Fatal("reject without a reason should fail")
	}

	err = admin.Post(fmt.Sprintf("/company/%v/reject", company.userId)).
		Json(map[string]string{"reason": "invalid registration documents"}).Do(nil)
	if err != nil {
		t.Fatal(err)
	}

	// Rejection removes the account entirely, including the login.
	c := env.newClient()
	err = c.login(loginInfo{Email: "acme@mail.com", Password: "acme_Pass1"})
	if err == nil {
		t.Fatal("rejected company should not be able to login")
	}
}

func TestCompanyBlockAndUnblock(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	company, err := env.newApprovedCompany(admin, "acme", validCnpj1)
	if err != nil {
		t.Fatal(err)
	}

	err = admin.Post(fmt.Sprintf("/company/%v/block", company.userId)).
		Json(map[string]string{"reason": "payment overdue"}).Do(nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := company.userInfo(); err == nil {
		t.Fatal("blocked company should not be able to access the api")
	}

	if err := admin.Post(fmt.Sprintf("/company/%v/unblock", company.userId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	info, err := company.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.Company.Status != schema.CompanyActive {
		t.Fatalf("expected active company after unblock, got %v", info.Company.Status)
	}
}

func TestCompanyListFilters(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.newApprovedCompany(admin, "acme", validCnpj1); err != nil {
		t.Fatal(err)
	}
	if _, err := env.newCompany("pending", validCnpj2); err != nil {
		t.Fatal(err)
	}

	var pending []services.CompanyInfo
	err = admin.Get("/company/list?status=awaiting_approval").Do(&pending)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].TradeName != "pending" {
		t.Fatalf("expected a single pending company, got %v", pending)
	}

	var all []services.CompanyInfo
	err = admin.Get("/company/list").Do(&all)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 companies, got %d", len(all))
	}
}
