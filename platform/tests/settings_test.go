package tests

import (
	"testing"

	"admotion_platform/platform/services"
)

func TestSettingsSeededAndEditable(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	var settings []services.SettingInfo
	if err := admin.Get("/settings/list").Do(&settings); err != nil {
		t.Fatal(err)
	}
	if len(settings) == 0 {
		t.Fatal("default settings should be seeded at startup")
	}

	err = admin.Post("/settings/finance.payout_minimum").
		Json(map[string]string{"value": "75.00"}).Do(nil)
	if err != nil {
		t.Fatal(err)
	}

	err = admin.Post("/settings/finance.payout_minimum").
		Json(map[string]string{"value": "not a number"}).Do(nil)
	if err == nil {
		t.Fatal("numeric settings should reject non numeric values")
	}

	err = admin.Post("/settings/uploads.max_media_size_mb").
		Json(map[string]string{"value": "500"}).Do(nil)
	if err == nil {
		t.Fatal("non editable settings should refuse updates")
	}

	err = admin.Post("/settings/does.not.exist").
		Json(map[string]string{"value": "1"}).Do(nil)
	if err == nil {
		t.Fatal("updating an unknown setting should fail")
	}

	if got := services.GetSettingNumber(env.db, "finance.payout_minimum", 0); got != 75.0 {
		t.Fatalf("expected updated payout minimum 75, got %v", got)
	}
}

func TestPublicSettingsRestricted(t *testing.T) {
	env := setupTestEnv(t)

	company, err := env.newCompany("acme", validCnpj1)
	if err != nil {
		t.Fatal(err)
	}

	var settings []services.SettingInfo
	if err := company.Get("/settings/public").Do(&settings); err != nil {
		t.Fatal(err)
	}
	for _, setting := range settings {
		if setting.Category != "general" {
			t.Fatalf("public settings should only expose the general category, got %v", setting.Key)
		}
	}

	if err := company.Get("/settings/list").Do(&settings); err == nil {
		t.Fatal("non admins should not list all settings")
	}
}
