package tests

import (
	"fmt"
	"testing"

	"admotion_platform/platform/services"
)

func TestApprovalCreatesNotification(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	company, err := env.newCompany("acme", validCnpj1)
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.Post(fmt.Sprintf("/company/%v/approve", company.userId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	var count map[string]int64
	if err := company.Get("/notification/unread-count").Do(&count); err != nil {
		t.Fatal(err)
	}
	if count["unread"] != 1 {
		t.Fatalf("expected 1 unread notification, got %d", count["unread"])
	}

	var notifications []services.NotificationInfo
	if err := company.Get("/notification/list?unread=true").Do(&notifications); err != nil {
		t.Fatal(err)
	}
	if len(notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifications))
	}

	err = company.Post(fmt.Sprintf("/notification/%v/read", notifications[0].Id)).Do(nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := company.Get("/notification/unread-count").Do(&count); err != nil {
		t.Fatal(err)
	}
	if count["unread"] != 0 {
		t.Fatalf("expected no unread notifications, got %d", count["unread"])
	}
}

func TestNotificationsArePerUser(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	companyA, err := env.newApprovedCompany(admin, "acme", validCnpj1)
	if err != nil {
		t.Fatal(err)
	}
	companyB, err := env.newCompany("rival", validCnpj2)
	if err != nil {
		t.Fatal(err)
	}

	var notifications []services.NotificationInfo
	if err := companyB.Get("/notification/list").Do(&notifications); err != nil {
		t.Fatal(err)
	}
	if len(notifications) != 0 {
		t.Fatalf("company B should have no notifications, got %d", len(notifications))
	}

	// Users cannot mark someone else's notification as read.
	if err := companyA.Get("/notification/list").Do(&notifications); err != nil {
		t.Fatal(err)
	}
	err = companyB.Post(fmt.Sprintf("/notification/%v/read", notifications[0].Id)).Do(nil)
	if err == nil {
		t.Fatal("marking another user's notification read should fail")
	}
}

func TestMarkAllRead(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	company, err := env.newApprovedCompany(admin, "acme", validCnpj1)
	if err != nil {
		t.Fatal(err)
	}

	err = admin.Post("/finance/payments/create").
		Json(map[string]interface{}{"company_id": company.userId, "amount": 100.0, "method": "pix"}).Do(nil)
	if err != nil {
		t.Fatal(err)
	}

	var res map[string]int64
	if err := company.Post("/notification/read-all").Do(&res); err != nil {
		t.Fatal(err)
	}
	if res["updated"] != 2 {
		t.Fatalf("expected 2 notifications marked read, got %d", res["updated"])
	}
}
