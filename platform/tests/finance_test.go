package tests

import (
	"fmt"
	"testing"
	"time"

	"admotion_platform/platform/services"
)

func createPlan(admin client, name string, price float64) (string, error) {
	body := map[string]interface{}{
		"name":          name,
		"monthly_price": price,
		"description":   "test plan",
	}
	var res map[string]string
	err := admin.Post("/finance/plans/create").Json(body).Do(&res)
	return res["plan_id"], err
}

func TestPlansAndSubscriptions(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	basicId, err := createPlan(admin, "basic", 99.90)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := createPlan(admin, "basic", 49.90); err == nil {
		t.Fatal("duplicate plan name should be rejected")
	}
	proId, err := createPlan(admin, "pro", 199.90)
	if err != nil {
		t.Fatal(err)
	}

	company, err := env.newApprovedCompany(admin, "acme", validCnpj1)
	if err != nil {
		t.Fatal(err)
	}

	var plans []services.PlanInfo
	if err := company.Get("/finance/plans").Do(&plans); err != nil {
		t.Fatal(err)
	}
	if len(plans) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(plans))
	}

	if err := company.Post(fmt.Sprintf("/finance/subscribe/%v", basicId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	var sub services.SubscriptionInfo
	if err := company.Get("/finance/subscription").Do(&sub); err != nil {
		t.Fatal(err)
	}
	if sub.PlanName != "basic" || sub.Price != 99.90 {
		t.Fatalf("unexpected subscription %+v", sub)
	}

	// Switching plans replaces the subscription instead of stacking a second one.
	if err := company.Post(fmt.Sprintf("/finance/subscribe/%v", proId)).Do(nil); err != nil {
		t.Fatal(err)
	}
	if err := company.Get("/finance/subscription").Do(&sub); err != nil {
		t.Fatal(err)
	}
	if sub.PlanName != "pro" {
		t.Fatalf("expected pro subscription, got %+v", sub)
	}

	// Each subscription issued a pending payment.
	var payments []services.PaymentInfo
	if err := company.Get("/finance/payments").Do(&payments); err != nil {
		t.Fatal(err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(payments))
	}

	if err := company.Post("/finance/subscription/cancel").Do(nil); err != nil {
		t.Fatal(err)
	}
	if err := company.Get("/finance/subscription").Do(&sub); err == nil {
		t.Fatal("cancelled subscription should not be returned as active")
	}

	var all []services.SubscriptionInfo
	if err := admin.Get("/finance/subscriptions/all").Do(&all); err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 subscriptions in admin listing, got %d", len(all))
	}
	if err := admin.Get("/finance/subscriptions/all?status=active").Do(&all); err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no active subscriptions after cancelling, got %d", len(all))
	}
}

func TestPaymentLifecycle(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	company, err := env.newApprovedCompany(admin, "acme", validCnpj1)
	if err != nil {
		t.Fatal(err)
	}

	body := map[string]interface{}{
		"company_id": company.userId,
		"amount":     500.0,
		"method":     "pix",
	}
	var created map[string]string
	if err := admin.Post("/finance/payments/create").Json(body).Do(&created); err != nil {
		t.Fatal(err)
	}

	body["amount"] = -10.0
	if err := admin.Post("/finance/payments/create").Json(body).Do(nil); err == nil {
		t.Fatal("negative payment amounts should be rejected")
	}

	err = admin.Post(fmt.Sprintf("/finance/payments/%v/status", created["payment_id"])).
		Json(map[string]string{"status": "paid", "transaction_id": "tx-123"}).Do(nil)
	if err != nil {
		t.Fatal(err)
	}

	var payments []services.PaymentInfo
	if err := company.Get("/finance/payments").Do(&payments); err != nil {
		t.Fatal(err)
	}
	if len(payments) != 1 || payments[0].Status != "paid" || payments[0].PaidAt == nil {
		t.Fatalf("expected one paid payment, got %v", payments)
	}
}

func TestPayoutGeneration(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	_, driver, deviceId, campaignId := activeCampaignOnDevice(t, env, admin)

	device, err := env.deviceClient(admin, deviceId)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	events := []map[string]interface{}{
		{"campaign_id": campaignId, "interaction": "view", "timestamp": now},
		{"campaign_id": campaignId, "interaction": "view", "timestamp": now},
	}
	if err := device.Post("/analytics/events").Json(map[string]interface{}{"events": events}).Do(nil); err != nil {
		t.Fatal(err)
	}

	period := map[string]string{
		"period_start": now.AddDate(0, 0, -7).Format(time.DateOnly),
		"period_end":   now.Format(time.DateOnly),
	}

	var created map[string]string
	err = admin.Post(fmt.Sprintf("/finance/payouts/generate/%v", driver.userId)).Json(period).Do(&created)
	if err != nil {
		t.Fatal(err)
	}

	// A second payout over the same period would pay the same views twice.
	err = admin.Post(fmt.Sprintf("/finance/payouts/generate/%v", driver.userId)).Json(period).Do(nil)
	if err == nil {
		t.Fatal("overlapping payout periods should be rejected")
	}

	err = admin.Post(fmt.Sprintf("/finance/payouts/%v/paid", created["payout_id"])).
		Json(map[string]string{"method": "pix"}).Do(nil)
	if err != nil {
		t.Fatal(err)
	}

	var payouts []services.PayoutInfo
	if err := driver.Get("/finance/payouts").Do(&payouts); err != nil {
		t.Fatal(err)
	}
	if len(payouts) != 1 || payouts[0].Status != "paid" || payouts[0].Views != 2 {
		t.Fatalf("expected one paid payout covering 2 views, got %v", payouts)
	}
}
