package tests

import (
	"fmt"
	"testing"
	"time"

	"admotion_platform/platform/schema"
	"admotion_platform/platform/services"

	"github.com/google/uuid"
)

// activeCampaignOnDevice builds the full chain: approved company and driver,
// device assigned to the driver, active campaign linked to the device.
func activeCampaignOnDevice(t *testing.T, env *testEnv, admin client) (company client, driver client, deviceId, campaignId string) {
	t.Helper()

	company, err := env.newApprovedCompany(admin, "acme", validCnpj1)
	if err != nil {
		t.Fatal(err)
	}
	driver, err = env.newApprovedDriver(admin, "maria", validCpf1)
	if err != nil {
		t.Fatal(err)
	}

	deviceId, err = admin.createDevice("TAB-001")
	if err != nil {
		t.Fatal(err)
	}
	if err := admin.Post(fmt.Sprintf("/device/%v/assign/%v", deviceId, driver.userId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	campaignId, err = company.createCampaign(campaignParams("launch"))
	if err != nil {
		t.Fatal(err)
	}
	if err := admin.Post(fmt.Sprintf("/campaign/%v/approve", campaignId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	mediaId, err := uploadMedia(company, campaignId, "ad.png")
	if err != nil {
		t.Fatal(err)
	}
	if err := admin.Post(fmt.Sprintf("/media/%v/approve", mediaId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	if err := admin.Post(fmt.Sprintf("/campaign/%v/devices/%v", campaignId, deviceId)).Do(nil); err != nil {
		t.Fatal(err)
	}
	if err := admin.Post(fmt.Sprintf("/campaign/%v/activate", campaignId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	return company, driver, deviceId, campaignId
}

func TestDevicePlaylist(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	_, _, deviceId, campaignId := activeCampaignOnDevice(t, env, admin)

	device, err := env.deviceClient(admin, deviceId)
	if err != nil {
		t.Fatal(err)
	}

	var playlist []services.PlaylistEntry
	if err := device.Get("/device/playlist").Do(&playlist); err != nil {
		t.Fatal(err)
	}

	if len(playlist) != 1 || playlist[0].CampaignId.String() != campaignId {
		t.Fatalf("expected the active campaign in the playlist, got %v", playlist)
	}
	if len(playlist[0].Media) != 1 || playlist[0].Media[0].Type != schema.MediaImage {
		t.Fatalf("expected the approved media in the playlist, got %v", playlist[0].Media)
	}
}

func TestViewEventsAccrueStatsAndEarnings(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	company, driver, deviceId, campaignId := activeCampaignOnDevice(t, env, admin)

	device, err := env.deviceClient(admin, deviceId)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	events := []map[string]interface{}{
		{"campaign_id": campaignId, "interaction": schema.InteractionView, "timestamp": now},
		{"campaign_id": campaignId, "interaction": schema.InteractionView, "timestamp": now},
		{"campaign_id": campaignId, "interaction": schema.InteractionClick, "timestamp": now},
		// Events for unlinked campaigns are dropped, not accepted.
		{"campaign_id": uuid.NewString(), "interaction": schema.InteractionView, "timestamp": now},
	}

	var res map[string]int
	err = device.Post("/analytics/events").Json(map[string]interface{}{"events": events}).Do(&res)
	if err != nil {
		t.Fatal(err)
	}
	if res["accepted"] != 3 {
		t.Fatalf("expected 3 accepted events, got %d", res["accepted"])
	}

	var stats services.CampaignStats
	err = company.Get(fmt.Sprintf("/analytics/campaign/%v", campaignId)).Do(&stats)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalViews != 2 || stats.TotalClicks != 1 {
		t.Fatalf("expected 2 views and 1 click, got %v views and %v clicks", stats.TotalViews, stats.TotalClicks)
	}

	var recorded []services.ViewEventInfo
	err = admin.Get(fmt.Sprintf("/analytics/events?campaign_id=%v", campaignId)).Do(&recorded)
	if err != nil {
		t.Fatal(err)
	}
	if len(recorded) != 3 {
		t.Fatalf("expected 3 recorded events, got %d", len(recorded))
	}
	if err := company.Get("/analytics/events").Do(&recorded); err == nil {
		t.Fatal("expected event listing to be admin only")
	}

	var earnings map[string]interface{}
	err = driver.Get("/driver/me/earnings").Do(&earnings)
	if err != nil {
		t.Fatal(err)
	}
	if views, ok := earnings["views"].(float64); !ok || views != 2 {
		t.Fatalf("expected 2 paid views, got %v", earnings["views"])
	}
	if total, ok := earnings["total"].(float64); !ok || total != 0.1 {
		t.Fatalf("expected earnings of 0.10, got %v", earnings["total"])
	}
}

func TestAdminSummary(t *testing.T) {
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
	if _, err := env.newDriver("maria", validCpf1); err != nil {
		t.Fatal(err)
	}

	var summary services.PlatformSummary
	if err := admin.Get("/analytics/summary").Do(&summary); err != nil {
		t.Fatal(err)
	}

	if summary.Companies != 2 || summary.Drivers != 1 {
		t.Fatalf("unexpected counts in summary: %+v", summary)
	}
	if summary.PendingCompanies != 1 || summary.PendingDrivers != 1 {
		t.Fatalf("unexpected pending counts in summary: %+v", summary)
	}

	// The company approval above should have left an activity trail.
	var activity []services.ActivityInfo
	if err := admin.Get("/analytics/activity?entity=company").Do(&activity); err != nil {
		t.Fatal(err)
	}
	if len(activity) != 1 || activity[0].Action != "company_approved" {
		t.Fatalf("expected a single company_approved entry, got %+v", activity)
	}
}
