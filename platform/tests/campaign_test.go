package tests

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"testing"
	"time"

	"admotion_platform/platform/schema"
	"admotion_platform/platform/services"
)

// uploadMedia posts a small png to a campaign and returns the media id.
func uploadMedia(c client, campaignId, fileName string) (string, error) {
	body := new(bytes.Buffer)
	form := multipart.NewWriter(body)
	part, err := form.CreateFormFile("file", fileName)
	if err != nil {
		return "", err
	}
	if _, err := part.Write([]byte("not really a png, but close enough")); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	var res map[string]string
	err = c.Post(fmt.Sprintf("/media/upload/%v", campaignId)).
		Header("Content-Type", form.FormDataContentType()).
		Body(body).
		Do(&res)
	return res["media_id"], err
}

func TestCampaignDateValidation(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	company, err := env.newApprovedCompany(admin, "acme", validCnpj1)
	if err != nil {
		t.Fatal(err)
	}

	params := campaignParams("launch")
	params["end_date"] = time.Now().UTC().AddDate(0, 0, -40).Format(time.DateOnly)
	if _, err := company.createCampaign(params); err == nil {
		t.Fatal("campaign ending before it starts should be rejected")
	}

	params = campaignParams("launch")
	params["start_date"] = time.Now().UTC().AddDate(0, 0, -2).Format(time.DateOnly)
	if _, err := company.createCampaign(params); err == nil {
		t.Fatal("campaign starting in the past should be rejected")
	}

	params = campaignParams("launch")
	params["start_time"] = "25:99"
	if _, err := company.createCampaign(params); err == nil {
		t.Fatal("invalid display window should be rejected")
	}
}

func TestCampaignApprovalAndActivation(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	company, err := env.newApprovedCompany(admin, "acme", validCnpj1)
	if err != nil {
		t.Fatal(err)
	}

	campaignId, err := company.createCampaign(campaignParams("launch"))
	if err != nil {
		t.Fatal(err)
	}

	info, err := company.campaignDetails(campaignId)
	if err != nil {
		t.Fatal(err)
	}
	if info.Status != schema.InReview {
		t.Fatalf("new campaign should be in review, got %v", info.Status)
	}

	if err := admin.Post(fmt.Sprintf("/campaign/%v/approve", campaignId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	// No approved media and no linked device yet.
	if err := company.Post(fmt.Sprintf("/campaign/%v/activate", campaignId)).Do(nil); err == nil {
		t.Fatal("activation should require approved media and a linked device")
	}

	mediaId, err := uploadMedia(company, campaignId, "ad.png")
	if err != nil {
		t.Fatal(err)
	}
	if err := admin.Post(fmt.Sprintf("/media/%v/approve", mediaId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	deviceId, err := admin.createDevice("TAB-001")
	if err != nil {
		t.Fatal(err)
	}
	if err := admin.Post(fmt.Sprintf("/campaign/%v/devices/%v", campaignId, deviceId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	// Activation is the owning company's call once the campaign is approved.
	if err := company.Post(fmt.Sprintf("/campaign/%v/activate", campaignId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	info, err = company.campaignDetails(campaignId)
	if err != nil {
		t.Fatal(err)
	}
	if info.Status != schema.CampaignActive {
		t.Fatalf("expected active campaign, got %v", info.Status)
	}
}

func TestCampaignEditableOnlyInReview(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	company, err := env.newApprovedCompany(admin, "acme", validCnpj1)
	if err != nil {
		t.Fatal(err)
	}

	campaignId, err := company.createCampaign(campaignParams("launch"))
	if err != nil {
		t.Fatal(err)
	}

	if err := company.Post(fmt.Sprintf("/campaign/%v/update", campaignId)).
		Json(campaignParams("launch v2")).Do(nil); err != nil {
		t.Fatalf("campaigns in review should be editable: %v", err)
	}

	if err := admin.Post(fmt.Sprintf("/campaign/%v/approve", campaignId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	if err := company.Post(fmt.Sprintf("/campaign/%v/update", campaignId)).
		Json(campaignParams("launch v3")).Do(nil); err == nil {
		t.Fatal("approved campaigns should not be editable")
	}
	if err := company.Delete(fmt.Sprintf("/campaign/%v", campaignId)).Do(nil); err == nil {
		t.Fatal("approved campaigns should not be deletable")
	}

	secondId, err := company.createCampaign(campaignParams("teaser"))
	if err != nil {
		t.Fatal(err)
	}
	if err := company.Delete(fmt.Sprintf("/campaign/%v", secondId)).Do(nil); err != nil {
		t.Fatalf("campaigns in review should be deletable: %v", err)
	}
}

func TestCampaignRejectRequiresReason(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	company, err := env.newApprovedCompany(admin, "acme", validCnpj1)
	if err != nil {
		t.Fatal(err)
	}

	campaignId, err := company.createCampaign(campaignParams("launch"))
	if err != nil {
		t.Fatal(err)
	}

	err = admin.Post(fmt.Sprintf("/campaign/%v/reject", campaignId)).Json(map[string]string{}).Do(nil)
	if err == nil {
		t.Fatal("reject without a reason should fail")
	}

	err = admin.Post(fmt.Sprintf("/campaign/%v/reject", campaignId)).
		Json(map[string]string{"reason": "inappropriate content"}).Do(nil)
	if err != nil {
		t.Fatal(err)
	}

	info, err := company.campaignDetails(campaignId)
	if err != nil {
		t.Fatal(err)
	}
	if info.Status != schema.Rejected || info.RejectReason != "inappropriate content" {
		t.Fatalf("expected rejected campaign with reason, got %v", info)
	}
}

func TestCampaignOwnershipEnforced(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	owner, err := env.newApprovedCompany(admin, "acme", validCnpj1)
	if err != nil {
		t.Fatal(err)
	}
	other, err := env.newApprovedCompany(admin, "rival", validCnpj2)
	if err != nil {
		t.Fatal(err)
	}

	campaignId, err := owner.createCampaign(campaignParams("launch"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := other.campaignDetails(campaignId); err == nil {
		t.Fatal("other companies should not see the campaign")
	}

	err = other.Post(fmt.Sprintf("/campaign/%v/pause", campaignId)).Do(nil)
	if err == nil {
		t.Fatal("other companies should not control the campaign")
	}

	// Admins have read access to every campaign.
	if _, err := admin.campaignDetails(campaignId); err != nil {
		t.Fatal(err)
	}
}

func TestMediaRejectRequiresReason(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	company, err := env.newApprovedCompany(admin, "acme", validCnpj1)
	if err != nil {
		t.Fatal(err)
	}

	campaignId, err := company.createCampaign(campaignParams("launch"))
	if err != nil {
		t.Fatal(err)
	}

	mediaId, err := uploadMedia(company, campaignId, "ad.mp4")
	if err != nil {
		t.Fatal(err)
	}

	var queue []services.MediaInfo
	if err := admin.Get("/media/review-queue").Do(&queue); err != nil {
		t.Fatal(err)
	}
	if len(queue) != 1 || queue[0].Type != schema.MediaVideo {
		t.Fatalf("expected one pending video, got %v", queue)
	}

	err = admin.Post(fmt.Sprintf("/media/%v/reject", mediaId)).Json(map[string]string{}).Do(nil)
	if err == nil {
		t.Fatal("media reject without a reason should fail")
	}

	err = admin.Post(fmt.Sprintf("/media/%v/reject", mediaId)).
		Json(map[string]string{"reason": "video quality too low"}).Do(nil)
	if err != nil {
		t.Fatal(err)
	}

	info, err := company.campaignDetails(campaignId)
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Media) != 1 || info.Media[0].Status != schema.Rejected {
		t.Fatalf("expected rejected media, got %v", info.Media)
	}
}

func TestMediaUploadRejectsUnknownExtension(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	company, err := env.newApprovedCompany(admin, "acme", validCnpj1)
	if err != nil {
		t.Fatal(err)
	}

	campaignId, err := company.createCampaign(campaignParams("launch"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := uploadMedia(company, campaignId, "malware.exe"); err == nil {
		t.Fatal("unsupported file type should be rejected")
	}
}
