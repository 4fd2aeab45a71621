package services

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"admotion_platform/platform/auth"
	"admotion_platform/platform/schema"
	"admotion_platform/platform/storage"
	"admotion_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MediaService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	storage  storage.Storage
}

func (s *MediaService) Routes() chi.Router {
	r := chi.NewRouter()

	// Content is fetched by tablets during playlist sync, it is served from
	// the object path without user auth like a public bucket.
	r.Get("/{media_id}/content", s.Content)

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.With(auth.CampaignPermissionOnly(s.db, auth.OwnerPermission), checkSufficientStorage(s.storage)).
			Post("/upload/{campaign_id}", s.Upload)

		r.Delete("/{media_id}", s.Delete)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly(s.db))

		r.Get("/review-queue", s.ReviewQueue)
		r.Post("/{media_id}/approve", s.Approve)
		r.Post("/{media_id}/reject", s.Reject)
	})

	return r
}

var mediaTypeByExtension = map[string]string{
	".jpg":  schema.MediaImage,
	".jpeg": schema.MediaImage,
	".png":  schema.MediaImage,
	".gif":  schema.MediaImage,
	".webp": schema.MediaImage,
	".mp4":  schema.MediaVideo,
	".webm": schema.MediaVideo,
	".mov":  schema.MediaVideo,
}

func mediaObjectPath(campaignId, mediaId uuid.UUID, ext string) string {
	return filepath.Join("campaigns", campaignId.String(), "media", mediaId.String()+ext)
}

const maxUploadBytes = 200 * 1024 * 1024

type uploadResponse struct {
	MediaId uuid.UUID `json:"media_id"`
	Url     string    `json:"url"`
}

// Upload stores a media file for a campaign and queues it for review. The
// file goes to storage first; the db row is only created once the write
// succeeded, and the file is removed again if the row cannot be created.
func (s *MediaService) Upload(w http.ResponseWriter, r *http.Request) {
	campaignId, err := utils.URLParamUUID(r, "campaign_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("error parsing upload: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	mediaType, ok := mediaTypeByExtension[ext]
	if !ok {
		http.Error(w, fmt.Sprintf("unsupported file type '%v'", ext), http.StatusUnprocessableEntity)
		return
	}

	campaign, err := schema.GetCampaign(campaignId, s.db, false)
	if err != nil {
		if errors.Is(err, schema.ErrCampaignNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error uploading media: %v", err), http.StatusInternalServerError)
		return
	}

	if campaign.Status != schema.InReview && campaign.Status != schema.Approved {
		http.Error(w, fmt.Sprintf("campaign has status %v, media can only be added while in review or approved", campaign.Status), http.StatusUnprocessableEntity)
		return
	}

	mediaId := uuid.New()
	objectPath := mediaObjectPath(campaignId, mediaId, ext)

	if err := s.storage.Write(objectPath, file); err != nil {
		slog.Error("error writing media to storage", "campaign_id", campaignId, "error", err)
		http.Error(w, "error storing uploaded media", http.StatusInternalServerError)
		return
	}

	size, err := s.storage.Size(objectPath)
	if err != nil {
		slog.Error("error getting size of uploaded media", "path", objectPath, "error", err)
		http.Error(w, "error storing uploaded media", http.StatusInternalServerError)
		return
	}

	media := schema.Media{
		Id:         mediaId,
		CampaignId: campaign.Id,
		Type:       mediaType,
		ObjectPath: objectPath,
		Url:        fmt.Sprintf("/api/v1/media/%v/content", mediaId),
		FileName:   header.Filename,
		SizeBytes:  size,
		Status:     schema.InReview,
		UploadedAt: time.Now().UTC(),
	}

	if result := s.db.Create(&media); result.Error != nil {
		slog.Error("sql error creating media row", "campaign_id", campaignId, "error", result.Error)
		if delErr := s.storage.Delete(objectPath); delErr != nil {
			slog.Error("error removing orphaned media file", "path", objectPath, "error", delErr)
		}
		http.Error(w, fmt.Sprintf("error uploading media: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	slog.Info("media uploaded", "media_id", mediaId, "campaign_id", campaignId, "type", mediaType, "size", size)

	utils.WriteJsonResponse(w, uploadResponse{MediaId: mediaId, Url: media.Url})
}

func (s *MediaService) Content(w http.ResponseWriter, r *http.Request) {
	mediaId, err := utils.URLParamUUID(r, "media_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	media, err := schema.GetMedia(mediaId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrMediaNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error loading media: %v", err), http.StatusInternalServerError)
		return
	}

	content, err := s.storage.Read(media.ObjectPath)
	if err != nil {
		slog.Error("error reading media content", "media_id", mediaId, "path", media.ObjectPath, "error", err)
		http.Error(w, "error reading media content", http.StatusInternalServerError)
		return
	}
	defer content.Close()

	if contentType := mime.TypeByExtension(filepath.Ext(media.ObjectPath)); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", media.SizeBytes))

	if _, err := io.Copy(w, content); err != nil {
		slog.Error("error streaming media content", "media_id", mediaId, "error", err)
	}
}

// Delete removes a media that has not been approved yet. The campaign owner
// or an admin can delete; approved media is part of a reviewed campaign and
// stays until the campaign is deleted.
func (s *MediaService) Delete(w http.ResponseWriter, r *http.Request) {
	mediaId, err := utils.URLParamUUID(r, "media_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var objectPath string

	err = s.db.Transaction(func(txn *gorm.DB) error {
		media, err := schema.GetMedia(mediaId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrMediaNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		perm, err := auth.GetCampaignPermissions(media.CampaignId, user, txn)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}
		if perm < auth.OwnerPermission {
			return CodedError(errors.New("user does not have permission to delete this media"), http.StatusForbidden)
		}

		if media.Status == schema.Approved {
			return CodedError(errors.New("approved media cannot be deleted"), http.StatusUnprocessableEntity)
		}

		objectPath = media.ObjectPath

		if result := txn.Delete(&schema.Media{Id: mediaId}); result.Error != nil {
			slog.Error("sql error deleting media", "media_id", mediaId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting media: %v", err), GetResponseCode(err))
		return
	}

	if err := s.storage.Delete(objectPath); err != nil {
		slog.Error("error deleting media file", "media_id", mediaId, "path", objectPath, "error", err)
	}

	utils.WriteSuccess(w)
}

func (s *MediaService) ReviewQueue(w http.ResponseWriter, r *http.Request) {
	var media []schema.Media
	result := s.db.Where("status = ?", schema.InReview).Order("uploaded_at ASC").Find(&media)
	if result.Error != nil {
		slog.Error("sql error listing media review queue", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing media: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]MediaInfo, 0, len(media))
	for _, m := range media {
		infos = append(infos, MediaInfo{
			Id:         m.Id,
			Type:       m.Type,
			Url:        m.Url,
			FileName:   m.FileName,
			SizeBytes:  m.SizeBytes,
			Status:     m.Status,
			UploadedAt: m.UploadedAt,
		})
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *MediaService) Approve(w http.ResponseWriter, r *http.Request) {
	mediaId, err := utils.URLParamUUID(r, "media_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	admin, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		media, err := schema.GetMedia(mediaId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrMediaNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if media.Status != schema.InReview {
			return CodedError(fmt.Errorf("media has status %v, only media in review can be approved", media.Status), http.StatusUnprocessableEntity)
		}

		now := time.Now().UTC()
		media.Status = schema.Approved
		media.RejectReason = ""
		media.ApprovedBy = &admin.Id
		media.ApprovedAt = &now
		if result := txn.Save(&media); result.Error != nil {
			slog.Error("sql error approving media", "media_id", mediaId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		campaign, err := schema.GetCampaign(media.CampaignId, txn, false)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}

		if err := addNotification(txn, campaign.CompanyId, schema.NotificationApproval, "Media approved", fmt.Sprintf("A media of campaign '%v' has been approved.", campaign.Name)); err != nil {
			return err
		}
		return logActivity(txn, admin.Id, "media_approved", "media", mediaId, "")
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error approving media: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

// Reject marks a media as rejected. The reason is mandatory, it is the only
// feedback the advertiser gets about what to fix.
func (s *MediaService) Reject(w http.ResponseWriter, r *http.Request) {
	mediaId, err := utils.URLParamUUID(r, "media_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	admin, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params decisionRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Reason == "" {
		http.Error(w, "a reason is required to reject a media", http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		media, err := schema.GetMedia(mediaId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrMediaNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if media.Status != schema.InReview {
			return CodedError(fmt.Errorf("media has status %v, only media in review can be rejected", media.Status), http.StatusUnprocessableEntity)
		}

		media.Status = schema.Rejected
		media.RejectReason = params.Reason
		if result := txn.Save(&media); result.Error != nil {
			slog.Error("sql error rejecting media", "media_id", mediaId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		campaign, err := schema.GetCampaign(media.CampaignId, txn, false)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}

		if err := addNotification(txn, campaign.CompanyId, schema.NotificationRejection, "Media rejected", fmt.Sprintf("A media of campaign '%v' was rejected: %v", campaign.Name, params.Reason)); err != nil {
			return err
		}
		return logActivity(txn, admin.Id, "media_rejected", "media", mediaId, params.Reason)
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error rejecting media: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
