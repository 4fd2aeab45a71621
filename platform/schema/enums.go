package schema

import "fmt"

const (
	RoleCompany = "company"
	RoleDriver  = "driver"
	RoleAdmin   = "admin"
	RoleNone    = "none"
)

func CheckValidRole(role string) error {
	if role == RoleCompany || role == RoleDriver || role == RoleAdmin {
		return nil
	}
	return fmt.Errorf("invalid role '%v', must be 'company', 'driver', or 'admin'", role)
}

const (
	UserActive    = "active"
	UserInactive  = "inactive"
	UserBlocked   = "blocked"
	UserSuspended = "suspended"
)

func CheckValidUserStatus(status string) error {
	if status == UserActive || status == UserInactive || status == UserBlocked || status == UserSuspended {
		return nil
	}
	return fmt.Errorf("invalid user status '%v'", status)
}

const (
	AwaitingApproval = "awaiting_approval"

	CompanyActive    = "active"
	CompanyBlocked   = "blocked"
	CompanySuspended = "suspended"

	DriverApproved  = "approved"
	DriverBlocked   = "blocked"
	DriverSuspended = "suspended"
)

const (
	DeviceActive      = "active"
	DeviceOffline     = "offline"
	DeviceMaintenance = "maintenance"
	DeviceDisabled    = "disabled"
)

func CheckValidDeviceStatus(status string) error {
	if status == DeviceActive || status == DeviceOffline || status == DeviceMaintenance || status == DeviceDisabled {
		return nil
	}
	return fmt.Errorf("invalid device status '%v'", status)
}

const (
	InReview = "in_review"
	Approved = "approved"
	Rejected = "rejected"

	CampaignActive = "active"
	CampaignPaused = "paused"
)

const (
	MediaImage = "image"
	MediaVideo = "video"
)

func CheckValidMediaType(mediaType string) error {
	if mediaType == MediaImage || mediaType == MediaVideo {
		return nil
	}
	return fmt.Errorf("invalid media type '%v', must be 'image' or 'video'", mediaType)
}

const (
	PaymentPending    = "pending"
	PaymentProcessing = "processing"
	PaymentPaid       = "paid"
	PaymentFailed     = "failed"
	PaymentRefunded   = "refunded"
)

const (
	InteractionView  = "view"
	InteractionClick = "click"
	InteractionShare = "share"
)

func CheckValidInteraction(interaction string) error {
	if interaction == InteractionView || interaction == InteractionClick || interaction == InteractionShare {
		return nil
	}
	return fmt.Errorf("invalid interaction '%v', must be 'view', 'click', or 'share'", interaction)
}

const (
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
	SubscriptionSuspended = "suspended"
	SubscriptionExpired   = "expired"
)

const (
	TicketOpen       = "open"
	TicketInProgress = "in_progress"
	TicketResolved   = "resolved"
	TicketClosed     = "closed"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

func CheckValidTicketPriority(priority string) error {
	if priority == PriorityLow || priority == PriorityMedium || priority == PriorityHigh || priority == PriorityUrgent {
		return nil
	}
	return fmt.Errorf("invalid ticket priority '%v'", priority)
}

const (
	TicketTechnical = "technical"
	TicketBilling   = "billing"
	TicketCampaign  = "campaign"
	TicketOther     = "other"
)

func CheckValidTicketKind(kind string) error {
	if kind == TicketTechnical || kind == TicketBilling || kind == TicketCampaign || kind == TicketOther {
		return nil
	}
	return fmt.Errorf("invalid ticket kind '%v'", kind)
}

const (
	AccessAdmin      = "admin"
	AccessSuperAdmin = "super_admin"
	AccessSupport    = "support"
)

const (
	SettingString  = "string"
	SettingNumber  = "number"
	SettingBoolean = "boolean"
	SettingJson    = "json"
)

const (
	NotificationSystem    = "system"
	NotificationApproval  = "approval"
	NotificationRejection = "rejection"
	NotificationPayment   = "payment"
	NotificationCampaign  = "campaign"
	NotificationSupport   = "support"
	NotificationAlert     = "alert"
)
