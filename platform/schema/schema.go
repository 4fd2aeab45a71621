package schema

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity root shared by the three role profiles. The Role
// column is the tagged role pointer used for resolution, so a session's
// effective role is a single indexed lookup instead of probing the three
// profile tables in turn.
type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Role  string `gorm:"size:50;not null;index"`
	Email string `gorm:"unique;size:254;not null"`
	Name  string `gorm:"size:200;not null"`
	Phone string `gorm:"size:20"`

	Status   string `gorm:"size:50;not null;default:'active'"`
	Password []byte

	Company *Company `gorm:"foreignKey:Id;constraint:OnDelete:CASCADE"`
	Driver  *Driver  `gorm:"foreignKey:Id;constraint:OnDelete:CASCADE"`
	Admin   *Admin   `gorm:"foreignKey:Id;constraint:OnDelete:CASCADE"`
}

// Company shares its primary key with the owning User row.
type Company struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Cnpj      string `gorm:"size:14;unique;not null"`
	LegalName string `gorm:"size:200;not null"`
	TradeName string `gorm:"size:200"`
	Instagram string `gorm:"size:100"`

	Status      string `gorm:"size:50;not null;default:'awaiting_approval'"`
	BlockReason string

	ApprovedBy *uuid.UUID `gorm:"type:uuid"`
	ApprovedAt *time.Time

	Campaigns []Campaign `gorm:"foreignKey:CompanyId"`
}

type Driver struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Cpf     string `gorm:"size:11;unique;not null"`
	Phone   string `gorm:"size:20;not null"`
	Vehicle string `gorm:"size:200;not null"`
	Plate   string `gorm:"size:10;not null"`

	Status      string `gorm:"size:50;not null;default:'awaiting_approval'"`
	BlockReason string

	// Payout destination, optional until first payout.
	BankAccount string `gorm:"size:100"`
	PixKey      string `gorm:"size:100"`

	DeviceId *uuid.UUID `gorm:"type:uuid"`
	Device   *Device    `gorm:"constraint:OnDelete:SET NULL"`

	ApprovedBy *uuid.UUID `gorm:"type:uuid"`
	ApprovedAt *time.Time
}

type Admin struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	AccessLevel string `gorm:"size:50;not null;default:'admin'"`
	Department  string `gorm:"size:100"`

	// No gorm default tag on booleans: gorm drops zero values from inserts
	// when the column carries a default, silently storing true for false.
	Active bool `gorm:"not null"`
}

type Device struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	SerialNumber string `gorm:"unique;size:100;not null"`
	Model        string `gorm:"size:100"`

	Status string `gorm:"size:50;not null;default:'active'"`

	DriverId *uuid.UUID `gorm:"type:uuid"`
	Driver   *Driver    `gorm:"foreignKey:DriverId;constraint:OnDelete:SET NULL"`

	LastLatitude   *float64
	LastLongitude  *float64
	LastSyncAt     *time.Time
	BatteryPercent *int

	Campaigns []CampaignDevice `gorm:"foreignKey:DeviceId;constraint:OnDelete:CASCADE"`
}

type Campaign struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	CompanyId uuid.UUID `gorm:"type:uuid;not null;index"`
	Company   *Company

	Name        string `gorm:"size:200;not null"`
	Description string

	Status       string `gorm:"size:50;not null;default:'in_review'"`
	RejectReason string

	Region string `gorm:"size:100;not null"`
	City   string `gorm:"size:100;not null"`

	StartDate time.Time `gorm:"not null"`
	EndDate   time.Time `gorm:"not null"`
	StartTime string    `gorm:"size:5;not null"`
	EndTime   string    `gorm:"size:5;not null"`

	DailyFrequency int `gorm:"not null;default:1"`

	TotalValue   *float64
	ValuePerView *float64

	Media   []Media          `gorm:"foreignKey:CampaignId;constraint:OnDelete:CASCADE"`
	Devices []CampaignDevice `gorm:"foreignKey:CampaignId;constraint:OnDelete:CASCADE"`
}

type Media struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	CampaignId uuid.UUID `gorm:"type:uuid;not null;index"`
	Campaign   *Campaign

	Type       string `gorm:"size:50;not null"`
	ObjectPath string `gorm:"size:500;not null"`
	Url        string `gorm:"size:500;not null"`
	FileName   string `gorm:"size:200"`
	SizeBytes  int64

	Status       string `gorm:"size:50;not null;default:'in_review'"`
	RejectReason string

	ApprovedBy *uuid.UUID `gorm:"type:uuid"`
	ApprovedAt *time.Time

	UploadedAt time.Time
}

// CampaignDevice is the campaign/device join row, carrying the per-device
// impression counters.
type CampaignDevice struct {
	CampaignId uuid.UUID `gorm:"type:uuid;primaryKey"`
	DeviceId   uuid.UUID `gorm:"type:uuid;primaryKey"`

	Active bool `gorm:"not null"`

	Views       int64 `gorm:"not null;default:0"`
	Clicks      int64 `gorm:"not null;default:0"`
	LastShownAt *time.Time

	Campaign *Campaign `gorm:"foreignKey:CampaignId"`
	Device   *Device   `gorm:"foreignKey:DeviceId"`
}

// ViewEvent rows are append only.
type ViewEvent struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	CampaignId uuid.UUID  `gorm:"type:uuid;not null;index"`
	DeviceId   uuid.UUID  `gorm:"type:uuid;not null;index"`
	MediaId    *uuid.UUID `gorm:"type:uuid"`

	Interaction string    `gorm:"size:50;not null"`
	Timestamp   time.Time `gorm:"not null;index"`
}

// DeviceLocation rows are append only.
type DeviceLocation struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	DeviceId  uuid.UUID `gorm:"type:uuid;not null;index"`
	Latitude  float64   `gorm:"not null"`
	Longitude float64   `gorm:"not null"`
	Speed     *float64
	Timestamp time.Time `gorm:"not null;index"`
}

type Payment struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	CompanyId  uuid.UUID  `gorm:"type:uuid;not null;index"`
	CampaignId *uuid.UUID `gorm:"type:uuid"`

	Amount float64 `gorm:"not null"`
	Status string  `gorm:"size:50;not null;default:'pending'"`
	Method string  `gorm:"size:50;not null"`

	DueDate       *time.Time
	PaidAt        *time.Time
	TransactionId string `gorm:"size:200"`

	Company *Company `gorm:"foreignKey:CompanyId"`
}

type Payout struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	DriverId uuid.UUID `gorm:"type:uuid;not null;index"`
	Driver   *Driver   `gorm:"foreignKey:DriverId"`

	PeriodStart time.Time `gorm:"not null"`
	PeriodEnd   time.Time `gorm:"not null"`

	Amount float64 `gorm:"not null"`
	Views  int64   `gorm:"not null;default:0"`

	Status     string `gorm:"size:50;not null;default:'pending'"`
	Method     string `gorm:"size:50"`
	PaidAt     *time.Time
	ReceiptUrl string `gorm:"size:500"`
}

type DriverEarning struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	DriverId uuid.UUID `gorm:"type:uuid;not null;index"`
	Date     time.Time `gorm:"not null"`
	Views    int64     `gorm:"not null;default:0"`
	Amount   float64   `gorm:"not null;default:0"`
}

type Plan struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name        string `gorm:"unique;size:100;not null"`
	Description string

	MonthlyPrice float64 `gorm:"not null"`
	PricePerView *float64

	CampaignLimit *int
	MediaLimit    *int

	Active bool `gorm:"not null"`
}

type Subscription struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	CompanyId uuid.UUID `gorm:"type:uuid;not null;index"`
	PlanId    uuid.UUID `gorm:"type:uuid;not null"`

	Status string `gorm:"size:50;not null;default:'active'"`

	StartDate time.Time `gorm:"not null"`
	EndDate   *time.Time
	Price     float64 `gorm:"not null"`

	Company *Company `gorm:"foreignKey:CompanyId"`
	Plan    *Plan    `gorm:"foreignKey:PlanId"`
}

type Notification struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	UserId uuid.UUID `gorm:"type:uuid;not null;index"`

	Kind    string `gorm:"size:50;not null"`
	Title   string `gorm:"size:200;not null"`
	Message string `gorm:"not null"`
	Link    string `gorm:"size:500"`

	Read      bool `gorm:"not null;default:false"`
	ReadAt    *time.Time
	CreatedAt time.Time
}

type SupportTicket struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	UserId uuid.UUID `gorm:"type:uuid;not null;index"`
	User   *User     `gorm:"foreignKey:UserId"`

	Kind        string `gorm:"size:50;not null"`
	Subject     string `gorm:"size:200;not null"`
	Description string `gorm:"not null"`

	Status   string `gorm:"size:50;not null;default:'open'"`
	Priority string `gorm:"size:50;not null;default:'medium'"`

	AssignedTo *uuid.UUID `gorm:"type:uuid"`
	ResolvedBy *uuid.UUID `gorm:"type:uuid"`
	ResolvedAt *time.Time

	CreatedAt time.Time
	Messages  []TicketMessage `gorm:"foreignKey:TicketId;constraint:OnDelete:CASCADE"`
}

type TicketMessage struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	TicketId uuid.UUID `gorm:"type:uuid;not null;index"`
	UserId   uuid.UUID `gorm:"type:uuid;not null"`

	Message   string `gorm:"not null"`
	CreatedAt time.Time
}

type ActivityLog struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	UserId *uuid.UUID `gorm:"type:uuid;index"`

	Action      string     `gorm:"size:100;not null"`
	Entity      string     `gorm:"size:100;index"`
	EntityId    *uuid.UUID `gorm:"type:uuid"`
	Description string

	CreatedAt time.Time
}

type SystemSetting struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Key         string `gorm:"unique;size:100;not null"`
	Value       string
	Type        string `gorm:"size:50;not null;default:'string'"`
	Description string
	Category    string `gorm:"size:100"`
	Editable    bool   `gorm:"not null"`
}

// AllTables lists every entity for AutoMigrate, in dependency order.
func AllTables() []interface{} {
	return []interface{}{
		&User{}, &Company{}, &Driver{}, &Admin{},
		&Device{}, &Campaign{}, &Media{}, &CampaignDevice{},
		&ViewEvent{}, &DeviceLocation{},
		&Payment{}, &Payout{}, &DriverEarning{},
		&Plan{}, &Subscription{},
		&Notification{}, &SupportTicket{}, &TicketMessage{},
		&ActivityLog{}, &SystemSetting{},
	}
}
