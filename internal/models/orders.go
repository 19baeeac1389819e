package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// OrderCategory discriminates the three order variants. Each category
// lives in its own table and settles with slightly different fields.
type OrderCategory string

const (
	CategoryVoice     OrderCategory = "voice"
	CategoryMusic     OrderCategory = "music"
	CategoryOrchestra OrderCategory = "orchestra"
)

// Table names for the per-category order stores.
const (
	TableVoiceOrders     = "voice_orders"
	TableMusicOrders     = "music_orders"
	TableOrchestraOrders = "orchestra_orders"
)

// Order lifecycle statuses. Status tracks production, PaymentStatus
// tracks settlement; invoicing and the dashboard key off the exact
// strings, so the voice/music vs orchestra split must not be unified.
const (
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusPending        = "pending"
	OrderStatusPaid           = "paid"

	PaymentStatusCompleted = "completed" // voice and music after settlement
	PaymentStatusPaid      = "paid"      // orchestra after settlement
)

// BillingDetails is stored as a JSONB column and overwritten wholesale
// at settlement when the client supplies one.
type BillingDetails struct {
	FullName    string `json:"full_name,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	TaxID       string `json:"tax_id,omitempty"`
	Address     string `json:"address,omitempty"`
	Country     string `json:"country,omitempty"`
}

func (b BillingDetails) Value() (driver.Value, error) {
	return json.Marshal(b)
}

func (b *BillingDetails) Scan(src interface{}) error {
	return scanJSON(src, b)
}

// LicenseeDetails names the legal licensee on usage certificates; it
// may differ from the billing party.
type LicenseeDetails struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	TaxID   string `json:"tax_id,omitempty"`
	Country string `json:"country,omitempty"`
}

func (l LicenseeDetails) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *LicenseeDetails) Scan(src interface{}) error {
	return scanJSON(src, l)
}

func scanJSON(src, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}

// OrderCore is the shape shared by all three order variants.
type OrderCore struct {
	ID              string          `db:"id" json:"id"`
	OrderNumber     string          `db:"order_number" json:"order_number"`
	Email           string          `db:"email" json:"email"`
	Price           int64           `db:"price" json:"price"`
	Status          string          `db:"status" json:"status"`
	PaymentStatus   string          `db:"payment_status" json:"payment_status"`
	BillingDetails  BillingDetails  `db:"billing_details" json:"billing_details,omitempty"`
	LicenseeDetails LicenseeDetails `db:"licensee_details" json:"licensee_details,omitempty"`
	UserID          *string         `db:"user_id" json:"user_id,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

func (c *OrderCore) Core() *OrderCore { return c }

// Order is the sum type over the three variants. The settlement writer
// and notification builders switch on Category exhaustively instead of
// comparing loose strings.
type Order interface {
	Core() *OrderCore
	Category() OrderCategory
}

// VoiceOrder is a voice-over production order.
type VoiceOrder struct {
	OrderCore
	OrderType       string     `db:"order_type" json:"order_type"`
	ProjectName     string     `db:"project_name" json:"project_name"`
	Script          string     `db:"script" json:"script"`
	Language        string     `db:"language" json:"language"`
	VoiceName       string     `db:"voice_name" json:"voice_name"`
	Tone            string     `db:"tone" json:"tone"`
	UseCase         string     `db:"use_case" json:"use_case"`
	Rights          string     `db:"rights" json:"rights"`
	Tier            string     `db:"tier" json:"tier"`
	DurationSeconds int        `db:"duration_seconds" json:"duration_seconds"`
	PaidAt          *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	TransactionID   string     `db:"transaction_id" json:"transaction_id,omitempty"`
}

func (o *VoiceOrder) Category() OrderCategory { return CategoryVoice }

// MusicOrder is a custom music production order.
type MusicOrder struct {
	OrderCore
	ProjectName   string     `db:"project_name" json:"project_name"`
	Genre         string     `db:"genre" json:"genre"`
	Vibe          string     `db:"vibe" json:"vibe"`
	Mood          string     `db:"mood" json:"mood"`
	Tempo         string     `db:"tempo" json:"tempo"`
	Instruments   string     `db:"instruments" json:"instruments"`
	UsageType     string     `db:"usage_type" json:"usage_type"`
	Tier          string     `db:"tier" json:"tier"`
	PaidAt        *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	TransactionID string     `db:"transaction_id" json:"transaction_id,omitempty"`
}

func (o *MusicOrder) Category() OrderCategory { return CategoryMusic }

// OrchestraOrder is a live-strings recording order. It settles with a
// payment_ref instead of paid_at/transaction_id, and its billing is
// handled upstream of this service.
type OrchestraOrder struct {
	OrderCore
	ProjectName     string `db:"project_name" json:"project_name"`
	Genre           string `db:"genre" json:"genre"`
	TierName        string `db:"tier_name" json:"tier_name"`
	DurationMinutes int    `db:"duration_minutes" json:"duration_minutes"`
	UsageType       string `db:"usage_type" json:"usage_type"`
	PaymentRef      string `db:"payment_ref" json:"payment_ref,omitempty"`
}

func (o *OrchestraOrder) Category() OrderCategory { return CategoryOrchestra }

// StudioSettlement carries the fields written to a voice or music
// order after an approved charge. Nil pointers mean "leave untouched".
type StudioSettlement struct {
	OrderID         string
	Price           int64
	TransactionID   string
	PaidAt          time.Time
	BillingDetails  *BillingDetails
	LicenseeDetails *LicenseeDetails
	UserID          *string
}

// OrchestraSettlement carries the fields written to an orchestra order
// after an approved charge.
type OrchestraSettlement struct {
	OrderID         string
	Price           int64
	PaymentRef      string
	LicenseeDetails *LicenseeDetails
	UserID          *string
}

// User is a customer auth identity, keyed by email. Accounts created
// at settlement are pre-confirmed.
type User struct {
	ID             string    `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	EmailConfirmed bool      `db:"email_confirmed" json:"email_confirmed"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// PaymentEvent is an audit row written by the settlement worker for
// back-office reconciliation.
type PaymentEvent struct {
	ID        int64     `db:"id"`
	EventID   string    `db:"event_id"`
	EventType string    `db:"event_type"`
	OrderID   string    `db:"order_id"`
	Category  string    `db:"category"`
	Amount    int64     `db:"amount"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
