package upstream

import (
	"time"

	"github.com/shopspring/decimal"
)

// Session is the authenticated-actor snapshot the gateway returns on
// login, 2FA verification, registration and profile reads.
type Session struct {
	UserID     string           `json:"user_id"`
	Name       string           `json:"name"`
	Email      string           `json:"email"`
	Username   string           `json:"username"`
	Document   string           `json:"document"`
	Status     string           `json:"status"`
	Permission string           `json:"permission"`
	Balance    *decimal.Decimal `json:"balance,omitempty"`
}

const (
	PermissionClient  = "client"
	PermissionManager = "manager"
	PermissionAdmin   = "admin"
)

// LoginResult is either a full session (token set, session populated)
// or a pending 2FA challenge (Requires2FA set, TempToken present and
// nothing else usable).
type LoginResult struct {
	Token       string   `json:"token"`
	Session     *Session `json:"user"`
	Requires2FA bool     `json:"requires_2fa"`
	TempToken   string   `json:"temp_token"`
}

type RegisterData struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Document string `json:"document"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Document is a KYC attachment submitted alongside registration.
type Document struct {
	Field    string
	Filename string
	Content  []byte
}

type DepositRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PayerName     string          `json:"payer_name"`
	PayerDocument string          `json:"payer_document"`
	PayerContact  string          `json:"payer_contact"`
}

// Charge is one requested PIX deposit: the copyable payment code, the
// rendered QR image reference and the settlement status.
type Charge struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	QRCode        string          `json:"qr_code"`
	QRImageURL    string          `json:"qr_image_url"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Transaction struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	Status    string          `json:"status"`
	Method    string          `json:"method"`
	CreatedAt time.Time       `json:"created_at"`
}

type TransactionQuery struct {
	Status string
	Type   string
	Limit  int
	Cursor string
}

type TransactionSummary struct {
	TotalIn     decimal.Decimal `json:"total_in"`
	TotalOut    decimal.Decimal `json:"total_out"`
	TotalFees   decimal.Decimal `json:"total_fees"`
	CountIn     int             `json:"count_in"`
	CountOut    int             `json:"count_out"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
}

type Balance struct {
	Available decimal.Decimal `json:"available"`
	Blocked   decimal.Decimal `json:"blocked"`
	Pending   decimal.Decimal `json:"pending"`
}

type AdminUser struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	Status     string `json:"status"`
	Permission string `json:"permission"`
}

type ManagerAccount struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	ClientID []string `json:"client_ids"`
	Status   string   `json:"status"`
}

type Acquirer struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Active   bool   `json:"active"`
	Priority int    `json:"priority"`
}

// GatewaySettings is the fee configuration surface: percentages and
// fixed amounts the gateway charges per deposit/withdrawal.
type GatewaySettings struct {
	DepositFeePercent    decimal.Decimal `json:"deposit_fee_percent"`
	DepositFeeFixed      decimal.Decimal `json:"deposit_fee_fixed"`
	WithdrawalFeePercent decimal.Decimal `json:"withdrawal_fee_percent"`
	WithdrawalFeeFixed   decimal.Decimal `json:"withdrawal_fee_fixed"`
	MinDeposit           decimal.Decimal `json:"min_deposit"`
	MaxDeposit           decimal.Decimal `json:"max_deposit"`
}

// JourneyLevel is one step of the gamification ladder.
type JourneyLevel struct {
	Level       int             `json:"level"`
	Name        string          `json:"name"`
	MinVolume   decimal.Decimal `json:"min_volume"`
	FeeDiscount decimal.Decimal `json:"fee_discount_percent"`
	Icon        string          `json:"icon"`
}
