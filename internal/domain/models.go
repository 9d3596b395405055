package domain

import "time"

// Item is a catalog entry: the item master record the cashier grid and the
// stock screen operate on. PriceCents is the current list price; line records
// keep their own price so later catalog edits never rewrite history.
type Item struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
	Image      string `json:"image,omitempty"`
}

type ItemCreateRequest struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	PriceCents   int64  `json:"price_cents"`
	InitialStock int    `json:"initial_stock"`
	Image        string `json:"image,omitempty"`
}

type ItemUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	Type       *string `json:"type,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	Stock      *int    `json:"stock,omitempty"`
	Image      *string `json:"image,omitempty"`
}

type ItemListResponse struct {
	Items []Item `json:"items"`
}

// RawLineRow is one row as delivered by an external sales feed:
// {item_id, time, count, price}. Numeric fields arrive as strings because the
// feed is not trusted to send well-formed numbers; parsing happens once at
// the boundary (ledger.ParseLineRows) and the rest of the system only sees
// typed LineRecords.
type RawLineRow struct {
	ItemID int64  `json:"item_id"`
	Time   string `json:"time"`
	Count  string `json:"count"`
	Price  string `json:"price"`
}

// LineRecord is one sold (or returned) row: an item, the instant it was sold,
// the signed quantity, and the unit price at time of sale. Records sharing a
// timestamp form one logical transaction.
type LineRecord struct {
	ItemID         int64     `json:"item_id"`
	Timestamp      time.Time `json:"time"`
	Quantity       int       `json:"count"`
	UnitPriceCents int64     `json:"price_cents"`
}

// AmountCents is the extended amount of the record.
func (r LineRecord) AmountCents() int64 {
	return int64(r.Quantity) * r.UnitPriceCents
}

// LineItem is a LineRecord resolved against the catalog for display:
// name attached, extended amount precomputed.
type LineItem struct {
	ItemID         int64  `json:"item_id"`
	Name           string `json:"name"`
	Quantity       int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	AmountCents    int64  `json:"amount_cents"`
}

// Transaction is the set of line records sharing one timestamp, treated as a
// single checkout event. ID is derived from the timestamp, so re-aggregating
// the same server data always yields the same id. A negative total marks a
// return transaction.
type Transaction struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"time"`
	LineItems  []LineItem `json:"items"`
	TotalCents int64      `json:"total_cents"`
}

// IsReturn reports whether the transaction represents refunded items.
func (t Transaction) IsReturn() bool {
	return t.TotalCents < 0
}

// ReturnLine is one computed refund line: negative quantity, refund rounded
// once on the extended amount.
type ReturnLine struct {
	ItemID      int64  `json:"item_id"`
	Name        string `json:"name"`
	Quantity    int    `json:"qty"`
	RefundCents int64  `json:"refund_cents"`
}

type CheckoutRequest struct {
	// Items maps item id (decimal string, as JSON object keys must be) to
	// quantity. This is the same shape the external transaction submission
	// service accepts.
	Items map[string]int `json:"items"`
}

type CheckoutResponse struct {
	TransactionID string     `json:"transaction_id"`
	Time          string     `json:"time"`
	TotalCents    int64      `json:"total_cents"`
	LineItems     []LineItem `json:"items"`
}

type HistoryResponse struct {
	Date         string        `json:"date"`
	Transactions []Transaction `json:"transactions"`
}

type ReturnSubmitRequest struct {
	TransactionID string `json:"transaction_id"`
	// Quantities maps line-item display name to the quantity being returned,
	// mirroring how the operator adjusts the return screen.
	Quantities map[string]int `json:"quantities"`
}

type ReturnSubmitResponse struct {
	ReturnTransactionID string       `json:"return_transaction_id"`
	ForTransactionID    string       `json:"for_transaction_id"`
	TotalRefundCents    int64        `json:"total_refund_cents"`
	Lines               []ReturnLine `json:"lines"`
}

type ImportRequest struct {
	Rows []RawLineRow `json:"rows"`
}

type ImportResponse struct {
	Accepted int    `json:"accepted"`
	At       string `json:"at"`
}

// SummaryStatistics feeds the four stat boxes at the top of the dashboard.
// The original screen counts each distinct checkout as one customer, so
// orders and customers are always equal; both are kept because the dashboard
// shows both.
type SummaryStatistics struct {
	TotalRevenueCents int64 `json:"total_revenue_cents"`
	TotalOrders       int   `json:"total_orders"`
	TotalCustomers    int   `json:"total_customers"`
	TotalItemsSold    int   `json:"total_items_sold"`
}

type MonthlyPoint struct {
	Label        string `json:"label"`
	RevenueCents int64  `json:"revenue_cents"`
	Sales        int    `json:"sales"`
}

type CategorySales struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type SummaryResponse struct {
	Statistics  SummaryStatistics `json:"statistics"`
	Monthly     []MonthlyPoint    `json:"monthly"`
	BestSelling []CategorySales   `json:"best_selling"`
	GeneratedAt string            `json:"generated_at"`
}

type LoginRequest struct {
	Username string `json:"name"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	RoleManager = "manager"
	RoleCashier = "cashier"
)
