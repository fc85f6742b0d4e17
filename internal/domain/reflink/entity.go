package reflink

import "time"

// Status of a daily reference link
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// Link is the administrator-supplied chart URL for one Bangkok trade date
type Link struct {
	TradeDate string    `db:"trade_date_bkk"`
	URL       string    `db:"url"`
	Status    Status    `db:"status"`
	UpdatedAt time.Time `db:"updated_at"`
}
