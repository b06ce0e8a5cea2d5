package domain

import "time"

// Ticket is the artifact issued exactly once per successful payment
// reference. TicketID is the short human-facing id printed on the pass;
// gate/section/row are assigned from fixed pools at issuance.
type Ticket struct {
	ID         string
	Reference  string
	TicketID   string
	HolderName string
	Gate       string
	Section    string
	Row        int
	CreatedAt  time.Time
}
