package sandbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/alovak/cardflow-issuing/internal/cardgen"
	"github.com/alovak/cardflow-issuing/issuer/models"
	"github.com/alovak/cardflow-issuing/network"
	"github.com/jackc/pgconn"
	"github.com/lib/pq"
)

var (
	ErrNotFound = fmt.Errorf("not found")
	ErrConflict = fmt.Errorf("conflict")
)

// CardRecord is a card as the sandbox network stores it.
type CardRecord struct {
	ID             string
	Owner          string
	PAN            string
	Last4          string
	ExpiryYYMM     string
	CardholderName string
	Status         network.Status
	Digitization   models.DigitizationState
}

func (c *CardRecord) toNetwork() network.Card {
	return network.Card{
		ID:             c.ID,
		Status:         c.Status,
		Last4:          c.Last4,
		ExpiryYYMM:     c.ExpiryYYMM,
		CardholderName: c.CardholderName,
	}
}

// Repository stores sandbox cards in memory, or in Postgres when created
// with NewPGRepository.
type Repository struct {
	mu       sync.RWMutex
	cards    []*CardRecord
	panIndex map[string]struct{}

	db      *sql.DB
	hashKey []byte
}

func NewRepository() *Repository {
	return &Repository{
		cards:    make([]*CardRecord, 0),
		panIndex: make(map[string]struct{}),
	}
}

// NewPGRepository constructs a db-backed repository.
func NewPGRepository(db *sql.DB, hashKey []byte) *Repository {
	return &Repository{db: db, hashKey: hashKey}
}

func (r *Repository) CreateCard(ctx context.Context, card *CardRecord) error {
	pan := cardgen.NormalizePAN(card.PAN)

	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.panIndex[pan]; ok {
			return fmt.Errorf("card number exists: %w", ErrConflict)
		}
		stored := *card
		r.cards = append(r.cards, &stored)
		r.panIndex[pan] = struct{}{}
		return nil
	}

	bin := pan
	if len(bin) > 6 {
		bin = bin[:6]
	}
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO sandbox.cards(card_id, owner_token, pan, pan_hash, bin, last4, expiry_yymm, cardholder_name, status, digitization)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    `, card.ID, card.Owner, pan, cardgen.Fingerprint(pan, r.hashKey), bin, card.Last4, card.ExpiryYYMM,
		card.CardholderName, string(card.Status), string(card.Digitization))
	if isUniqueViolation(err) {
		return fmt.Errorf("card number exists: %w", ErrConflict)
	}
	return err
}

// ExistsPAN reports whether a PAN was already issued.
func (r *Repository) ExistsPAN(ctx context.Context, pan string) (bool, error) {
	pan = cardgen.NormalizePAN(pan)

	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		_, ok := r.panIndex[pan]
		return ok, nil
	}

	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM sandbox.cards WHERE pan_hash=$1)`,
		cardgen.Fingerprint(pan, r.hashKey)).Scan(&exists)
	return exists, err
}

const cardColumns = `card_id, owner_token, pan, last4, expiry_yymm, cardholder_name, status, digitization`

func scanCard(row interface{ Scan(...any) error }) (*CardRecord, error) {
	var c CardRecord
	var status, digitization string
	if err := row.Scan(&c.ID, &c.Owner, &c.PAN, &c.Last4, &c.ExpiryYYMM, &c.CardholderName, &status, &digitization); err != nil {
		return nil, err
	}
	c.Status = network.Status(status)
	c.Digitization = models.DigitizationState(digitization)
	return &c, nil
}

func (r *Repository) GetCard(ctx context.Context, cardID string) (*CardRecord, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		for _, c := range r.cards {
			if c.ID == cardID {
				found := *c
				return &found, nil
			}
		}
		return nil, ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM sandbox.cards WHERE card_id=$1`, cardID)
	card, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return card, err
}

// ListCards returns the owner's cards in issue order. An empty statuses
// slice matches every status.
func (r *Repository) ListCards(ctx context.Context, owner string, statuses []network.Status) ([]*CardRecord, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		out := make([]*CardRecord, 0)
		for _, c := range r.cards {
			if c.Owner != owner || !matchesStatus(c.Status, statuses) {
				continue
			}
			found := *c
			out = append(out, &found)
		}
		return out, nil
	}

	filter := make([]string, 0, len(statuses))
	for _, s := range statuses {
		filter = append(filter, string(s))
	}
	rows, err := r.db.QueryContext(ctx, `
        SELECT `+cardColumns+` FROM sandbox.cards
         WHERE owner_token=$1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
         ORDER BY created_at, card_id
    `, owner, pq.Array(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*CardRecord, 0)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, card)
	}
	return out, rows.Err()
}

// UpdateStatus moves a card to status when its current status is one of
// from. It returns ErrConflict when the card is in another status.
func (r *Repository) UpdateStatus(ctx context.Context, cardID string, from []network.Status, status network.Status) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, c := range r.cards {
			if c.ID != cardID {
				continue
			}
			if !matchesStatus(c.Status, from) {
				return fmt.Errorf("card %s is %s: %w", cardID, c.Status, ErrConflict)
			}
			c.Status = status
			return nil
		}
		return ErrNotFound
	}

	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}
	res, err := r.db.ExecContext(ctx, `
        UPDATE sandbox.cards SET status=$2, updated_at=now()
         WHERE card_id=$1 AND status = ANY($3)
    `, cardID, string(status), pq.Array(allowed))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("card %s: %w", cardID, ErrConflict)
	}
	return nil
}

func (r *Repository) UpdateDigitization(ctx context.Context, cardID string, state models.DigitizationState) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, c := range r.cards {
			if c.ID == cardID {
				c.Digitization = state
				return nil
			}
		}
		return ErrNotFound
	}

	res, err := r.db.ExecContext(ctx, `UPDATE sandbox.cards SET digitization=$2, updated_at=now() WHERE card_id=$1`,
		cardID, string(state))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping returns DB readiness
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.PingContext(ctx)
}

func matchesStatus(status network.Status, statuses []network.Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code == "23505" {
		return true
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		return true
	}
	return false
}
