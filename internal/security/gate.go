package security

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"

	"inventory/internal/models"
	"inventory/internal/store"
)

type UserReader interface {
	GetByID(ctx context.Context, userID int64) (models.User, error)
}

type AdminChecker interface {
	IsAdmin(ctx context.Context, userID int64) (bool, bool, error)
}

type ItemHoldings interface {
	Quantity(ctx context.Context, q store.Getter, userID, itemID int64) (int64, error)
}

type NFTReader interface {
	GetByID(ctx context.Context, id int64) (models.NFT, error)
}

type AuditSink interface {
	Log(ctx context.Context, tx store.Execer, input store.AuditInput) error
}

// Event is one entry for the audit sink.
type Event struct {
	UserID     int64
	Action     string
	ObjectType string
	ObjectID   string
	Details    map[string]any
	Severity   string
}

// Gate holds the shared policy checks the services consult.
type Gate struct {
	limiter Limiter
	users   UserReader
	admins  AdminChecker
	items   ItemHoldings
	nfts    NFTReader
	audit   AuditSink
}

func NewGate(limiter Limiter, users UserReader, admins AdminChecker, items ItemHoldings, nfts NFTReader, audit AuditSink) *Gate {
	return &Gate{limiter: limiter, users: users, admins: admins, items: items, nfts: nfts, audit: audit}
}

// Allow reports whether the user may perform the action now. Counter store
// failures admit the call.
func (g *Gate) Allow(ctx context.Context, userID int64, policy Policy) bool {
	if g.limiter == nil || policy.Limit <= 0 {
		return true
	}
	ok, err := g.limiter.Allow(ctx, counterKey(policy.Action, userID), policy.Limit, policy.Window)
	if err != nil {
		log.Printf("rate limiter unavailable for %s: %v", policy.Action, err)
		return true
	}
	return ok
}

// CheckRateLimit is Allow as an error, logging refusals to the audit sink.
func (g *Gate) CheckRateLimit(ctx context.Context, userID int64, policy Policy) error {
	if g.Allow(ctx, userID, policy) {
		return nil
	}
	g.LogSecurityEvent(ctx, Event{
		UserID:     userID,
		Action:     "rate_limit_exceeded",
		ObjectType: "user",
		Details:    map[string]any{"action": policy.Action, "limit": policy.Limit},
		Severity:   "warning",
	})
	return ErrRateLimited
}

func (g *Gate) UserExists(ctx context.Context, userID int64) (bool, error) {
	if userID <= 0 {
		return false, nil
	}
	_, err := g.users.GetByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (g *Gate) IsBlocked(ctx context.Context, userID int64) (bool, error) {
	user, err := g.users.GetByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.IsBlocked, nil
}

// DisplayName falls back to the username.
func (g *Gate) DisplayName(ctx context.Context, userID int64) (string, error) {
	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.DisplayName != "" {
		return user.DisplayName, nil
	}
	return user.Username, nil
}

func (g *Gate) UserOwnsItem(ctx context.Context, userID, itemID int64) (bool, error) {
	qty, err := g.items.Quantity(ctx, nil, userID, itemID)
	if err != nil {
		return false, err
	}
	return qty > 0, nil
}

// CanManageNFT allows the current owner and any admin.
func (g *Gate) CanManageNFT(ctx context.Context, userID, nftID int64) (bool, error) {
	nft, err := g.nfts.GetByID(ctx, nftID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	if err == nil && nft.OwnerID == userID {
		return true, nil
	}
	isAdmin, _, err := g.admins.IsAdmin(ctx, userID)
	if err != nil {
		return false, err
	}
	return isAdmin, nil
}

// LogSecurityEvent appends to the audit sink outside any business
// transaction. Failures are logged and dropped.
func (g *Gate) LogSecurityEvent(ctx context.Context, event Event) {
	if g.audit == nil {
		return
	}
	details, err := json.Marshal(event.Details)
	if err != nil {
		details = []byte("{}")
	}
	meta := RequestMetaFromContext(ctx)
	input := store.AuditInput{
		Action:     event.Action,
		ObjectType: event.ObjectType,
		ObjectID:   event.ObjectID,
		Details:    string(details),
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Severity:   event.Severity,
	}
	if event.UserID > 0 {
		uid := event.UserID
		input.UserID = &uid
	}
	if err := g.audit.Log(ctx, nil, input); err != nil {
		log.Printf("audit log failed for %s: %v", event.Action, err)
	}
}
