package mongo

import (
	"time"

	"github.com/missionhub/entitle/entitlement"
	"github.com/missionhub/entitle/id"
	"github.com/missionhub/entitle/journal"
	"github.com/missionhub/entitle/plan"
	"github.com/missionhub/entitle/subscription"
	"github.com/missionhub/entitle/types"
)

// ==================== Entitlement models ====================

type entitlementModel struct {
	UserID             string     `bson:"_id"`
	Tier               string     `bson:"tier"`
	ExpiresAt          *time.Time `bson:"expires_at,omitempty"`
	ApplicationCredits int64      `bson:"application_credits"`
	MissionCredits     int64      `bson:"mission_credits"`
	CreatedAt          time.Time  `bson:"created_at"`
	UpdatedAt          time.Time  `bson:"updated_at"`
}

func toEntitlementModel(e *entitlement.Entitlement) *entitlementModel {
	return &entitlementModel{
		UserID:             e.UserID.String(),
		Tier:               string(e.Tier),
		ExpiresAt:          e.ExpiresAt,
		ApplicationCredits: e.ApplicationCredits,
		MissionCredits:     e.MissionCredits,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

func fromEntitlementModel(m *entitlementModel) (*entitlement.Entitlement, error) {
	userID, err := id.ParseUserID(m.UserID)
	if err != nil {
		return nil, err
	}
	return &entitlement.Entitlement{
		UserID:             userID,
		Tier:               plan.Tier(m.Tier),
		ExpiresAt:          m.ExpiresAt,
		ApplicationCredits: m.ApplicationCredits,
		MissionCredits:     m.MissionCredits,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	ID                     string     `bson:"_id"`
	UserID                 string     `bson:"user_id"`
	ProviderSubscriptionID string     `bson:"provider_subscription_id,omitempty"`
	Status                 string     `bson:"status"`
	CancelAtPeriodEnd      bool       `bson:"cancel_at_period_end"`
	CurrentPeriodEnd       *time.Time `bson:"current_period_end,omitempty"`
	CreatedAt              time.Time  `bson:"created_at"`
	UpdatedAt              time.Time  `bson:"updated_at"`

	// Live mirrors status != cancelled. Partial indexes only support
	// equality predicates, so the uniqueness filter keys off this field.
	Live bool `bson:"live"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:                     s.ID.String(),
		UserID:                 s.UserID.String(),
		ProviderSubscriptionID: s.ProviderSubscriptionID,
		Status:                 string(s.Status),
		CancelAtPeriodEnd:      s.CancelAtPeriodEnd,
		CurrentPeriodEnd:       s.CurrentPeriodEnd,
		CreatedAt:              s.CreatedAt,
		UpdatedAt:              s.UpdatedAt,
		Live:                   !s.Cancelled(),
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(m.UserID)
	if err != nil {
		return nil, err
	}
	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                     subID,
		UserID:                 userID,
		ProviderSubscriptionID: m.ProviderSubscriptionID,
		Status:                 subscription.Status(m.Status),
		CancelAtPeriodEnd:      m.CancelAtPeriodEnd,
		CurrentPeriodEnd:       m.CurrentPeriodEnd,
	}, nil
}

// ==================== Journal models ====================

type journalEntryModel struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Kind      string    `bson:"kind"`
	Amount    int64     `bson:"amount"`
	Remaining int64     `bson:"remaining"`
	Timestamp time.Time `bson:"ts"`
}

func toJournalEntryModel(e *journal.Entry) *journalEntryModel {
	return &journalEntryModel{
		ID:        e.ID.String(),
		UserID:    e.UserID.String(),
		Kind:      string(e.Kind),
		Amount:    e.Amount,
		Remaining: e.Remaining,
		Timestamp: e.Timestamp,
	}
}

func fromJournalEntryModel(m *journalEntryModel) (*journal.Entry, error) {
	entryID, err := id.ParseJournalEntryID(m.ID)
	if err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(m.UserID)
	if err != nil {
		return nil, err
	}
	return &journal.Entry{
		ID:        entryID,
		UserID:    userID,
		Kind:      entitlement.CreditKind(m.Kind),
		Amount:    m.Amount,
		Remaining: m.Remaining,
		Timestamp: m.Timestamp,
	}, nil
}
