package notification

import (
	"context"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrNotRecipient         = errors.New("not the recipient of this notification")
)

// Service handles notification business logic. Deliveries are best effort:
// a failed notification must never roll back the mutation that triggered it,
// so callers log errors from the Notify helpers and move on.
type Service struct {
	repo *Repository
}

// NewService creates a new notification service
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// GetByID retrieves a notification by its ID
func (s *Service) GetByID(ctx context.Context, id int64) (*Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, ErrNotificationNotFound
	}
	return n, nil
}

// ListByRecipientID retrieves all notifications for a user
func (s *Service) ListByRecipientID(ctx context.Context, recipientID int64, page, perPage int, unreadOnly bool) ([]*Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.repo.ListByRecipientID(ctx, recipientID, perPage, offset, unreadOnly)
}

// MarkAsRead marks a notification as read
func (s *Service) MarkAsRead(ctx context.Context, id, userID int64) error {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n == nil {
		return ErrNotificationNotFound
	}
	if n.RecipientID != userID {
		return ErrNotRecipient
	}

	return s.repo.MarkAsRead(ctx, id)
}

// MarkAllAsRead marks all notifications as read for a user
func (s *Service) MarkAllAsRead(ctx context.Context, userID int64) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

// GetUnreadCount returns the count of unread notifications
func (s *Service) GetUnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.repo.GetUnreadCount(ctx, userID)
}

// Typed helpers for the events this core emits

// NotifyJoinRequested tells a pool owner someone wants in
func (s *Service) NotifyJoinRequested(ctx context.Context, ownerID int64, planName string, requestID int64) error {
	message := "New request to join your " + planName + " pool"
	entityType := "REQUEST"
	_, err := s.repo.Create(ctx, ownerID, message, &entityType, &requestID)
	return err
}

// NotifyRequestApproved tells a requester their slot is theirs
func (s *Service) NotifyRequestApproved(ctx context.Context, requesterID int64, planName string, poolID int64) error {
	message := "You're in! Your request to join " + planName + " was approved"
	entityType := "POOL"
	_, err := s.repo.Create(ctx, requesterID, message, &entityType, &poolID)
	return err
}

// NotifyPaymentReceived tells a payee an entry was settled
func (s *Service) NotifyPaymentReceived(ctx context.Context, payeeID int64, amountCents int64, entryID int64) error {
	message := fmt.Sprintf("Payment of $%.2f received", float64(amountCents)/100)
	entityType := "ENTRY"
	_, err := s.repo.Create(ctx, payeeID, message, &entityType, &entryID)
	return err
}

// NotifySlotReopened tells a pool owner a slot freed up
func (s *Service) NotifySlotReopened(ctx context.Context, ownerID int64, planName string, poolID int64) error {
	message := "A slot opened up in your " + planName + " pool"
	entityType := "POOL"
	_, err := s.repo.Create(ctx, ownerID, message, &entityType, &poolID)
	return err
}
