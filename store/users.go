package store

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm/clause"

	"github.com/adityadaniel/flora-friend/app/models"
)

// UpsertUser creates the user on first sight and refreshes last login and
// profile fields afterwards. The plan is never touched here.
func (s *Store) UpsertUser(ctx context.Context, subject, email, name string) error {
	now := time.Now().UTC()
	u := models.User{
		Subject:   subject,
		Email:     nilIfEmpty(email),
		Name:      nilIfEmpty(name),
		Plan:      models.PlanFree,
		LastLogin: now,
		CreatedAt: now,
	}
	updates := []string{"last_login"}
	if u.Email != nil {
		updates = append(updates, "email")
	}
	if u.Name != nil {
		updates = append(updates, "name")
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subject"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&u).Error
}

func (s *Store) GetUser(ctx context.Context, subject string) (models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("subject = ?", subject).First(&u).Error
	return u, notFound(err)
}

// SetPlan updates the cached plan, creating the user row when needed.
func (s *Store) SetPlan(ctx context.Context, subject string, plan models.Plan) error {
	now := time.Now().UTC()
	u := models.User{Subject: subject, Plan: plan, LastLogin: now, CreatedAt: now}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subject"}},
		DoUpdates: clause.AssignmentColumns([]string{"plan"}),
	}).Create(&u).Error
}

func (s *Store) SetStripeCustomer(ctx context.Context, subject, customerID string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("subject = ?", subject).
		Update("stripe_customer_id", customerID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SubjectByCustomer(ctx context.Context, customerID string) (string, error) {
	var u models.User
	err := s.db.WithContext(ctx).Select("subject").Where("stripe_customer_id = ?", customerID).First(&u).Error
	if err != nil {
		return "", notFound(err)
	}
	return u.Subject, nil
}

// SetPlanByCustomer updates the plan of the user linked to a Stripe customer
// and returns that user's subject.
func (s *Store) SetPlanByCustomer(ctx context.Context, customerID string, plan models.Plan) (string, error) {
	subject, err := s.SubjectByCustomer(ctx, customerID)
	if err != nil {
		return "", err
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("subject = ?", subject).
		Update("plan", plan).Error; err != nil {
		return "", err
	}
	return subject, nil
}

func nilIfEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
