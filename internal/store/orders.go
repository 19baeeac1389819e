package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"studio-payments/internal/models"
)

// Category reads return (nil, nil) on a miss so the locator can fall
// through to the next table without treating absence as an error.

// GetVoiceOrderByID retrieves a voice order by id
func (s *Store) GetVoiceOrderByID(ctx context.Context, id string) (*models.VoiceOrder, error) {
	var order models.VoiceOrder
	err := s.db.GetContext(ctx, &order, "SELECT * FROM voice_orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetMusicOrderByID retrieves a music order by id
func (s *Store) GetMusicOrderByID(ctx context.Context, id string) (*models.MusicOrder, error) {
	var order models.MusicOrder
	err := s.db.GetContext(ctx, &order, "SELECT * FROM music_orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrchestraOrderByID retrieves an orchestra order by id
func (s *Store) GetOrchestraOrderByID(ctx context.Context, id string) (*models.OrchestraOrder, error) {
	var order models.OrchestraOrder
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orchestra_orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// SettleStudioOrder marks a voice or music order paid. The persisted
// price is the amount actually charged; billing/licensee details and
// user_id are wholesale overwrites applied only when supplied.
func (s *Store) SettleStudioOrder(ctx context.Context, table string, st *models.StudioSettlement) error {
	if table != models.TableVoiceOrders && table != models.TableMusicOrders {
		return fmt.Errorf("invalid studio order table: %s", table)
	}

	sets := []string{
		"status = 'paid'",
		"payment_status = 'completed'",
		"price = $1",
		"paid_at = $2",
		"transaction_id = $3",
		"updated_at = NOW()",
	}
	args := []interface{}{st.Price, st.PaidAt, st.TransactionID}

	if st.BillingDetails != nil {
		args = append(args, *st.BillingDetails)
		sets = append(sets, fmt.Sprintf("billing_details = $%d", len(args)))
	}
	if st.LicenseeDetails != nil {
		args = append(args, *st.LicenseeDetails)
		sets = append(sets, fmt.Sprintf("licensee_details = $%d", len(args)))
	}
	if st.UserID != nil {
		args = append(args, *st.UserID)
		sets = append(sets, fmt.Sprintf("user_id = $%d", len(args)))
	}

	args = append(args, st.OrderID)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		table, strings.Join(sets, ", "), len(args))

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// SettleOrchestraOrder marks an orchestra order paid. Orchestra rows
// carry payment_ref instead of paid_at/transaction_id, and their
// billing details are managed upstream.
func (s *Store) SettleOrchestraOrder(ctx context.Context, st *models.OrchestraSettlement) error {
	sets := []string{
		"status = 'paid'",
		"payment_status = 'paid'",
		"price = $1",
		"payment_ref = $2",
		"updated_at = NOW()",
	}
	args := []interface{}{st.Price, st.PaymentRef}

	if st.LicenseeDetails != nil {
		args = append(args, *st.LicenseeDetails)
		sets = append(sets, fmt.Sprintf("licensee_details = $%d", len(args)))
	}
	if st.UserID != nil {
		args = append(args, *st.UserID)
		sets = append(sets, fmt.Sprintf("user_id = $%d", len(args)))
	}

	args = append(args, st.OrderID)
	query := fmt.Sprintf("UPDATE orchestra_orders SET %s WHERE id = $%d",
		strings.Join(sets, ", "), len(args))

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}
