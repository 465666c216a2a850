package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/config"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/metrics"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository"
)

// FraudService runs the batch heuristics and stores alerts for review.
type FraudService struct {
	store  repository.Store
	cfg    config.FraudConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewFraudService(store repository.Store, cfg config.FraudConfig, logger *zap.Logger) *FraudService {
	return &FraudService{store: store, cfg: cfg, logger: logger.Named("fraud"), now: time.Now}
}

// Scan runs every heuristic and returns the number of new alerts. adminID
// is nil for scheduled runs. The run is written to the admin log whether
// it succeeds or not.
func (s *FraudService) Scan(ctx context.Context, adminID *int64) (int, error) {
	now := s.now()
	created := 0

	err := func() error {
		for _, check := range []func(context.Context, time.Time) (int, error){
			s.scanVelocity,
			s.scanLargeDeposits,
			s.scanSharedIPs,
		} {
			n, err := check(ctx, now)
			created += n
			if err != nil {
				return err
			}
		}
		return nil
	}()

	details := map[string]interface{}{"new_alerts": created}
	if err != nil {
		details["error"] = err.Error()
	}
	writeAdminLog(ctx, s.store, s.logger, adminID, model.AdminActionFraudScan, nil, err == nil, details)

	if err != nil {
		s.logger.Error("fraud scan failed", zap.Int("new_alerts", created), zap.Error(err))
		return created, err
	}
	s.logger.Info("fraud scan finished", zap.Int("new_alerts", created))
	return created, nil
}

// scanVelocity flags users with more than VelocityThreshold ledger rows
// inside the window.
func (s *FraudService) scanVelocity(ctx context.Context, now time.Time) (int, error) {
	hits, err := s.store.ListVelocityHits(ctx, now.Add(-s.cfg.VelocityWindow), s.cfg.VelocityThreshold)
	if err != nil {
		return 0, fmt.Errorf("velocity query: %w", err)
	}

	created := 0
	for _, hit := range hits {
		recent, err := s.store.HasRecentFraudAlert(ctx, hit.UserID, model.FraudAlertVelocity, now.Add(-s.cfg.DedupWindow))
		if err != nil {
			return created, err
		}
		if recent {
			continue
		}

		severity := model.FraudSeverityMedium
		if hit.TransactionCount > s.cfg.VelocityHigh {
			severity = model.FraudSeverityHigh
		}
		userID := hit.UserID
		err = s.raise(ctx, &model.FraudAlert{
			UserID:      &userID,
			Type:        model.FraudAlertVelocity,
			Severity:    severity,
			Description: fmt.Sprintf("%d transactions in %s", hit.TransactionCount, s.cfg.VelocityWindow),
		}, map[string]interface{}{"transaction_count": hit.TransactionCount})
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// scanLargeDeposits flags completed deposits at or above LargeDepositAmount.
func (s *FraudService) scanLargeDeposits(ctx context.Context, now time.Time) (int, error) {
	deposits, err := s.store.ListLargeDeposits(ctx, now.Add(-s.cfg.LargeDepositWindow), s.cfg.LargeDepositAmount)
	if err != nil {
		return 0, fmt.Errorf("large deposit query: %w", err)
	}

	created := 0
	for _, t := range deposits {
		recent, err := s.store.HasRecentFraudAlert(ctx, t.UserID, model.FraudAlertSuspiciousPayment, now.Add(-s.cfg.DedupWindow))
		if err != nil {
			return created, err
		}
		if recent {
			continue
		}

		severity := model.FraudSeverityMedium
		if !t.Amount.LessThan(s.cfg.LargeDepositHigh) {
			severity = model.FraudSeverityHigh
		}
		userID := t.UserID
		err = s.raise(ctx, &model.FraudAlert{
			UserID:      &userID,
			Type:        model.FraudAlertSuspiciousPayment,
			Severity:    severity,
			Description: fmt.Sprintf("Large deposit of %s", t.Amount.StringFixed(2)),
		}, map[string]interface{}{
			"transaction_id": t.ID.String(),
			"amount":         t.Amount.StringFixed(2),
		})
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// scanSharedIPs flags addresses used by SharedIPMinUsers or more accounts.
// One alert per address, ever.
func (s *FraudService) scanSharedIPs(ctx context.Context, now time.Time) (int, error) {
	shared, err := s.store.ListSharedIPs(ctx, now.Add(-s.cfg.SharedIPWindow), s.cfg.SharedIPMinUsers)
	if err != nil {
		return 0, fmt.Errorf("shared ip query: %w", err)
	}

	created := 0
	for _, ip := range shared {
		exists, err := s.store.HasFraudAlertForIP(ctx, model.FraudAlertMultipleAccounts, ip.IPAddress)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		severity := model.FraudSeverityMedium
		if ip.UserCount >= s.cfg.SharedIPHigh {
			severity = model.FraudSeverityHigh
		}
		address := ip.IPAddress
		err = s.raise(ctx, &model.FraudAlert{
			Type:        model.FraudAlertMultipleAccounts,
			Severity:    severity,
			Description: fmt.Sprintf("%d accounts share IP %s", ip.UserCount, address),
			IPAddress:   &address,
		}, map[string]interface{}{
			"user_count": ip.UserCount,
			"user_ids":   []int64(ip.UserIDs),
		})
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func (s *FraudService) raise(ctx context.Context, alert *model.FraudAlert, metadata map[string]interface{}) error {
	encoded, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}
	alert.Metadata = encoded
	alert.Status = model.FraudAlertStatusOpen
	if err := s.store.CreateFraudAlert(ctx, alert); err != nil {
		return fmt.Errorf("create fraud alert: %w", err)
	}
	metrics.FraudAlerts.WithLabelValues(string(alert.Type)).Inc()
	s.logger.Warn("fraud alert",
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)),
		zap.String("description", alert.Description))
	return nil
}

func (s *FraudService) ListAlerts(ctx context.Context, status *model.FraudAlertStatus, limit, offset int) ([]model.FraudAlert, error) {
	return s.store.ListFraudAlerts(ctx, status, pageLimit(limit), offset)
}

// Resolve closes an alert as RESOLVED or DISMISSED.
func (s *FraudService) Resolve(ctx context.Context, adminID int64, id uuid.UUID, status model.FraudAlertStatus) error {
	if status != model.FraudAlertStatusResolved && status != model.FraudAlertStatusDismissed {
		return validationf("status must be %s or %s", model.FraudAlertStatusResolved, model.FraudAlertStatusDismissed)
	}
	err := s.store.ResolveFraudAlert(ctx, id, status, adminID)
	if errors.Is(err, repository.ErrFraudAlertNotFound) {
		err = ErrFraudAlertNotFound
	}
	writeAdminLog(ctx, s.store, s.logger, &adminID, model.AdminActionResolveAlert, nil, err == nil, map[string]interface{}{
		"alert_id": id.String(),
		"status":   status,
	})
	return err
}
