package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"swift-coupons/internal/models"
	"swift-coupons/internal/validation"
)

// Meta keys under which extension blobs are stored per coupon.
const (
	MetaQualifiers = "swiftcoupons_qualifiers"
	MetaBXGX       = "swiftcoupons_bxgx"
	MetaScheduler  = "swiftcoupons_scheduler"
	MetaURLApply   = "swiftcoupons_url_coupons"
	MetaAutoApply  = "swiftcoupons_auto_apply"
)

// BlobVersion is the current envelope schema version.
const BlobVersion = 1

// ErrUnsupportedVersion is returned for envelopes written by a newer schema.
var ErrUnsupportedVersion = errors.New("database: unsupported blob version")

type envelope struct {
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

func encodeBlob(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return marshalJSON(envelope{Version: BlobVersion, Data: data}, "")
}

// decodeBlob unwraps an envelope into dest. Bare (unversioned) objects carry
// no envelope and are read as version 1 payloads.
func decodeBlob(serialized string, dest interface{}) error {
	var env envelope
	if err := json.Unmarshal([]byte(serialized), &env); err != nil {
		return err
	}
	if env.Version > BlobVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	if env.Version == 0 || env.Data == nil {
		return json.Unmarshal([]byte(serialized), dest)
	}
	return json.Unmarshal(env.Data, dest)
}

// UpsertCoupon creates or updates a coupon by code, replacing all blobs.
func (db *DB) UpsertCoupon(ctx context.Context, c models.Coupon) error {
	blobs := map[string]interface{}{
		MetaQualifiers: c.Qualifiers,
		MetaBXGX:       c.BXGX,
		MetaScheduler:  c.Scheduler,
		MetaURLApply:   c.URLApply,
		MetaAutoApply:  c.AutoApply,
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var expiresAt sql.NullString
	if c.ExpiresAt != nil {
		expiresAt = sql.NullString{String: c.ExpiresAt.UTC().Format(time.RFC3339), Valid: true}
	}
	var urlCode sql.NullString
	if c.URLApply.Enabled && c.URLApply.CodeOverride != "" {
		urlCode = sql.NullString{String: models.NormalizeCode(c.URLApply.CodeOverride), Valid: true}
	}

	query := `INSERT INTO coupons (
		id, code, discount_type, amount, expires_at, url_code, auto_apply, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(code) DO UPDATE SET
		discount_type = excluded.discount_type,
		amount = excluded.amount,
		expires_at = excluded.expires_at,
		url_code = excluded.url_code,
		auto_apply = excluded.auto_apply,
		updated_at = excluded.updated_at`

	_, err = tx.ExecContext(ctx, query,
		c.ID,
		c.Code,
		c.DiscountType,
		c.Amount,
		expiresAt,
		urlCode,
		c.AutoApply.Enabled,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert coupon: %w", err)
	}

	var id string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM coupons WHERE code = ?`, c.Code).Scan(&id); err != nil {
		return fmt.Errorf("failed to resolve coupon id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO coupon_meta (coupon_id, meta_key, meta_value)
		VALUES (?, ?, ?)
		ON CONFLICT(coupon_id, meta_key) DO UPDATE SET meta_value = excluded.meta_value`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for key, blob := range blobs {
		value, err := encodeBlob(blob)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", key, err)
		}
		if _, err := stmt.ExecContext(ctx, id, key, value); err != nil {
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const couponColumns = `id, code, discount_type, amount, expires_at`

// GetCoupon loads a coupon by its normalized code.
func (db *DB) GetCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	return db.getCoupon(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = ?`, code)
}

// GetCouponByURLCode loads the coupon whose URL override code is code.
func (db *DB) GetCouponByURLCode(ctx context.Context, code string) (*models.Coupon, error) {
	return db.getCoupon(ctx, `SELECT `+couponColumns+` FROM coupons WHERE url_code = ?`, code)
}

func (db *DB) getCoupon(ctx context.Context, query string, arg string) (*models.Coupon, error) {
	row := db.conn.QueryRowContext(ctx, query, arg)
	c, err := scanCoupon(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := db.loadBlobs(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListAutoApplyCoupons returns every coupon flagged for auto-apply.
func (db *DB) ListAutoApplyCoupons(ctx context.Context) ([]*models.Coupon, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE auto_apply = 1 ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query auto-apply coupons: %w", err)
	}
	defer rows.Close()

	var coupons []*models.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating coupons: %w", err)
	}

	for _, c := range coupons {
		if err := db.loadBlobs(ctx, c); err != nil {
			return nil, err
		}
	}
	return coupons, nil
}

// DeleteCoupon removes a coupon and its blobs.
func (db *DB) DeleteCoupon(ctx context.Context, code string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM coupons WHERE code = ?`, code)
	if err != nil {
		return fmt.Errorf("failed to delete coupon: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCoupon(row scanner) (*models.Coupon, error) {
	var c models.Coupon
	var expiresAt sql.NullString
	if err := row.Scan(&c.ID, &c.Code, &c.DiscountType, &c.Amount, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan coupon: %w", err)
	}
	if expiresAt.Valid {
		t, err := time.Parse(time.RFC3339, expiresAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse expires_at: %w", err)
		}
		c.ExpiresAt = &t
	}
	return &c, nil
}

// loadBlobs decodes the coupon's extension blobs. A blob that fails to
// decode or validate is logged and left at its zero (disabled) value.
func (db *DB) loadBlobs(ctx context.Context, c *models.Coupon) error {
	rows, err := db.conn.QueryContext(ctx, `SELECT meta_key, meta_value FROM coupon_meta WHERE coupon_id = ?`, c.ID)
	if err != nil {
		return fmt.Errorf("failed to query coupon meta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("failed to scan coupon meta: %w", err)
		}
		if err := decodeCouponBlob(c, key, value); err != nil {
			db.logger.Warn("ignoring malformed coupon blob", "coupon", c.Code, "key", key, "error", err)
		}
	}
	return rows.Err()
}

func decodeCouponBlob(c *models.Coupon, key, value string) error {
	switch key {
	case MetaQualifiers:
		var v models.QualifierConfig
		if err := decodeBlob(value, &v); err != nil {
			return err
		}
		if err := validation.ValidateQualifiers(v); err != nil {
			return err
		}
		c.Qualifiers = v
	case MetaBXGX:
		var v models.DealConfig
		if err := decodeBlob(value, &v); err != nil {
			return err
		}
		if err := validation.ValidateDeal(v); err != nil {
			return err
		}
		c.BXGX = v
	case MetaScheduler:
		var v models.ScheduleConfig
		if err := decodeBlob(value, &v); err != nil {
			return err
		}
		if err := validation.ValidateSchedule(v); err != nil {
			return err
		}
		c.Scheduler = v
	case MetaURLApply:
		var v models.URLApplyConfig
		if err := decodeBlob(value, &v); err != nil {
			return err
		}
		if err := validation.ValidateURLApply(v); err != nil {
			return err
		}
		c.URLApply = v
	case MetaAutoApply:
		var v models.AutoApplyConfig
		if err := decodeBlob(value, &v); err != nil {
			return err
		}
		c.AutoApply = v
	}
	return nil
}
