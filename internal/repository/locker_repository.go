package repository // repository for locker persistence

import (
    "context"      // context for managing deadlines
    "database/sql" // sql provides DB interfaces
    "time"         // timestamps stamped on writes

    "github.com/lokkit/kiosk-server/internal/model"
)

// LockerRepo is the MySQL-backed LockerStore.  The lockers table is keyed
// on (kiosk_id, locker_id) and carries a version column used as the
// optimistic concurrency token: every UPDATE is conditioned on the version
// the caller read, so concurrent writers against the same prior version
// cannot both succeed.
type LockerRepo struct {
    db *sql.DB
}

// NewLockerRepo constructs a LockerRepo given a DB handle.
func NewLockerRepo(db *sql.DB) *LockerRepo {
    return &LockerRepo{db: db}
}

// DB exposes the underlying handle for callers that need to compose
// transactions with other repositories.
func (r *LockerRepo) DB() *sql.DB { return r.db }

const lockerColumns = `kiosk_id, locker_id, status, owner_type, owner_key, reserved_at, owned_at, version, is_vip, display_name, updated_at`

// EnsureSchema creates the lockers table when it does not exist.  It is
// called once at startup before any kiosk traffic is accepted.
func (r *LockerRepo) EnsureSchema(ctx context.Context) error {
    const ddl = `CREATE TABLE IF NOT EXISTS lockers (
        kiosk_id     VARCHAR(64)     NOT NULL,
        locker_id    BIGINT UNSIGNED NOT NULL,
        status       VARCHAR(16)     NOT NULL DEFAULT 'FREE',
        owner_type   VARCHAR(16)     NULL,
        owner_key    VARCHAR(128)    NULL,
        reserved_at  DATETIME        NULL,
        owned_at     DATETIME        NULL,
        version      BIGINT UNSIGNED NOT NULL DEFAULT 1,
        is_vip       TINYINT(1)      NOT NULL DEFAULT 0,
        display_name VARCHAR(64)     NULL,
        updated_at   DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY (kiosk_id, locker_id)
    )`
    _, err := r.db.ExecContext(ctx, ddl)
    return err
}

// EnsureLockers inserts FREE records for locker ids 1..count that are not
// yet present for the kiosk.  Existing records are left untouched so a
// restart never resets live occupancy state.
func (r *LockerRepo) EnsureLockers(ctx context.Context, kioskID string, count int) error {
    if count <= 0 {
        return nil
    }
    query := `INSERT IGNORE INTO lockers (kiosk_id, locker_id, status, version) VALUES `
    args := make([]interface{}, 0, count*2)
    for i := 1; i <= count; i++ {
        if i > 1 {
            query += ","
        }
        query += "(?, ?, 'FREE', 1)"
        args = append(args, kioskID, i)
    }
    _, err := r.db.ExecContext(ctx, query, args...)
    return err
}

// Get returns a single locker or ErrLockerNotFound.
func (r *LockerRepo) Get(ctx context.Context, kioskID string, lockerID uint64) (model.Locker, error) {
    row := r.db.QueryRowContext(ctx,
        `SELECT `+lockerColumns+` FROM lockers WHERE kiosk_id = ? AND locker_id = ?`,
        kioskID, lockerID,
    )
    l, err := scanLocker(row)
    if err == sql.ErrNoRows {
        return model.Locker{}, ErrLockerNotFound
    }
    return l, err
}

// List returns the full occupancy snapshot for a kiosk.
func (r *LockerRepo) List(ctx context.Context, kioskID string) ([]model.Locker, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+lockerColumns+` FROM lockers WHERE kiosk_id = ? ORDER BY locker_id`,
        kioskID,
    )
    if err != nil {
        return nil, err
    }
    return collectLockers(rows)
}

// ListByStatus returns the kiosk's lockers in the given status ordered by
// locker id.  It backs the candidate list for new sessions.
func (r *LockerRepo) ListByStatus(ctx context.Context, kioskID string, status model.LockerStatus) ([]model.Locker, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+lockerColumns+` FROM lockers WHERE kiosk_id = ? AND status = ? ORDER BY locker_id`,
        kioskID, string(status),
    )
    if err != nil {
        return nil, err
    }
    return collectLockers(rows)
}

// FindByOwner returns the kiosk's lockers held by the given owner.  It
// backs the return-flow lookup performed on every card scan.
func (r *LockerRepo) FindByOwner(ctx context.Context, kioskID string, ownerType model.OwnerType, ownerKey string) ([]model.Locker, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+lockerColumns+` FROM lockers WHERE kiosk_id = ? AND owner_type = ? AND owner_key = ? ORDER BY locker_id`,
        kioskID, string(ownerType), ownerKey,
    )
    if err != nil {
        return nil, err
    }
    return collectLockers(rows)
}

// CompareAndSet reads the current record, verifies the caller's version,
// applies the mutator in memory and writes the result back with an UPDATE
// conditioned on the same version.  Zero affected rows after a successful
// read means another actor committed in between, which is reported as
// ErrVersionConflict; the store never retries on the caller's behalf.
func (r *LockerRepo) CompareAndSet(ctx context.Context, kioskID string, lockerID uint64, expectedVersion uint64, mutate Mutator) (model.Locker, error) {
    current, err := r.Get(ctx, kioskID, lockerID)
    if err != nil {
        return model.Locker{}, err
    }
    if current.Version != expectedVersion {
        return model.Locker{}, ErrVersionConflict
    }
    next := current
    if err := mutate(&next); err != nil {
        return model.Locker{}, err
    }
    // Identity and version are owned by the store, not the mutator.
    next.KioskID = current.KioskID
    next.LockerID = current.LockerID
    next.Version = current.Version + 1
    next.UpdatedAt = time.Now().UTC().Truncate(time.Second)

    res, err := r.db.ExecContext(ctx,
        `UPDATE lockers
            SET status = ?, owner_type = ?, owner_key = ?, reserved_at = ?, owned_at = ?,
                version = ?, is_vip = ?, display_name = ?, updated_at = ?
          WHERE kiosk_id = ? AND locker_id = ? AND version = ?`,
        string(next.Status), nullStr(string(next.OwnerType)), nullStr(next.OwnerKey),
        nullTime(next.ReservedAt), nullTime(next.OwnedAt),
        next.Version, next.IsVIP, nullStr(next.DisplayName), next.UpdatedAt,
        kioskID, lockerID, expectedVersion,
    )
    if err != nil {
        return model.Locker{}, err
    }
    affected, err := res.RowsAffected()
    if err != nil {
        return model.Locker{}, err
    }
    if affected == 0 {
        return model.Locker{}, ErrVersionConflict
    }
    return next, nil
}

// scanner abstracts *sql.Row and *sql.Rows so both can feed scanLocker.
type scanner interface {
    Scan(dest ...interface{}) error
}

func scanLocker(s scanner) (model.Locker, error) {
    var (
        l          model.Locker
        ownerType  sql.NullString
        ownerKey   sql.NullString
        reservedAt sql.NullTime
        ownedAt    sql.NullTime
        name       sql.NullString
    )
    err := s.Scan(&l.KioskID, &l.LockerID, &l.Status, &ownerType, &ownerKey,
        &reservedAt, &ownedAt, &l.Version, &l.IsVIP, &name, &l.UpdatedAt)
    if err != nil {
        return model.Locker{}, err
    }
    if ownerType.Valid {
        l.OwnerType = model.OwnerType(ownerType.String)
    }
    if ownerKey.Valid {
        l.OwnerKey = ownerKey.String
    }
    if reservedAt.Valid {
        t := reservedAt.Time
        l.ReservedAt = &t
    }
    if ownedAt.Valid {
        t := ownedAt.Time
        l.OwnedAt = &t
    }
    if name.Valid {
        l.DisplayName = name.String
    }
    return l, nil
}

func collectLockers(rows *sql.Rows) ([]model.Locker, error) {
    defer rows.Close()
    var lockers []model.Locker
    for rows.Next() {
        l, err := scanLocker(rows)
        if err != nil {
            return nil, err
        }
        lockers = append(lockers, l)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return lockers, nil
}

// nullStr maps empty strings to SQL NULL so the owner invariant (both
// fields present or both absent) is visible in the schema as well.
func nullStr(s string) sql.NullString {
    return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
    if t == nil {
        return sql.NullTime{}
    }
    return sql.NullTime{Time: *t, Valid: true}
}
