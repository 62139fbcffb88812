package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"wager-rewards/internal/rewards"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrChallengeNotActive indicates the challenge was already completed
	// or cancelled; a challenge gets at most one outcome.
	ErrChallengeNotActive = errors.New("storage: challenge not active")
)

const (
	markMilestonePaidSQL = `INSERT INTO paid_milestones (user_id, tier, month, year, paid_at)
    VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (user_id, tier, month, year) DO NOTHING;`

	isMilestonePaidSQL = `SELECT EXISTS (
        SELECT 1 FROM paid_milestones
        WHERE user_id = $1 AND tier = $2 AND month = $3 AND year = $4
    );`

	listPaidMilestonesSQL = `SELECT user_id, tier
    FROM paid_milestones
    WHERE month = $1 AND year = $2;`

	insertChallengeSQL = `INSERT INTO challenges (
        game_id, game_title, required_multiplier, prize, min_bet,
        start_time, created_by, created_by_name, message_ref
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    RETURNING id;`

	listActiveChallengesSQL = `SELECT
        id, game_id, game_title, required_multiplier, prize, min_bet,
        start_time, created_by, created_by_name, message_ref
    FROM challenges
    ORDER BY start_time;`

	deleteChallengeSQL = `DELETE FROM challenges WHERE id = $1;`

	insertChallengeResultSQL = `INSERT INTO challenge_results (
        challenge_id, game_id, game_title, required_multiplier, prize, min_bet,
        winner_id, winner_name, multiplier, bet, payout,
        runner_up_id, runner_up_name, completed_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14);`

	listChallengeResultsSQL = `SELECT
        id, challenge_id, game_id, game_title, required_multiplier, prize, min_bet,
        winner_id, winner_name, multiplier, bet, payout,
        runner_up_id, runner_up_name, completed_at
    FROM challenge_results
    ORDER BY completed_at DESC
    LIMIT $1;`

	insertPayoutSQL = `INSERT INTO payout_log (
        obligation_id, recipient_id, recipient_name, amount, kind, reference, status, error
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`

	listRecentPayoutsSQL = `SELECT
        id, obligation_id, recipient_id, recipient_name, amount, kind, reference, status, error, created_at
    FROM payout_log
    ORDER BY created_at DESC
    LIMIT $1;`

	getSettingSQL = `SELECT value FROM settings WHERE key = $1;`
	putSettingSQL = `INSERT INTO settings (key, value) VALUES ($1,$2)
    ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// MilestoneStore is the idempotency anchor for milestone payouts.
type MilestoneStore interface {
	IsMilestonePaid(ctx context.Context, userID, tier string, month time.Month, year int) (bool, error)
	MarkMilestonePaid(ctx context.Context, userID, tier string, month time.Month, year int) (bool, error)
	ListPaidMilestones(ctx context.Context, month time.Month, year int) (rewards.PaidSet, error)
}

// ChallengeStore manages the active challenge set and completion history.
type ChallengeStore interface {
	AddChallenge(ctx context.Context, ch rewards.Challenge) (int64, error)
	ListActiveChallenges(ctx context.Context) ([]rewards.Challenge, error)
	RemoveChallenge(ctx context.Context, id int64) error
	CompleteChallenge(ctx context.Context, win rewards.ChallengeWin) error
	ListChallengeResults(ctx context.Context, limit int) ([]ChallengeResult, error)
}

// PayoutLog records every terminal dispatch outcome.
type PayoutLog interface {
	RecordPayout(ctx context.Context, rec PayoutRecord) error
	ListRecentPayouts(ctx context.Context, limit int) ([]PayoutRecord, error)
}

// SettingsStore is a small key/value store for operational state.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates all persistence for the rewards pipeline.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns
// a release func. Used to refuse a second running instance, which would
// double-pay.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// IsMilestonePaid reports whether the (user, tier, period) reward already
// went out.
func (s *Store) IsMilestonePaid(ctx context.Context, userID, tier string, month time.Month, year int) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var paid bool
	if scanErr := pool.QueryRow(ctx, isMilestonePaidSQL, userID, tier, int(month), year).Scan(&paid); scanErr != nil {
		return false, fmt.Errorf("is milestone paid: %w", scanErr)
	}
	return paid, nil
}

// MarkMilestonePaid writes the idempotency marker. The uniqueness
// constraint makes check-and-mark a single atomic operation: the return
// value reports whether this call inserted the row, so a second concurrent
// writer observes false instead of double-marking.
func (s *Store) MarkMilestonePaid(ctx context.Context, userID, tier string, month time.Month, year int) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	tag, execErr := pool.Exec(ctx, markMilestonePaidSQL, userID, tier, int(month), year, time.Now().UTC())
	if execErr != nil {
		return false, fmt.Errorf("mark milestone paid: %w", execErr)
	}
	return tag.RowsAffected() == 1, nil
}

// ListPaidMilestones loads the full already-paid set for one period.
func (s *Store) ListPaidMilestones(ctx context.Context, month time.Month, year int) (rewards.PaidSet, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPaidMilestonesSQL, int(month), year)
	if queryErr != nil {
		return nil, fmt.Errorf("list paid milestones: %w", queryErr)
	}
	defer rows.Close()

	paid := rewards.PaidSet{}
	for rows.Next() {
		var userID, tier string
		if err := rows.Scan(&userID, &tier); err != nil {
			return nil, err
		}
		paid.Add(userID, tier)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return paid, nil
}

// AddChallenge inserts a new active challenge and returns its id.
func (s *Store) AddChallenge(ctx context.Context, ch rewards.Challenge) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var minBet interface{}
	if ch.MinBet != nil {
		minBet = ch.MinBet.String()
	}
	var messageRef interface{}
	if ch.MessageRef != "" {
		messageRef = ch.MessageRef
	}

	var id int64
	scanErr := pool.QueryRow(ctx, insertChallengeSQL,
		ch.GameID,
		ch.GameTitle,
		ch.RequiredMultiplier.String(),
		ch.Prize.String(),
		minBet,
		ch.StartTime,
		ch.CreatedBy,
		ch.CreatedByName,
		messageRef,
	).Scan(&id)
	if scanErr != nil {
		return 0, fmt.Errorf("add challenge: %w", scanErr)
	}
	return id, nil
}

// ListActiveChallenges returns every live challenge, oldest first.
func (s *Store) ListActiveChallenges(ctx context.Context) ([]rewards.Challenge, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveChallengesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active challenges: %w", queryErr)
	}
	defer rows.Close()

	challenges := make([]rewards.Challenge, 0)
	for rows.Next() {
		ch, scanErr := scanChallenge(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		challenges = append(challenges, ch)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return challenges, nil
}

// RemoveChallenge cancels an active challenge without recording a result.
func (s *Store) RemoveChallenge(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, deleteChallengeSQL, id)
	if execErr != nil {
		return fmt.Errorf("remove challenge: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrChallengeNotActive
	}
	return nil
}

// CompleteChallenge removes the challenge from the active set and writes
// its result in one transaction. A challenge that is no longer active
// returns ErrChallengeNotActive and writes nothing, so two concurrent
// winners cannot both complete it.
func (s *Store) CompleteChallenge(ctx context.Context, win rewards.ChallengeWin) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin complete challenge: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, execErr := tx.Exec(ctx, deleteChallengeSQL, win.Challenge.ID)
	if execErr != nil {
		return fmt.Errorf("complete challenge delete: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrChallengeNotActive
	}

	var minBet interface{}
	if win.Challenge.MinBet != nil {
		minBet = win.Challenge.MinBet.String()
	}
	var runnerUpID, runnerUpName interface{}
	if win.RunnerUpID != "" {
		runnerUpID = win.RunnerUpID
		runnerUpName = win.RunnerUpName
	}

	if _, execErr := tx.Exec(ctx, insertChallengeResultSQL,
		win.Challenge.ID,
		win.Challenge.GameID,
		win.Challenge.GameTitle,
		win.Challenge.RequiredMultiplier.String(),
		win.Challenge.Prize.String(),
		minBet,
		win.WinnerID,
		win.WinnerName,
		win.Multiplier.String(),
		win.Bet.String(),
		win.Payout.String(),
		runnerUpID,
		runnerUpName,
		time.Now().UTC(),
	); execErr != nil {
		return fmt.Errorf("complete challenge insert result: %w", execErr)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit complete challenge: %w", err)
	}
	return nil
}

// ListChallengeResults returns completed challenges, most recent first.
func (s *Store) ListChallengeResults(ctx context.Context, limit int) ([]ChallengeResult, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listChallengeResultsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list challenge results: %w", queryErr)
	}
	defer rows.Close()

	results := make([]ChallengeResult, 0, limit)
	for rows.Next() {
		res, scanErr := scanChallengeResult(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		results = append(results, res)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return results, nil
}

// RecordPayout appends one row to the historical payout log.
func (s *Store) RecordPayout(ctx context.Context, rec PayoutRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if rec.Error != nil {
		errMsg = *rec.Error
	}

	if _, execErr := pool.Exec(ctx, insertPayoutSQL,
		rec.ObligationID,
		rec.RecipientID,
		rec.RecipientName,
		rec.Amount.String(),
		rec.Kind,
		rec.Reference,
		rec.Status,
		errMsg,
	); execErr != nil {
		return fmt.Errorf("record payout: %w", execErr)
	}
	return nil
}

// ListRecentPayouts returns the most recent payout log rows.
func (s *Store) ListRecentPayouts(ctx context.Context, limit int) ([]PayoutRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentPayoutsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent payouts: %w", queryErr)
	}
	defer rows.Close()

	records := make([]PayoutRecord, 0, limit)
	for rows.Next() {
		var (
			rec       PayoutRecord
			amountStr string
			errMsg    sql.NullString
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.ObligationID,
			&rec.RecipientID,
			&rec.RecipientName,
			&amountStr,
			&rec.Kind,
			&rec.Reference,
			&rec.Status,
			&errMsg,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		amount, convErr := decimal.NewFromString(amountStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse payout amount: %w", convErr)
		}
		rec.Amount = amount
		if errMsg.Valid {
			msg := errMsg.String
			rec.Error = &msg
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// GetSetting reads one settings value.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", false, err
	}
	var value string
	scanErr := pool.QueryRow(ctx, getSettingSQL, key).Scan(&value)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return "", false, nil
	}
	if scanErr != nil {
		return "", false, fmt.Errorf("get setting: %w", scanErr)
	}
	return value, true, nil
}

// PutSetting upserts one settings value.
func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, putSettingSQL, key, value); execErr != nil {
		return fmt.Errorf("put setting: %w", execErr)
	}
	return nil
}

func scanChallenge(rows pgx.Rows) (rewards.Challenge, error) {
	var (
		ch            rewards.Challenge
		multiplierStr string
		prizeStr      string
		minBet        sql.NullString
		messageRef    sql.NullString
	)

	if err := rows.Scan(
		&ch.ID,
		&ch.GameID,
		&ch.GameTitle,
		&multiplierStr,
		&prizeStr,
		&minBet,
		&ch.StartTime,
		&ch.CreatedBy,
		&ch.CreatedByName,
		&messageRef,
	); err != nil {
		return rewards.Challenge{}, err
	}

	var err error
	ch.RequiredMultiplier, err = decimal.NewFromString(multiplierStr)
	if err != nil {
		return rewards.Challenge{}, fmt.Errorf("parse required multiplier: %w", err)
	}
	ch.Prize, err = decimal.NewFromString(prizeStr)
	if err != nil {
		return rewards.Challenge{}, fmt.Errorf("parse prize: %w", err)
	}
	if minBet.Valid {
		mb, convErr := decimal.NewFromString(minBet.String)
		if convErr != nil {
			return rewards.Challenge{}, fmt.Errorf("parse min bet: %w", convErr)
		}
		ch.MinBet = &mb
	}
	if messageRef.Valid {
		ch.MessageRef = messageRef.String
	}

	return ch, nil
}

func scanChallengeResult(rows pgx.Rows) (ChallengeResult, error) {
	var (
		res           ChallengeResult
		multiplierStr string
		prizeStr      string
		minBet        sql.NullString
		winMultStr    string
		betStr        string
		payoutStr     string
		runnerUpID    sql.NullString
		runnerUpName  sql.NullString
	)

	if err := rows.Scan(
		&res.ID,
		&res.ChallengeID,
		&res.GameID,
		&res.GameTitle,
		&multiplierStr,
		&prizeStr,
		&minBet,
		&res.WinnerID,
		&res.WinnerName,
		&winMultStr,
		&betStr,
		&payoutStr,
		&runnerUpID,
		&runnerUpName,
		&res.CompletedAt,
	); err != nil {
		return ChallengeResult{}, err
	}

	var err error
	res.RequiredMultiplier, err = decimal.NewFromString(multiplierStr)
	if err != nil {
		return ChallengeResult{}, fmt.Errorf("parse required multiplier: %w", err)
	}
	res.Prize, err = decimal.NewFromString(prizeStr)
	if err != nil {
		return ChallengeResult{}, fmt.Errorf("parse prize: %w", err)
	}
	res.Multiplier, err = decimal.NewFromString(winMultStr)
	if err != nil {
		return ChallengeResult{}, fmt.Errorf("parse multiplier: %w", err)
	}
	res.Bet, err = decimal.NewFromString(betStr)
	if err != nil {
		return ChallengeResult{}, fmt.Errorf("parse bet: %w", err)
	}
	res.Payout, err = decimal.NewFromString(payoutStr)
	if err != nil {
		return ChallengeResult{}, fmt.Errorf("parse payout: %w", err)
	}
	if minBet.Valid {
		mb, convErr := decimal.NewFromString(minBet.String)
		if convErr != nil {
			return ChallengeResult{}, fmt.Errorf("parse min bet: %w", convErr)
		}
		res.MinBet = &mb
	}
	if runnerUpID.Valid {
		id := runnerUpID.String
		res.RunnerUpID = &id
	}
	if runnerUpName.Valid {
		name := runnerUpName.String
		res.RunnerUpName = &name
	}

	return res, nil
}
