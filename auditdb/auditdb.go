// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package auditdb

import (
	"context"
	"database/sql"
	"math/big"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/subsidynet/subsidy/subsidy"
)

// Writer is the append-only sink components log audit events to.
type Writer interface {
	Log(ev *Event) error
}

// AuditDB is an append-only store of staking and sponsorship events.
// Events are never updated or retracted.
type AuditDB struct {
	path          string
	db            *sql.DB
	driverVersion string
}

var _ Writer = (*AuditDB)(nil)

// New create or open audit db at given path.
func New(path string) (auditDB *AuditDB, err error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if auditDB == nil {
			db.Close()
		}
	}()
	if _, err := db.Exec(eventTableSchema); err != nil {
		return nil, err
	}

	driverVer, _, _ := sqlite3.Version()
	return &AuditDB{
		path,
		db,
		driverVer,
	}, nil
}

// NewMem create an audit db in ram.
func NewMem() (*AuditDB, error) {
	return New(":memory:")
}

// Close close the audit db.
func (db *AuditDB) Close() {
	db.db.Close()
}

func (db *AuditDB) Path() string {
	return db.path
}

// Log appends the event.
func (db *AuditDB) Log(ev *Event) error {
	_, err := db.db.Exec(
		"INSERT INTO event(ts, kind, account, requestId, amount, balance, flagged) VALUES(?,?,?,?,?,?,?)",
		ev.Timestamp,
		string(ev.Kind),
		ev.Account.Bytes(),
		ev.RequestID.Bytes(),
		bigBytes(ev.Amount),
		bigBytes(ev.Balance),
		boolToInt(ev.Flagged),
	)
	return err
}

// Filter queries events matching the given filter, in append order.
func (db *AuditDB) Filter(ctx context.Context, filter *EventFilter) ([]*Event, error) {
	stmt := "SELECT seq, ts, kind, account, requestId, amount, balance, flagged FROM event WHERE 1"
	var args []interface{}
	if filter != nil {
		if filter.Account != nil {
			stmt += " AND account = ?"
			args = append(args, filter.Account.Bytes())
		}
		if filter.Kind != nil {
			stmt += " AND kind = ?"
			args = append(args, string(*filter.Kind))
		}
		if filter.FlaggedOnly {
			stmt += " AND flagged = 1"
		}
	}
	stmt += " ORDER BY seq ASC"
	if filter != nil && filter.Options != nil {
		stmt += " LIMIT ? OFFSET ?"
		args = append(args, filter.Options.Limit, filter.Options.Offset)
	}
	return db.queryEvents(ctx, stmt, args...)
}

func (db *AuditDB) queryEvents(ctx context.Context, stmt string, args ...interface{}) ([]*Event, error) {
	rows, err := db.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			ev        Event
			kind      string
			account   []byte
			requestID []byte
			amount    []byte
			balance   []byte
			flagged   int
		)
		if err := rows.Scan(
			&ev.Sequence,
			&ev.Timestamp,
			&kind,
			&account,
			&requestID,
			&amount,
			&balance,
			&flagged,
		); err != nil {
			return nil, err
		}
		ev.Kind = Kind(kind)
		ev.Account = subsidy.BytesToAddress(account)
		ev.RequestID = subsidy.BytesToBytes32(requestID)
		ev.Amount = new(big.Int).SetBytes(amount)
		ev.Balance = new(big.Int).SetBytes(balance)
		ev.Flagged = flagged != 0
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func bigBytes(v *big.Int) []byte {
	if v == nil {
		return nil
	}
	return v.Bytes()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
