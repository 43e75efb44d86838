package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/voteledger/config"
	"github.com/lvdashuaibi/voteledger/internal/bank"
	"github.com/lvdashuaibi/voteledger/internal/model"
)

type MySQLRepository struct {
	masterDB *sql.DB
	slaveDB  *sql.DB
}

func NewMySQLRepository(cfg config.MySQLConfig) (*MySQLRepository, error) {
	masterDB, err := sql.Open("mysql", cfg.Master)
	if err != nil {
		return nil, fmt.Errorf("连接主数据库失败: %w", err)
	}

	masterDB.SetMaxOpenConns(cfg.MaxOpenConns)
	masterDB.SetMaxIdleConns(cfg.MaxIdleConns)
	masterDB.SetConnMaxLifetime(time.Hour)

	if err = masterDB.Ping(); err != nil {
		masterDB.Close()
		return nil, fmt.Errorf("主数据库连接测试失败: %w", err)
	}

	slaveDB := masterDB
	if cfg.Slave != "" {
		slaveDB, err = sql.Open("mysql", cfg.Slave)
		if err != nil {
			masterDB.Close()
			return nil, fmt.Errorf("连接从数据库失败: %w", err)
		}

		slaveDB.SetMaxOpenConns(cfg.MaxOpenConns)
		slaveDB.SetMaxIdleConns(cfg.MaxIdleConns)
		slaveDB.SetConnMaxLifetime(time.Hour)

		if err = slaveDB.Ping(); err != nil {
			zap.S().Warnf("从数据库连接测试失败: %v，将使用主数据库代替", err)
			slaveDB.Close()
			slaveDB = masterDB
		}
	}

	return &MySQLRepository{
		masterDB: masterDB,
		slaveDB:  slaveDB,
	}, nil
}

// CreateSchema 建表
func (r *MySQLRepository) CreateSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.masterDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("建表失败: %w", err)
		}
	}
	return nil
}

// SaveSnapshot 保存账本快照，已有更高序号的快照时保持不变
func (r *MySQLRepository) SaveSnapshot(ctx context.Context, state model.LedgerState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("序列化账本快照失败: %w", err)
	}

	// payload 必须先于 seq 赋值，MySQL 按从左到右的顺序计算
	query := `INSERT INTO ledger_snapshots (id, seq, payload) VALUES (?, ?, ?)
			 ON DUPLICATE KEY UPDATE
			 payload = IF(VALUES(seq) > seq, VALUES(payload), payload),
			 seq = GREATEST(seq, VALUES(seq))`
	if _, err := r.masterDB.ExecContext(ctx, query, snapshotRowID, state.Seq, payload); err != nil {
		return fmt.Errorf("保存账本快照失败: %w", err)
	}
	return nil
}

// LoadSnapshot 读取最新快照，第二个返回值表示是否存在
func (r *MySQLRepository) LoadSnapshot(ctx context.Context) (*model.LedgerState, bool, error) {
	var payload string
	err := r.masterDB.QueryRowContext(ctx, "SELECT payload FROM ledger_snapshots WHERE id = ?", snapshotRowID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("读取账本快照失败: %w", err)
	}

	state, err := decodeState([]byte(payload))
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}

// AppendEvent 写入审计日志，重复的事件 ID 被忽略
func (r *MySQLRepository) AppendEvent(ctx context.Context, event *model.LedgerEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化账本事件失败: %w", err)
	}

	query := `INSERT IGNORE INTO ledger_events (event_id, seq, event_type, round_id, caller, payload, occurred_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = r.masterDB.ExecContext(ctx, query,
		event.EventID,
		event.Seq,
		string(event.Type),
		event.RoundID,
		event.Caller.String(),
		payload,
		event.OccurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("写入账本事件 %s 失败: %w", event.EventID, err)
	}
	return nil
}

// LatestSeq 审计日志中最大的事件序号，空表返回 0
func (r *MySQLRepository) LatestSeq(ctx context.Context) (uint64, error) {
	var seq uint64
	if err := r.masterDB.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM ledger_events").Scan(&seq); err != nil {
		return 0, fmt.Errorf("查询审计日志最新序号失败: %w", err)
	}
	return seq, nil
}

// ListEvents 按序号返回轮次的审计日志，roundID 为 0 时返回与轮次无关的事件
func (r *MySQLRepository) ListEvents(ctx context.Context, roundID uint64) ([]*model.LedgerEvent, error) {
	rows, err := r.slaveDB.QueryContext(ctx, "SELECT payload FROM ledger_events WHERE round_id = ? ORDER BY seq", roundID)
	if err != nil {
		return nil, fmt.Errorf("查询账本事件失败: %w", err)
	}
	defer rows.Close()

	var events []*model.LedgerEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("扫描账本事件失败: %w", err)
		}
		var event model.LedgerEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return nil, fmt.Errorf("解析账本事件失败: %w", err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代账本事件失败: %w", err)
	}
	return events, nil
}

// Settle 在一个事务中执行一批划转，任一笔余额不足则整批回滚
func (r *MySQLRepository) Settle(ctx context.Context, transfers []model.Transfer) error {
	tx, err := r.masterDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}

	if err := settleTx(ctx, tx, transfers); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

func settleTx(ctx context.Context, tx *sql.Tx, transfers []model.Transfer) error {
	addrs := bank.Participants(transfers)
	if len(addrs) == 0 {
		return nil
	}

	// 按地址顺序加锁，避免并发事务死锁
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(addrs)), ",")
	args := make([]interface{}, len(addrs))
	for i, addr := range addrs {
		args[i] = addr.String()
	}
	query := fmt.Sprintf("SELECT address, balance FROM accounts WHERE address IN (%s) ORDER BY address FOR UPDATE", placeholders)
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("锁定账户失败: %w", err)
	}
	current := make(map[model.Address]model.Amount, len(addrs))
	for rows.Next() {
		var addr string
		var balance uint64
		if err := rows.Scan(&addr, &balance); err != nil {
			rows.Close()
			return fmt.Errorf("扫描账户余额失败: %w", err)
		}
		current[model.Address(addr)] = model.Amount(balance)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("迭代账户余额失败: %w", err)
	}

	staged, err := bank.Stage(func(a model.Address) model.Amount { return current[a] }, transfers)
	if err != nil {
		return err
	}

	upsert, err := tx.PrepareContext(ctx, `INSERT INTO accounts (address, balance) VALUES (?, ?)
			 ON DUPLICATE KEY UPDATE balance = VALUES(balance)`)
	if err != nil {
		return fmt.Errorf("准备更新余额语句失败: %w", err)
	}
	defer upsert.Close()
	for _, addr := range addrs {
		if _, err := upsert.ExecContext(ctx, addr.String(), uint64(staged[addr])); err != nil {
			return fmt.Errorf("更新账户 %s 余额失败: %w", addr, err)
		}
	}

	record, err := tx.PrepareContext(ctx, "INSERT INTO transfers (from_address, to_address, amount) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("准备划转记录语句失败: %w", err)
	}
	defer record.Close()
	for _, t := range transfers {
		if _, err := record.ExecContext(ctx, t.From.String(), t.To.String(), uint64(t.Amount)); err != nil {
			return fmt.Errorf("记录划转失败: %w", err)
		}
	}
	return nil
}

// Credit 给账户充值
func (r *MySQLRepository) Credit(ctx context.Context, addr model.Address, amount model.Amount) error {
	query := `INSERT INTO accounts (address, balance) VALUES (?, ?)
			 ON DUPLICATE KEY UPDATE balance = balance + VALUES(balance)`
	if _, err := r.masterDB.ExecContext(ctx, query, addr.String(), uint64(amount)); err != nil {
		return fmt.Errorf("账户 %s 充值失败: %w", addr, err)
	}
	return nil
}

// Balance 查询账户余额，不存在的账户余额为零
func (r *MySQLRepository) Balance(ctx context.Context, addr model.Address) (model.Amount, error) {
	var balance uint64
	err := r.slaveDB.QueryRowContext(ctx, "SELECT balance FROM accounts WHERE address = ?", addr.String()).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("查询账户 %s 余额失败: %w", addr, err)
	}
	return model.Amount(balance), nil
}

// Close 关闭数据库连接
func (r *MySQLRepository) Close() {
	if r.masterDB != nil {
		r.masterDB.Close()
	}
	if r.slaveDB != nil && r.slaveDB != r.masterDB {
		r.slaveDB.Close()
	}
}

func decodeState(payload []byte) (*model.LedgerState, error) {
	var state model.LedgerState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("解析账本快照失败: %w", err)
	}
	return &state, nil
}
