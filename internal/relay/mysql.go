package relay

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"UnifiedMCP-Client/deploy/migrations"
	xerrors "UnifiedMCP-Client/internal/errors"
)

// MySQLConfig 描述事件日志库的连接参数。
type MySQLConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	// SkipMigrations 为 true 时不自动建表。
	SkipMigrations bool `yaml:"skip_migrations"`
}

const mysqlDuplicateEntry = 1062

// MySQLSink 将事件写入 push_events 表，作为可查询的事件日志。
type MySQLSink struct {
	db *sql.DB
}

// NewMySQLSink 连接 MySQL 并把事件日志表升级到内嵌脚本的最新版本。
func NewMySQLSink(ctx context.Context, cfg MySQLConfig) (*MySQLSink, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sink := &MySQLSink{db: db}
	if !cfg.SkipMigrations {
		if err := ensureJournalSchema(ctx, db, migrations.Files); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return sink, nil
}

func openDatabase(ctx context.Context, cfg MySQLConfig) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}
	if _, err := mysql.ParseDSN(cfg.DSN); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "MySQL DSN 格式错误")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSinkFailure, err, "连接 MySQL 失败")
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeSinkFailure, err, "无法连接到 MySQL")
	}
	return db, nil
}

// Publish 写入一条事件。重复的事件 ID 视为已写入。
func (s *MySQLSink) Publish(ctx context.Context, event Event) error {
	var data any
	if len(event.Data) > 0 {
		data = string(event.Data)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_events (id, name, data, received_at) VALUES (?, ?, ?, ?)`,
		event.ID, event.Name, data, event.ReceivedAt.UnixMilli(),
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return nil
		}
		return xerrors.Wrap(xerrors.CodeSinkFailure, err, "写入事件日志失败")
	}
	return nil
}

// Recent 按接收时间倒序返回最近的事件，name 为空时不过滤。
func (s *MySQLSink) Recent(ctx context.Context, name string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, name, data, received_at FROM push_events`
	args := []any{}
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY received_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSinkFailure, err, "查询事件日志失败")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event      Event
			data       sql.NullString
			receivedAt int64
		)
		if err := rows.Scan(&event.ID, &event.Name, &data, &receivedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeSinkFailure, err, "解析事件日志失败")
		}
		if data.Valid {
			event.Data = []byte(data.String)
		}
		event.ReceivedAt = time.UnixMilli(receivedAt).UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSinkFailure, err, "遍历事件日志失败")
	}
	return events, nil
}

// Close 关闭数据库连接。
func (s *MySQLSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
