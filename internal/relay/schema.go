package relay

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	xerrors "UnifiedMCP-Client/internal/errors"
)

// 事件日志表的版本记录在 push_events_schema 中。每个内嵌 SQL 文件以
// 整数版本号开头（0001_xxx.sql），按版本号顺序执行。
const (
	journalSchemaLock    = "unifiedmcp.push_events.schema"
	journalSchemaLockTTL = 10 // 秒
)

type schemaStep struct {
	version    int
	file       string
	statements []string
}

// ensureJournalSchema 将 push_events 升级到 fsys 中最新的版本。
// 多个 watch 进程可能同时启动，因此升级过程持有 MySQL 会话级命名锁。
func ensureJournalSchema(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	steps, err := journalSteps(fsys)
	if err != nil {
		return err
	}

	// GET_LOCK 绑定在会话上，后续语句必须走同一条连接。
	conn, err := db.Conn(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeSinkFailure, err, "获取数据库连接失败")
	}
	defer conn.Close()

	if err := lockJournalSchema(ctx, conn); err != nil {
		return err
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `DO RELEASE_LOCK(?)`, journalSchemaLock)
	}()

	if _, err := conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS push_events_schema (
        version INT NOT NULL PRIMARY KEY,
        applied_at BIGINT NOT NULL
)`); err != nil {
		return xerrors.Wrap(xerrors.CodeSinkFailure, err, "创建 push_events_schema 表失败")
	}

	var current int
	if err := conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM push_events_schema`).Scan(&current); err != nil {
		return xerrors.Wrap(xerrors.CodeSinkFailure, err, "读取事件日志表版本失败")
	}
	latest := 0
	if len(steps) > 0 {
		latest = steps[len(steps)-1].version
	}
	if current > latest {
		return xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("事件日志表版本 %d 高于客户端支持的版本 %d", current, latest))
	}

	for _, step := range steps {
		if step.version <= current {
			continue
		}
		// MySQL 的 DDL 会隐式提交，无法放进事务回滚；脚本需可重复执行。
		for _, stmt := range step.statements {
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				return xerrors.Wrap(xerrors.CodeSinkFailure, err, fmt.Sprintf("执行 %s 失败", step.file))
			}
		}
		if _, err := conn.ExecContext(ctx,
			`INSERT INTO push_events_schema (version, applied_at) VALUES (?, ?)`,
			step.version, time.Now().UnixMilli(),
		); err != nil {
			return xerrors.Wrap(xerrors.CodeSinkFailure, err, fmt.Sprintf("记录事件日志表版本 %d 失败", step.version))
		}
	}
	return nil
}

func lockJournalSchema(ctx context.Context, conn *sql.Conn) error {
	var granted sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, ?)`, journalSchemaLock, journalSchemaLockTTL).Scan(&granted); err != nil {
		return xerrors.Wrap(xerrors.CodeSinkFailure, err, "获取事件日志表升级锁失败")
	}
	if !granted.Valid || granted.Int64 != 1 {
		return xerrors.New(xerrors.CodeSinkFailure, "等待事件日志表升级锁超时")
	}
	return nil
}

// journalSteps 读取 fsys 根目录下的 *.sql 并按版本号排序。
func journalSteps(fsys fs.FS) ([]schemaStep, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "列出事件日志表脚本失败")
	}

	seen := make(map[int]string, len(names))
	steps := make([]schemaStep, 0, len(names))
	for _, name := range names {
		version, err := schemaVersion(name)
		if err != nil {
			return nil, err
		}
		if other, dup := seen[version]; dup {
			return nil, xerrors.New(xerrors.CodeInvalidArgument,
				fmt.Sprintf("%s 与 %s 使用了相同的版本号 %d", name, other, version))
		}
		seen[version] = name

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "读取 "+name+" 失败")
		}
		statements := sqlStatements(string(content))
		if len(statements) == 0 {
			continue
		}
		steps = append(steps, schemaStep{version: version, file: name, statements: statements})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].version < steps[j].version })
	return steps, nil
}

// schemaVersion 解析文件名开头的版本号，例如 0002_add_index.sql -> 2。
func schemaVersion(name string) (int, error) {
	prefix := strings.TrimSuffix(name, ".sql")
	if idx := strings.IndexByte(prefix, '_'); idx >= 0 {
		prefix = prefix[:idx]
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("脚本 %s 缺少正整数版本号前缀", name))
	}
	return version, nil
}

// sqlStatements 去掉以 -- 开头的注释行后按分号切分语句。
func sqlStatements(content string) []string {
	var body strings.Builder
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	var statements []string
	for _, stmt := range strings.Split(body.String(), ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}
