package sqlstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"momsvpn/backend/repository"
	"momsvpn/backend/repository/events"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Store gorm 存储引擎
type Store struct {
	db       *gorm.DB
	eventBus *events.Bus
}

// Open 打开数据库并迁移当前模型
func Open(driver, dsn string, eventBus *events.Bus) (*Store, error) {
	cfg := &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		db, err = openSQLite(dsn, cfg)
	case DriverMySQL:
		db, err = gorm.Open(mysql.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q: %w", driver, repository.ErrInvalidData)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	if err := db.AutoMigrate(&userRow{}, &deviceRow{}, &termsRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, eventBus: eventBus}, nil
}

func openSQLite(path string, cfg *gorm.Config) (*gorm.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if !strings.HasPrefix(path, "file:") && !strings.Contains(path, ":memory:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	}
	if !strings.Contains(path, "?") {
		path += "?_pragma=busy_timeout(5000)"
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, err
	}
	// sqlite 单写者
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Close 关闭底层连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Repositories 返回基于该存储的仓储集合
func (s *Store) Repositories() *repository.RepositoriesImpl {
	return repository.NewRepositories(NewUserRepo(s), NewDeviceRepo(s), NewTermsRepo(s))
}

// PublishEvent 发布事件（异步，应在事务外调用）
func (s *Store) PublishEvent(event events.Event) {
	if s.eventBus != nil {
		s.eventBus.Publish(event)
	}
}
