package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"xtrader/internal/application/port"
	"xtrader/internal/infrastructure/config"
	"xtrader/internal/infrastructure/storage/composite"
	pgrepo "xtrader/internal/infrastructure/storage/postgres"
	redisrepo "xtrader/internal/infrastructure/storage/redis"
	sqliterepo "xtrader/internal/infrastructure/storage/sqlite"
)

// Container 持有存储层（快照发布者）
type Container struct {
	cfg          *config.Config
	redisRepo    *redisrepo.Repo
	sqliteRepo   *sqliterepo.Repo
	postgresRepo *pgrepo.Repo
	closeOnce    sync.Once
	closerChain  []func() error
}

// New 创建新的容器实例，按配置初始化 Redis、SQLite、Postgres
func New(cfg *config.Config) (*Container, error) {
	c := &Container{
		cfg:         cfg,
		closerChain: make([]func() error, 0),
	}
	if err := c.initStorage(); err != nil {
		// 清理已初始化的资源
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) initStorage() error {
	if c.cfg.Storage.Redis.Enabled {
		if err := c.initRedis(); err != nil {
			return fmt.Errorf("redis init failed: %w", err)
		}
	}
	if c.cfg.Storage.SQLite.Enabled {
		if err := c.initSQLite(); err != nil {
			return fmt.Errorf("sqlite init failed: %w", err)
		}
	}
	if c.cfg.Storage.Postgres.Enabled {
		if err := c.initPostgres(); err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
	}
	return nil
}

// initRedis 初始化 Redis 连接
func (c *Container) initRedis() error {
	rc := c.cfg.Storage.Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	repo := redisrepo.New(rdb, rc.Prefix, time.Duration(rc.TTLSeconds)*time.Second,
		rc.SignalStream, rc.SignalChannel, rc.StreamMaxLen)
	c.redisRepo = repo

	// 注册关闭回调
	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return repo.Close()
	})

	log.Info().
		Str("addr", rc.Addr).
		Int("db", rc.DB).
		Msg("redis initialized")
	return nil
}

// initSQLite 初始化 SQLite 数据库
func (c *Container) initSQLite() error {
	repo, err := sqliterepo.New(c.cfg.Storage.SQLite.Path)
	if err != nil {
		return err
	}
	c.sqliteRepo = repo

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().
		Str("path", c.cfg.Storage.SQLite.Path).
		Msg("sqlite initialized")
	return nil
}

// initPostgres 初始化 Postgres
func (c *Container) initPostgres() error {
	repo, err := pgrepo.New(c.cfg.Storage.Postgres.DSN)
	if err != nil {
		return err
	}
	c.postgresRepo = repo

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("postgres initialized")
	return nil
}

// Config 获取配置
func (c *Container) Config() *config.Config {
	return c.cfg
}

// RedisRepo 获取 Redis 发布者
func (c *Container) RedisRepo() *redisrepo.Repo {
	return c.redisRepo
}

// SQLiteRepo 获取 SQLite 发布者
func (c *Container) SQLiteRepo() *sqliterepo.Repo {
	return c.sqliteRepo
}

// PostgresRepo 获取 Postgres 发布者
func (c *Container) PostgresRepo() *pgrepo.Repo {
	return c.postgresRepo
}

// Publisher 返回组合了所有已启用存储的发布者；资源由 Container.Close 释放
func (c *Container) Publisher() port.Publisher {
	var pubs []port.Publisher
	if c.redisRepo != nil {
		pubs = append(pubs, c.redisRepo)
	}
	if c.sqliteRepo != nil {
		pubs = append(pubs, c.sqliteRepo)
	}
	if c.postgresRepo != nil {
		pubs = append(pubs, c.postgresRepo)
	}
	return publishOnly{composite.New(pubs...)}
}

// publishOnly 屏蔽 Close，避免与 closerChain 重复关闭
type publishOnly struct {
	*composite.Repo
}

func (publishOnly) Close() error { return nil }

// Close 关闭所有资源（按后进先出顺序）
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for i := len(c.closerChain) - 1; i >= 0; i-- {
			if e := c.closerChain[i](); e != nil {
				log.Error().Err(e).Msg("error closing resource")
				if err == nil {
					err = e
				}
			}
		}
		log.Info().Msg("container closed")
	})
	return err
}
